package honeypot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/klyr/lure/internal/config"
	"github.com/klyr/lure/internal/event"
	"github.com/klyr/lure/internal/scanner"
	"github.com/klyr/lure/internal/store"
)

var tokenPattern = regexp.MustCompile(`name="ctoken" value="([0-9a-f-]{36})"`)

func testConfig() *config.Config {
	cfg := &config.Config{
		Decoys: config.DecoyConfig{Paths: []string{"/hp/", "/contact/", "/api/contact/"}},
		API:    config.APIConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *store.SQLStore) {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite3", ":memory:", 1)
	if err != nil {
		t.Fatalf("store.Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	srv, err := New(cfg, st, scanner.New(nil, scanner.Options{}))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return srv, st
}

func serve(srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func onlyEvent(t *testing.T, st store.Store) event.Event {
	t.Helper()
	events, err := st.Events(context.Background(), store.EventFilter{})
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one stored event, got %d", len(events))
	}
	return events[0]
}

func TestDecoyGetServesFormAndRecordsScan(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "http://example.com/hp/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	for _, name := range []string{`name="username"`, `name="message"`, `name="comment"`, `name="content"`, "submit()"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected form to contain %s", name)
		}
	}
	m := tokenPattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("expected hidden token in form: %s", body)
	}

	ev := onlyEvent(t, st)
	if ev.Method != "GET" || ev.Category != event.CategoryScan || ev.DataPresent || ev.FieldCount != 0 {
		t.Fatalf("expected empty scan event, got %+v", ev)
	}
	if string(ev.CorrelationToken) != m[1] {
		t.Fatalf("expected stored token %s, got %s", m[1], ev.CorrelationToken)
	}
	if ev.Origin != "example.com" {
		t.Fatalf("expected origin to fall back to host, got %q", ev.Origin)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	get := serve(srv, httptest.NewRequest(http.MethodGet, "/contact/", nil))
	token := tokenPattern.FindStringSubmatch(get.Body.String())[1]

	form := url.Values{"ctoken": {token}, "username": {"bot"}}
	post := httptest.NewRequest(http.MethodPost, "/contact/", strings.NewReader(form.Encode()))
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := serve(srv, post); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	events, err := st.EventsByToken(context.Background(), token)
	if err != nil {
		t.Fatalf("EventsByToken error: %v", err)
	}
	if len(events) != 2 || events[0].Method != "GET" || events[1].Method != "POST" {
		t.Fatalf("expected GET then POST sharing the token, got %+v", events)
	}
	if events[1].FieldCount != 1 || events[1].TargetFields[0] != "username" {
		t.Fatalf("expected token field excluded from target fields, got %+v", events[1])
	}
}

func TestSubmittedTokenStoredVerbatim(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	form := url.Values{"ctoken": {" tok-1 "}, "username": {"bot"}}
	post := httptest.NewRequest(http.MethodPost, "/contact/", strings.NewReader(form.Encode()))
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := serve(srv, post); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if ev := onlyEvent(t, st); ev.CorrelationToken != " tok-1 " {
		t.Fatalf("expected token stored as sent, got %q", ev.CorrelationToken)
	}
	events, err := st.EventsByToken(context.Background(), " tok-1 ")
	if err != nil {
		t.Fatalf("EventsByToken error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected lookup by the untouched token to match, got %+v", events)
	}
}

func TestAttackPostLooksLikeAnyOtherPost(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/hp/", strings.NewReader(`{"username": "<script>alert(1)</script>"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 198.51.100.2")
	rec := serve(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Fatalf("unexpected ack %q", got)
	}

	ev := onlyEvent(t, st)
	if ev.Category != event.CategoryAttack || !ev.AttackAttempted {
		t.Fatalf("expected attack event, got %+v", ev)
	}
	if ev.IP != "203.0.113.1" || ev.ForwardedFor != "203.0.113.1, 198.51.100.2" {
		t.Fatalf("unexpected client ip %q / %q", ev.IP, ev.ForwardedFor)
	}
	findings, err := st.Findings(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("Findings error: %v", err)
	}
	if len(findings) != 1 || findings[0].Pattern != "script_tag" || findings[0].RawValue != "<script>alert(1)</script>" {
		t.Fatalf("unexpected findings %+v", findings)
	}
}

func TestSpamPost(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/hp/", strings.NewReader(`{"email":"Spam@Example.com","message":"buy now"}`))
	req.Header.Set("Content-Type", "application/json")
	serve(srv, req)

	ev := onlyEvent(t, st)
	if ev.Category != event.CategorySpam || ev.Email != "spam@example.com" || ev.FieldCount != 2 {
		t.Fatalf("expected spam event, got %+v", ev)
	}
}

func TestOtherMethodsAreRecorded(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	rec := serve(srv, httptest.NewRequest(http.MethodPut, "/hp/", strings.NewReader("a=1")))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("expected ack, got %d %s", rec.Code, rec.Body.String())
	}
	if ev := onlyEvent(t, st); ev.Method != "PUT" || ev.Category != event.CategorySpam {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestMalformedJSONIsRecordedAsScan(t *testing.T) {
	srv, st := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/hp/", strings.NewReader(`{"username":`))
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(srv, req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ev := onlyEvent(t, st); ev.Category != event.CategoryScan {
		t.Fatalf("expected scan, got %+v", ev)
	}
}

func TestBodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 8
	srv, st := newTestServer(t, cfg)

	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/hp/", strings.NewReader("username=0123456789")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	events, _ := st.Events(context.Background(), store.EventFilter{})
	if len(events) != 0 {
		t.Fatalf("expected nothing recorded, got %d", len(events))
	}
}

type failingStore struct {
	store.Store
}

func (failingStore) Save(context.Context, event.Record) error {
	return errors.New("disk full")
}

func TestStoreFailureIsGeneric(t *testing.T) {
	srv, err := New(testConfig(), failingStore{}, scanner.New(nil, scanner.Options{}))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/hp/", strings.NewReader(`{"username": "<script>alert(1)</script>"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(srv, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, leak := range []string{"script", "disk full", "XSS"} {
		if strings.Contains(string(body), leak) {
			t.Fatalf("error body leaks %q: %s", leak, body)
		}
	}
}

func TestNewRejectsFirstMatchScanner(t *testing.T) {
	st := failingStore{}
	if _, err := New(testConfig(), st, scanner.New(nil, scanner.Options{Mode: scanner.ModeFirst})); err == nil {
		t.Fatalf("expected first-match scanner to be rejected")
	}
}

func TestUnknownPathIsNotADecoy(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())
	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/wp-admin/", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestReadAPI(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/contact/", strings.NewReader(`{"file": "../../../etc/passwd"}`))
	req.Header.Set("Content-Type", "application/json")
	serve(srv, req)
	serve(srv, httptest.NewRequest(http.MethodGet, "/hp/", nil))

	var list struct {
		Count  int           `json:"count"`
		Events []event.Event `json:"events"`
	}
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/events?category=attack", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if list.Count != 1 || list.Events[0].Path != "/api/contact/" {
		t.Fatalf("unexpected listing %+v", list)
	}

	var detail eventDetail
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/events/"+list.Events[0].ID, nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	patterns := map[string]bool{}
	for _, f := range detail.Findings {
		patterns[f.Pattern] = true
	}
	if !patterns["etc_passwd"] || !patterns["dot_dot_slash"] {
		t.Fatalf("expected LFI and traversal findings, got %+v", detail.Findings)
	}

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/findings?category=lfi", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "etc_passwd") {
		t.Fatalf("unexpected findings listing %d %s", rec.Code, rec.Body.String())
	}

	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/events/missing", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/events?category=bot", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/events?since=yesterday", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCorrelationEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testConfig())

	get := serve(srv, httptest.NewRequest(http.MethodGet, "/hp/", nil))
	token := tokenPattern.FindStringSubmatch(get.Body.String())[1]

	var view correlationView
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/correlations/"+token, nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if view.Token != token || !view.Issued || len(view.Events) != 1 {
		t.Fatalf("unexpected correlation view %+v", view)
	}
}

func TestReadAPIThrottle(t *testing.T) {
	cfg := testConfig()
	cfg.API.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	srv, _ := newTestServer(t, cfg)

	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/events", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rec.Code)
	}
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	for i := 0; i < 3; i++ {
		if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/hp/", nil)); rec.Code != http.StatusOK {
			t.Fatalf("expected decoys to stay unthrottled, got %d", rec.Code)
		}
	}
}

func TestAPIDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.API.Enabled = false
	srv, _ := newTestServer(t, cfg)
	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/events", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with api disabled, got %d", rec.Code)
	}
}
