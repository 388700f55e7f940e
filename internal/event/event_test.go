package event

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/klyr/lure/internal/email"
	"github.com/klyr/lure/internal/meta"
	"github.com/klyr/lure/internal/payload"
	"github.com/klyr/lure/internal/scanner"
	"github.com/klyr/lure/internal/signature"
)

func fixedBuilder() Builder {
	n := 0
	return Builder{
		TokenField: "ctoken",
		Now:        func() time.Time { return time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
}

func build(t *testing.T, method string, fields payload.Fields) Record {
	t.Helper()
	s := scanner.New(nil, scanner.Options{})
	hits := s.Scan(context.Background(), fields)
	return fixedBuilder().Build(Request{
		Method: method,
		Path:   "/hp/",
		Fields: fields,
		Email:  email.Extract(fields),
	}, hits)
}

func checkInvariants(t *testing.T, rec Record) {
	t.Helper()
	ev := rec.Event
	if ev.AttackAttempted != (len(rec.Findings) > 0) {
		t.Fatalf("attack_attempted %v with %d findings", ev.AttackAttempted, len(rec.Findings))
	}
	if ev.FieldCount != len(ev.TargetFields) {
		t.Fatalf("field_count %d != len(target_fields) %d", ev.FieldCount, len(ev.TargetFields))
	}
	if ev.DataPresent != (ev.FieldCount > 0) {
		t.Fatalf("data_present %v with field_count %d", ev.DataPresent, ev.FieldCount)
	}
	seen := map[string]bool{}
	for _, name := range ev.TargetFields {
		if seen[name] {
			t.Fatalf("duplicate target field %q", name)
		}
		seen[name] = true
	}
	if want := Classify(ev.AttackAttempted, ev.DataPresent); ev.Category != want {
		t.Fatalf("category %s, want %s", ev.Category, want)
	}
	for _, f := range rec.Findings {
		if f.EventID != ev.ID {
			t.Fatalf("finding %s points at %s, not %s", f.ID, f.EventID, ev.ID)
		}
	}
}

func TestBuildScriptTagIsAttack(t *testing.T) {
	rec := build(t, "POST", payload.Fields{{Name: "username", Values: []string{"<script>alert(1)</script>"}}})
	checkInvariants(t, rec)

	if len(rec.Findings) != 1 {
		t.Fatalf("expected one finding, got %+v", rec.Findings)
	}
	f := rec.Findings[0]
	if f.Pattern != "script_tag" || f.Category != signature.CategoryXSS || f.RawValue != "<script>alert(1)</script>" || f.TargetField != "username" {
		t.Fatalf("unexpected finding %+v", f)
	}
	if !rec.Event.AttackAttempted || rec.Event.Category != CategoryAttack {
		t.Fatalf("expected attack event, got %+v", rec.Event)
	}
}

func TestBuildEmptyGetIsScan(t *testing.T) {
	rec := build(t, "GET", payload.Fields{})
	checkInvariants(t, rec)
	ev := rec.Event
	if ev.DataPresent || ev.FieldCount != 0 || ev.Category != CategoryScan || len(rec.Findings) != 0 {
		t.Fatalf("expected empty scan event, got %+v", ev)
	}
	if ev.TargetFields == nil {
		t.Fatalf("expected empty, non-nil target fields")
	}
}

func TestBuildTokenOnlyPostIsScan(t *testing.T) {
	rec := build(t, "POST", payload.Fields{{Name: "ctoken", Values: []string{"abc"}}})
	checkInvariants(t, rec)
	if rec.Event.Category != CategoryScan || rec.Event.FieldCount != 0 {
		t.Fatalf("expected token-only POST to be scan, got %+v", rec.Event)
	}
	if rec.Event.Data["ctoken"] != "abc" {
		t.Fatalf("expected raw data to keep the token field")
	}
}

func TestBuildSpam(t *testing.T) {
	rec := build(t, "POST", payload.Fields{
		{Name: "email", Values: []string{"spam@example.com"}},
		{Name: "message", Values: []string{"buy now"}},
	})
	checkInvariants(t, rec)
	if rec.Event.Category != CategorySpam || rec.Event.AttackAttempted {
		t.Fatalf("expected spam, got %+v", rec.Event)
	}
	if rec.Event.Email != "spam@example.com" {
		t.Fatalf("expected extracted email, got %q", rec.Event.Email)
	}
	if !reflect.DeepEqual([]string(rec.Event.TargetFields), []string{"email", "message"}) {
		t.Fatalf("unexpected target fields %v", rec.Event.TargetFields)
	}
}

func TestBuildCarriesContext(t *testing.T) {
	b := fixedBuilder()
	rec := b.Build(Request{
		Method: "GET",
		Path:   "/contact/",
		Token:  "tok",
		Client: meta.ClientContext{IP: "203.0.113.1", Geo: "US", UserAgent: "curl/8"},
	}, nil)
	ev := rec.Event
	if ev.ID != "id-1" || ev.CorrelationToken != "tok" || ev.IP != "203.0.113.1" || ev.UserAgent != "curl/8" || ev.Path != "/contact/" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Referer != "" {
		t.Fatalf("expected absent referer")
	}
	if !ev.CreatedAt.Equal(time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at %v", ev.CreatedAt)
	}
}

func TestCategoryDerivationExhaustive(t *testing.T) {
	cases := []struct {
		attack, data bool
		want         Category
	}{
		{true, true, CategoryAttack},
		{true, false, CategoryAttack},
		{false, true, CategorySpam},
		{false, false, CategoryScan},
	}
	for _, tt := range cases {
		if got := Classify(tt.attack, tt.data); got != tt.want {
			t.Fatalf("Classify(%v,%v) = %s, want %s", tt.attack, tt.data, got, tt.want)
		}
	}
}

func TestSummarizeDedupes(t *testing.T) {
	s := Summarize(payload.Fields{
		{Name: "b"}, {Name: "ctoken"}, {Name: "a"}, {Name: "b"},
	}, "ctoken")
	if !reflect.DeepEqual(s.TargetFields, []string{"b", "a"}) || s.FieldCount != 2 || !s.DataPresent {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestCategoryScanRejectsUnknown(t *testing.T) {
	var c Category
	if err := c.Scan("attack"); err != nil || c != CategoryAttack {
		t.Fatalf("expected attack, got %q, %v", c, err)
	}
	if err := c.Scan("bot"); err == nil {
		t.Fatalf("expected unknown category error")
	}
	if _, err := Category("bot").Value(); err == nil {
		t.Fatalf("expected Value to reject unknown category")
	}
}

func TestTextEncoding(t *testing.T) {
	type wrapper struct {
		A Text `json:"a"`
		B Text `json:"b"`
	}
	b, err := json.Marshal(wrapper{A: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":"x","b":null}` {
		t.Fatalf("unexpected json %s", b)
	}
	var w wrapper
	if err := json.Unmarshal(b, &w); err != nil || w.A != "x" || w.B != "" {
		t.Fatalf("unexpected round trip %+v, %v", w, err)
	}

	v, _ := Text("").Value()
	if v != nil {
		t.Fatalf("expected empty text stored as NULL")
	}
	var txt Text
	if err := txt.Scan(nil); err != nil || txt != "" {
		t.Fatalf("expected NULL to scan as empty")
	}
}

func TestAttackCategories(t *testing.T) {
	rec := Record{Findings: []Finding{
		{Category: signature.CategoryLFI},
		{Category: signature.CategoryTraversal},
		{Category: signature.CategoryLFI},
	}}
	if got := rec.AttackCategories(); !reflect.DeepEqual(got, []string{"LFI", "TRAVERSAL"}) {
		t.Fatalf("unexpected categories %v", got)
	}
}

func TestBuildMarksDecodedFindings(t *testing.T) {
	fields := payload.ParseQuery("q=%253Cscript%253Ealert(1)%253C%252Fscript%253E")
	s := scanner.New(nil, scanner.Options{DecodeDepth: 2})
	hits := s.Scan(context.Background(), fields)
	rec := fixedBuilder().Build(Request{Method: "POST", Path: "/hp/", Fields: fields}, hits)

	if len(rec.Findings) != 1 {
		t.Fatalf("expected one finding, got %+v", rec.Findings)
	}
	f := rec.Findings[0]
	if !f.Decoded || f.RawValue != "<script>alert(1)</script>" {
		t.Fatalf("expected decoded finding with decoded raw value, got %+v", f)
	}
}
