package honeypot

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/klyr/lure/internal/correlation"
	"github.com/klyr/lure/internal/event"
	"github.com/klyr/lure/internal/meta"
	"github.com/klyr/lure/internal/signature"
	"github.com/klyr/lure/internal/store"
)

type eventDetail struct {
	Event    event.Event     `json:"event"`
	Findings []event.Finding `json:"findings"`
}

type correlationView struct {
	Token  string        `json:"token"`
	Issued bool          `json:"issued_shape"`
	Events []event.Event `json:"events"`
}

// throttle limits the read API per client IP. Decoys are never throttled.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimit.Enabled {
			key := meta.ClientIP(r.Header, r.RemoteAddr)
			if !s.limiter.Allow(key, s.rateLimit.RPS, s.rateLimit.Burst, time.Now()) {
				s.metrics.Throttled()
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.store.Events(r.Context(), filter)
	if err != nil {
		s.queryFailed(w, "events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(events), "events": events})
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := s.store.Event(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		s.queryFailed(w, "event", err)
		return
	}
	findings, err := s.store.Findings(r.Context(), id)
	if err != nil {
		s.queryFailed(w, "findings", err)
		return
	}
	writeJSON(w, http.StatusOK, eventDetail{Event: ev, Findings: findings})
}

func (s *Server) listFindings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFindingFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	findings, err := s.store.FindingList(r.Context(), filter)
	if err != nil {
		s.queryFailed(w, "findings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(findings), "findings": findings})
}

func (s *Server) getCorrelation(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	events, err := s.store.EventsByToken(r.Context(), token)
	if err != nil {
		s.queryFailed(w, "correlation", err)
		return
	}
	writeJSON(w, http.StatusOK, correlationView{
		Token:  token,
		Issued: correlation.Valid(token),
		Events: events,
	})
}

func (s *Server) queryFailed(w http.ResponseWriter, op string, err error) {
	s.metrics.StoreError(op)
	s.logger.Error("read api query failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "query failed")
}

func parseEventFilter(q url.Values) (store.EventFilter, error) {
	var f store.EventFilter
	var err error
	if raw := q.Get("category"); raw != "" {
		if f.Category, err = event.ParseCategory(strings.ToLower(raw)); err != nil {
			return f, err
		}
	}
	f.IP = q.Get("ip")
	f.Path = q.Get("path")
	f.Token = q.Get("token")
	f.Method = q.Get("method")
	f.Email = q.Get("email")
	if f.Since, f.Until, err = parseRange(q); err != nil {
		return f, err
	}
	f.Limit, err = parseLimit(q)
	return f, err
}

func parseFindingFilter(q url.Values) (store.FindingFilter, error) {
	var f store.FindingFilter
	var err error
	if raw := q.Get("category"); raw != "" {
		if f.Category, err = signature.ParseCategory(strings.ToUpper(raw)); err != nil {
			return f, err
		}
	}
	f.Pattern = q.Get("pattern")
	f.IP = q.Get("ip")
	f.Path = q.Get("path")
	if f.Since, f.Until, err = parseRange(q); err != nil {
		return f, err
	}
	f.Limit, err = parseLimit(q)
	return f, err
}

func parseRange(q url.Values) (since, until time.Time, err error) {
	if since, err = parseTime("since", q.Get("since")); err != nil {
		return
	}
	if until, err = parseTime("until", q.Get("until")); err != nil {
		return
	}
	if !since.IsZero() && !until.IsZero() && !since.Before(until) {
		err = errors.New("since must be before until")
	}
	return
}

func parseTime(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339: %w", name, err)
	}
	return t, nil
}

func parseLimit(q url.Values) (int, error) {
	raw := q.Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}
