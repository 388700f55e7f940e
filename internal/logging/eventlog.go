package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/klyr/lure/internal/event"
)

const maxRawValue = 256

// Entry is written as a single JSON object per persisted event.
type Entry struct {
	Timestamp        time.Time      `json:"ts"`
	EventID          string         `json:"event_id"`
	Method           string         `json:"method"`
	Path             string         `json:"path"`
	ClientIP         string         `json:"client_ip"`
	ForwardedFor     string         `json:"forwarded_for,omitempty"`
	Geo              string         `json:"geo,omitempty"`
	UserAgent        string         `json:"user_agent,omitempty"`
	CorrelationToken string         `json:"correlation_token,omitempty"`
	Email            string         `json:"email,omitempty"`
	Category         event.Category `json:"category"`
	AttackAttempted  bool           `json:"attack_attempted"`
	FieldCount       int            `json:"field_count"`
	TargetFields     []string       `json:"target_fields"`
	Findings         []FindingEntry `json:"findings"`
	DurationMS       int64          `json:"duration_ms"`
}

type FindingEntry struct {
	Field    string `json:"field"`
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
	RawValue string `json:"raw_value"`
	Decoded  bool   `json:"decoded,omitempty"`
}

// NewEntry flattens a record for the event log.
func NewEntry(rec event.Record, duration time.Duration) Entry {
	ev := rec.Event
	entry := Entry{
		Timestamp:        ev.CreatedAt,
		EventID:          ev.ID,
		Method:           ev.Method,
		Path:             ev.Path,
		ClientIP:         ev.IP.String(),
		ForwardedFor:     ev.ForwardedFor.String(),
		Geo:              ev.Geo.String(),
		UserAgent:        ev.UserAgent.String(),
		CorrelationToken: ev.CorrelationToken.String(),
		Email:            ev.Email.String(),
		Category:         ev.Category,
		AttackAttempted:  ev.AttackAttempted,
		FieldCount:       ev.FieldCount,
		TargetFields:     append([]string{}, ev.TargetFields...),
		DurationMS:       duration.Milliseconds(),
	}
	for _, f := range rec.Findings {
		entry.Findings = append(entry.Findings, FindingEntry{
			Field:    f.TargetField,
			Pattern:  f.Pattern,
			Category: string(f.Category),
			RawValue: f.RawValue,
			Decoded:  f.Decoded,
		})
	}
	return entry
}

type EventLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEventLogger(w io.Writer) *EventLogger {
	return &EventLogger{w: w}
}

func OpenEventLog(path string) (*EventLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewEventLogger(file), file.Close, nil
}

func (l *EventLogger) Write(entry Entry) error {
	if l == nil {
		return nil
	}
	entry.Findings = clipFindings(entry.Findings)

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

func clipFindings(findings []FindingEntry) []FindingEntry {
	if len(findings) == 0 {
		return []FindingEntry{}
	}
	out := make([]FindingEntry, len(findings))
	for i, f := range findings {
		out[i] = f
		out[i].RawValue = clip(f.RawValue, maxRawValue)
	}
	return out
}

func clip(value string, max int) string {
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
