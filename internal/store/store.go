package store

import (
	"context"
	"errors"
	"time"

	"github.com/klyr/lure/internal/event"
	"github.com/klyr/lure/internal/signature"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Store persists events together with their findings. Save is atomic: either
// the event and every finding are written, or nothing is.
type Store interface {
	Save(ctx context.Context, rec event.Record) error
	Event(ctx context.Context, id string) (event.Event, error)
	Findings(ctx context.Context, eventID string) ([]event.Finding, error)
	Events(ctx context.Context, filter EventFilter) ([]event.Event, error)
	FindingList(ctx context.Context, filter FindingFilter) ([]event.Finding, error)
	EventsByToken(ctx context.Context, token string) ([]event.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	Close() error
}

// EventFilter narrows an event listing. Zero values match everything.
type EventFilter struct {
	Category event.Category
	IP       string
	Path     string
	Token    string
	Method   string
	Email    string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// FindingFilter narrows a finding listing. IP and Path match the owning event.
type FindingFilter struct {
	Category signature.Category
	Pattern  string
	IP       string
	Path     string
	Since    time.Time
	Until    time.Time
	Limit    int
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
