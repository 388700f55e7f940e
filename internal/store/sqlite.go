package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/klyr/lure/internal/event"
)

const busyTimeoutMS = 5000

// SQLStore is the sqlx-backed Store. Timestamps are written in UTC so the
// driver's text encoding orders correctly in range filters.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database, applies connection pragmas and creates the
// schema if it is missing.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int) (*SQLStore, error) {
	if maxOpenConns <= 0 {
		maxOpenConns = 1
	}
	db, err := sqlx.Open(driver, withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func withPragmas(dsn string) string {
	params := []string{
		"_foreign_keys=on",
		fmt.Sprintf("_busy_timeout=%d", busyTimeoutMS),
	}
	if !strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
		params = append(params, "_journal_mode=WAL")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Save(ctx context.Context, rec event.Record) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertEvent, rec.Event); err != nil {
		return fmt.Errorf("insert event %s: %w", rec.Event.ID, err)
	}
	for _, f := range rec.Findings {
		if _, err = tx.NamedExecContext(ctx, insertFinding, f); err != nil {
			return fmt.Errorf("insert finding %s: %w", f.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit event %s: %w", rec.Event.ID, err)
	}
	return nil
}

func (s *SQLStore) Event(ctx context.Context, id string) (event.Event, error) {
	var ev event.Event
	err := s.db.GetContext(ctx, &ev, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return ev, nil
}

// Findings returns the findings of one event in the order they were recorded.
func (s *SQLStore) Findings(ctx context.Context, eventID string) ([]event.Finding, error) {
	findings := []event.Finding{}
	err := s.db.SelectContext(ctx, &findings,
		`SELECT `+findingColumns+` FROM findings WHERE event_id = ? ORDER BY rowid`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list findings for %s: %w", eventID, err)
	}
	return findings, nil
}

// Events lists events newest first.
func (s *SQLStore) Events(ctx context.Context, filter EventFilter) ([]event.Event, error) {
	var q query
	if filter.Category != "" {
		q.where("event_category = ?", string(filter.Category))
	}
	if filter.IP != "" {
		q.where("ip_address = ?", filter.IP)
	}
	if filter.Path != "" {
		q.where("request_path = ?", filter.Path)
	}
	if filter.Token != "" {
		q.where("correlation_token = ?", filter.Token)
	}
	if filter.Method != "" {
		q.where("method = ?", strings.ToUpper(filter.Method))
	}
	if filter.Email != "" {
		q.where("email = ?", strings.ToLower(filter.Email))
	}
	q.timeRange("created_at", filter.Since, filter.Until)

	stmt := `SELECT ` + eventColumns + ` FROM events` + q.clause() +
		` ORDER BY created_at DESC, id LIMIT ?`
	events := []event.Event{}
	if err := s.db.SelectContext(ctx, &events, stmt, append(q.args, clampLimit(filter.Limit))...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// FindingList lists findings newest first, joined to their events for the
// IP and path filters.
func (s *SQLStore) FindingList(ctx context.Context, filter FindingFilter) ([]event.Finding, error) {
	var q query
	if filter.Category != "" {
		q.where("f.category = ?", string(filter.Category))
	}
	if filter.Pattern != "" {
		q.where("f.pattern = ?", filter.Pattern)
	}
	if filter.IP != "" {
		q.where("e.ip_address = ?", filter.IP)
	}
	if filter.Path != "" {
		q.where("e.request_path = ?", filter.Path)
	}
	q.timeRange("f.created_at", filter.Since, filter.Until)

	stmt := `SELECT f.id, f.event_id, f.target_field, f.pattern, f.category, f.raw_value, f.decoded, f.created_at
		FROM findings f JOIN events e ON e.id = f.event_id` + q.clause() +
		` ORDER BY f.created_at DESC, f.rowid LIMIT ?`
	findings := []event.Finding{}
	if err := s.db.SelectContext(ctx, &findings, stmt, append(q.args, clampLimit(filter.Limit))...); err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	return findings, nil
}

// EventsByToken returns every event carrying the token, oldest first, so a
// decoy GET precedes the POST that echoed its token.
func (s *SQLStore) EventsByToken(ctx context.Context, token string) ([]event.Event, error) {
	events := []event.Event{}
	if token == "" {
		return events, nil
	}
	err := s.db.SelectContext(ctx, &events,
		`SELECT `+eventColumns+` FROM events WHERE correlation_token = ? ORDER BY created_at, rowid`, token)
	if err != nil {
		return nil, fmt.Errorf("list events for token: %w", err)
	}
	return events, nil
}

// DeleteEvent removes an event and its findings in one transaction.
func (s *SQLStore) DeleteEvent(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM findings WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("delete findings for %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if n == 0 {
		err = fmt.Errorf("event %s: %w", id, ErrNotFound)
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete %s: %w", id, err)
	}
	return nil
}

type query struct {
	conds []string
	args  []any
}

func (q *query) where(cond string, arg any) {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, arg)
}

func (q *query) timeRange(column string, since, until time.Time) {
	if !since.IsZero() {
		q.where(column+" >= ?", since.UTC())
	}
	if !until.IsZero() {
		q.where(column+" < ?", until.UTC())
	}
}

func (q *query) clause() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}
