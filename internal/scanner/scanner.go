package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/klyr/lure/internal/normalize"
	"github.com/klyr/lure/internal/payload"
	"github.com/klyr/lure/internal/signature"
)

// Mode selects how many signatures a single field may report.
type Mode int

const (
	// ModeAll reports every matching signature for every field.
	ModeAll Mode = iota
	// ModeFirst reports only the first matching signature, in catalog order,
	// for each field.
	ModeFirst
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeFirst:
		return "first"
	default:
		return "unknown"
	}
}

// Hit is one signature matching one field. Match is the exact matched span
// of the submitted value, unless Decoded is set: then it is a span of the
// decoded copy and does not occur literally in the request.
type Hit struct {
	Field     string             `json:"field"`
	Signature string             `json:"signature"`
	Category  signature.Category `json:"category"`
	Match     string             `json:"match"`
	Decoded   bool               `json:"decoded,omitempty"`
}

type Options struct {
	Mode           Mode
	PatternTimeout time.Duration
	MaxValueBytes  int
	Logger         *slog.Logger

	// DecodeDepth > 0 adds a second sweep over a URL/HTML-decoded copy.
	// Its hits carry Decoded and a match taken from the decoded text.
	DecodeDepth int

	// OnTimeout is called with the signature name whenever an evaluation is
	// abandoned.
	OnTimeout func(signature string)
}

// Scanner is safe for concurrent use; it holds no mutable state.
type Scanner struct {
	catalog *signature.Catalog
	opts    Options
}

func New(catalog *signature.Catalog, opts Options) *Scanner {
	if catalog == nil {
		catalog = signature.Builtin()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scanner{catalog: catalog, opts: opts}
}

func (s *Scanner) Mode() Mode {
	return s.opts.Mode
}

// Scan evaluates every field in order. Fields with an empty first value are
// skipped. A cancelled ctx stops the scan with the hits found so far.
func (s *Scanner) Scan(ctx context.Context, fields payload.Fields) []Hit {
	var hits []Hit
	for _, field := range fields {
		if ctx.Err() != nil {
			break
		}
		hits = append(hits, s.ScanValue(ctx, field.Name, field.First())...)
	}
	return hits
}

func (s *Scanner) ScanValue(ctx context.Context, field, value string) []Hit {
	if value == "" {
		return nil
	}
	value = clip(value, s.opts.MaxValueBytes)

	hits := s.sweep(ctx, field, value, nil)
	if s.opts.DecodeDepth <= 0 || ctx.Err() != nil {
		return hits
	}
	if s.opts.Mode == ModeFirst && len(hits) > 0 {
		return hits
	}

	decoded := normalize.Apply(value, normalize.Options{MaxDecodeDepth: s.opts.DecodeDepth, HTMLEntity: true})
	if !decoded.Changed() {
		return hits
	}
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		seen[h.Signature] = true
	}
	for _, h := range s.sweep(ctx, field, clip(decoded.Normalized, s.opts.MaxValueBytes), seen) {
		h.Decoded = true
		hits = append(hits, h)
	}
	return hits
}

func (s *Scanner) sweep(ctx context.Context, field, value string, skip map[string]bool) []Hit {
	var hits []Hit
	for i := 0; i < s.catalog.Len(); i++ {
		if ctx.Err() != nil {
			return hits
		}
		sig := s.catalog.At(i)
		if skip[sig.Name] {
			continue
		}

		r, err := s.find(ctx, sig, value)
		if err != nil && ctx.Err() != nil {
			return hits
		}
		if errors.Is(err, errPatternTimeout) {
			s.opts.Logger.Warn("signature evaluation skipped",
				"signature", sig.Name,
				"field", field,
				"value_bytes", len(value),
				"timeout", s.opts.PatternTimeout,
			)
			if s.opts.OnTimeout != nil {
				s.opts.OnTimeout(sig.Name)
			}
			continue
		}
		if !r.ok {
			continue
		}

		hits = append(hits, Hit{
			Field:     field,
			Signature: sig.Name,
			Category:  sig.Category,
			Match:     value[r.start:r.end],
		})
		if s.opts.Mode == ModeFirst {
			break
		}
	}
	return hits
}

type span struct {
	start, end int
	ok         bool
}

var errPatternTimeout = errors.New("pattern timeout")

// find runs one matcher. It fails with errPatternTimeout when the matcher
// outlives PatternTimeout and with ctx.Err() when ctx ends first.
func (s *Scanner) find(ctx context.Context, sig signature.Signature, value string) (span, error) {
	if s.opts.PatternTimeout <= 0 {
		start, end, ok := sig.Matcher.Find(value)
		return span{start: start, end: end, ok: ok}, nil
	}

	done := make(chan span, 1)
	go func() {
		start, end, ok := sig.Matcher.Find(value)
		done <- span{start: start, end: end, ok: ok}
	}()

	timer := time.NewTimer(s.opts.PatternTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r, nil
	case <-timer.C:
		return span{}, errPatternTimeout
	case <-ctx.Done():
		return span{}, ctx.Err()
	}
}

// clip cuts value to at most max bytes without splitting a rune.
func clip(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
