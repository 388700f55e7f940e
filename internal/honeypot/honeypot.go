package honeypot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/klyr/lure/internal/config"
	"github.com/klyr/lure/internal/correlation"
	"github.com/klyr/lure/internal/email"
	"github.com/klyr/lure/internal/event"
	"github.com/klyr/lure/internal/logging"
	"github.com/klyr/lure/internal/meta"
	"github.com/klyr/lure/internal/observability"
	"github.com/klyr/lure/internal/ratelimit"
	"github.com/klyr/lure/internal/scanner"
	"github.com/klyr/lure/internal/store"
)

type Server struct {
	router chi.Router

	decoys       []string
	tokenField   string
	maxBodyBytes int64
	rateLimit    config.RateLimitConfig

	scanner   *scanner.Scanner
	extractor meta.Extractor
	builder   event.Builder
	store     store.Store
	limiter   *ratelimit.Limiter

	eventLog *logging.EventLogger
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New wires decoys and, when enabled, the read API. The scanner must run in
// all-matches mode so every finding is recorded.
func New(cfg *config.Config, st store.Store, sc *scanner.Scanner) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if sc == nil {
		return nil, errors.New("scanner is required")
	}
	if sc.Mode() != scanner.ModeAll {
		return nil, fmt.Errorf("decoys need scanner mode %s, got %s", scanner.ModeAll, sc.Mode())
	}

	tokenField := cfg.Decoys.TokenField
	if tokenField == "" {
		tokenField = correlation.DefaultField
	}

	s := &Server{
		decoys:       append([]string(nil), cfg.Decoys.Paths...),
		tokenField:   tokenField,
		maxBodyBytes: cfg.Server.MaxBodyBytes,
		rateLimit:    cfg.API.RateLimit,
		scanner:      sc,
		extractor: meta.Extractor{
			CountryHeaders: cfg.Geo.CountryHeaders,
			CityHeaders:    cfg.Geo.CityHeaders,
		},
		builder: event.NewBuilder(tokenField),
		store:   st,
		limiter: ratelimit.NewLimiter(),
		logger:  logging.Discard(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, path := range s.decoys {
		r.HandleFunc(path, s.handleDecoy)
	}
	if cfg.API.Enabled {
		r.Group(func(r chi.Router) {
			r.Use(s.throttle)
			r.Get("/api/events", s.listEvents)
			r.Get("/api/events/{id}", s.getEvent)
			r.Get("/api/findings", s.listFindings)
			r.Get("/api/correlations/{token}", s.getCorrelation)
		})
	}
	s.router = r

	return s, nil
}

func (s *Server) SetEventLogger(logger *logging.EventLogger) {
	s.eventLog = logger
}

func (s *Server) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleDecoy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.maxBodyBytes > 0 {
		if r.ContentLength > s.maxBodyBytes {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	}

	fields, err := readFields(r, s.maxBodyBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Debug("unreadable decoy body", "path", r.URL.Path, "method", r.Method, "error", err)
	}

	token := correlation.Accept(fields, s.tokenField)
	if isRead(r.Method) {
		token = correlation.Issue()
	}

	req := event.Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Fields: fields,
		Client: s.extractor.Extract(headersWithHost(r), r.RemoteAddr),
		Email:  email.Extract(fields),
		Token:  token,
	}

	// A client that hangs up early must not cost us the event.
	ctx := context.WithoutCancel(r.Context())
	hits := s.scanner.Scan(ctx, fields)
	rec := s.builder.Build(req, hits)

	if err := s.store.Save(ctx, rec); err != nil {
		s.metrics.StoreError("save")
		s.logger.Error("persist event failed",
			"event_id", rec.Event.ID,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeUnavailable(w, r)
		return
	}

	duration := time.Since(start)
	if err := s.eventLog.Write(logging.NewEntry(rec, duration)); err != nil {
		s.logger.Warn("event log write failed", "event_id", rec.Event.ID, "error", err)
	}
	s.metrics.Observe(rec, duration)

	if isRead(r.Method) {
		writeForm(w, s.tokenField, token)
		return
	}
	writeAck(w)
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// headersWithHost exposes the request host to header-based extraction; the
// server moves it out of the header map.
func headersWithHost(r *http.Request) http.Header {
	if r.Host == "" || r.Header.Get("Host") != "" {
		return r.Header
	}
	h := r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Host", r.Host)
	return h
}
