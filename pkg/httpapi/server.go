// Package httpapi serves the device over HTTP.
//
// A session is created with POST /v1/sessions and ended with DELETE. While
// it is open, push, pop and ioctl requests act on the session's device.
// Values travel either as JSON or as the 4-byte little-endian wire format
// when the request uses application/octet-stream.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
)

// Options configures a Server.
type Options struct {
	// Logger receives request diagnostics. Nil discards them.
	Logger *slog.Logger

	// Tracer creates request spans. Nil uses a no-op tracer.
	Tracer trace.Tracer

	// RED records request metrics. Nil disables them.
	RED *observability.REDMetrics

	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler

	// CORSOrigins enables CORS for the listed origins. Empty disables CORS.
	CORSOrigins []string
}

type session struct {
	id      uuid.UUID
	file    *chardev.File
	created time.Time
}

// Server maps HTTP sessions onto device sessions.
type Server struct {
	scope *device.Scope
	opts  Options

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	closed   bool
}

// New creates a server handing out devices from scope.
func New(scope *device.Scope, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	if opts.Tracer == nil {
		opts.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	return &Server{
		scope:    scope,
		opts:     opts,
		sessions: make(map[uuid.UUID]*session),
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", s.handleBegin)
	mux.HandleFunc("GET /v1/sessions", s.handleList)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleEnd)
	mux.HandleFunc("POST /v1/sessions/{id}/push", s.handlePush)
	mux.HandleFunc("POST /v1/sessions/{id}/pop", s.handlePop)
	mux.HandleFunc("POST /v1/sessions/{id}/ioctl", s.handleIoctl)
	mux.HandleFunc("GET /v1/sessions/{id}/stat", s.handleSessionStat)
	mux.HandleFunc("GET /v1/stat", s.handleStat)

	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(s.ready))

	if s.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.opts.MetricsHandler)
	}

	var handler http.Handler = observability.HTTPMiddleware(s.opts.Tracer, s.opts.RED, mux)

	if len(s.opts.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", "Accept", "Traceparent"},
		}).Handler(handler)
	}

	return handler
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Close ends every open session and rejects further requests.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	open := make([]*session, 0, len(s.sessions))

	for id, sess := range s.sessions {
		open = append(open, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	var errs []error

	for _, sess := range open {
		err := sess.file.CloseContext(observability.WithSession(ctx, sess.id.String()))
		if err != nil && !errors.Is(err, chardev.ErrFileClosed) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Server) ready(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}

	return nil
}

func (s *Server) begin(ctx context.Context) (*session, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	id := uuid.New()

	file, err := chardev.OpenScoped(observability.WithSession(ctx, id.String()), s.scope)
	if err != nil {
		return nil, err
	}

	sess := &session{id: id, file: file, created: time.Now()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil, errors.Join(ErrServerClosed, file.CloseContext(ctx))
	}

	s.sessions[id] = sess
	s.mu.Unlock()

	return sess, nil
}

func (s *Server) lookup(raw string) (*session, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}

	return sess, nil
}

func (s *Server) end(raw string) (*session, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}

	delete(s.sessions, id)

	return sess, nil
}
