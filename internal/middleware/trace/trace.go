// Package trace tags each HTTP request with an id and keeps request
// counters for the metrics endpoint.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Header carries the request id in both directions. A client supplied id
// is kept when it is short enough.
const Header = "X-Request-ID"

const maxClientID = 64

type ctxKey struct{}

// Stats is a snapshot of the request counters.
type Stats struct {
	Requests     int64
	ClientErrors int64
	ServerErrors int64
	Busy         time.Duration
}

// Mean is the average time spent in handlers.
func (s Stats) Mean() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.Busy / time.Duration(s.Requests)
}

// Tracer is request id and logging middleware.
type Tracer struct {
	clientIP func(*http.Request) string

	requests     atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
	busyNanos    atomic.Int64
}

// New returns a Tracer. clientIP may be nil.
func New(clientIP func(*http.Request) string) *Tracer {
	return &Tracer{clientIP: clientIP}
}

// Handler wraps next.
func (t *Tracer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(Header)
		if id == "" || len(id) > maxClientID {
			id = NewID()
		}
		w.Header().Set(Header, id)
		ctx := WithID(r.Context(), id)
		r = r.WithContext(ctx)

		var ip string
		if t.clientIP != nil {
			ip = t.clientIP(r)
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		t.requests.Add(1)
		t.busyNanos.Add(int64(elapsed))
		level := slog.LevelDebug
		switch {
		case sw.status >= 500:
			t.serverErrors.Add(1)
			level = slog.LevelError
		case sw.status >= 400:
			t.clientErrors.Add(1)
			level = slog.LevelWarn
		}

		slog.Log(ctx, level, "HTTP request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", sw.status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", ip)
	})
}

// Stats returns the current counters.
func (t *Tracer) Stats() Stats {
	return Stats{
		Requests:     t.requests.Load(),
		ClientErrors: t.clientErrors.Load(),
		ServerErrors: t.serverErrors.Load(),
		Busy:         time.Duration(t.busyNanos.Load()),
	}
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// NewID returns a fresh request id.
func NewID() string {
	return "req_" + uuid.NewString()
}

// WithID returns ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID returns the request id stored in ctx, or "".
func ID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestID returns the id of r.
func RequestID(r *http.Request) string {
	return ID(r.Context())
}
