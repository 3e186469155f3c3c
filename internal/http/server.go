// Package http serves the budget dashboard as a local JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"budgetdash/internal/log"
	"budgetdash/internal/middleware/trace"
	"budgetdash/internal/services"
)

// Options tune NewServer.
type Options struct {
	// RateLimit is the number of mutating requests a client may send per
	// minute; zero uses the default.
	RateLimit int
	Logger    *log.Logger
}

type Server struct {
	http.Server
	svc      *services.BudgetService
	logger   *log.Logger
	tracer   *trace.Tracer
	limiter  *rateLimiter
	security *securityMetrics
	ready    atomic.Bool

	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.BudgetService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       2 * time.Minute,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       2 * time.Minute,
		},
		svc:      svc,
		logger:   logger,
		tracer:   trace.New(extractClientIP),
		limiter:  newRateLimiter(opts.RateLimit),
		security: &securityMetrics{},
	}
	s.Handler = s.routes()
	s.ready.Store(true)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Handler)
	r.Use(log.Middleware(s.logger, trace.RequestID))
	r.Use(s.securityHeaders)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w, r)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/months", s.handleMonths)
		r.Route("/months/{month}", func(r chi.Router) {
			r.Get("/", s.handleMonthView)
			r.Get("/summary", s.handleMonthSummary)
			r.Get("/transactions", s.handleMonthTransactions)
			r.Get("/budget", s.handleBudgetReport)
			r.Put("/budget", s.handleSetBudget)
			r.Route("/transactions/{txID}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteTransaction)
				r.Get("/explain", s.handleExplain)
				r.Post("/move", s.handleMove)
				r.Put("/category", s.handleSetCategory)
				r.Delete("/category", s.handleClearOverride)
			})
		})

		r.Get("/view", s.handleView)
		r.Get("/trends", s.handleTrends)
		r.Get("/compare", s.handleCompare)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleCategories)
			r.Post("/", s.handleAddCategory)
			r.Put("/{category}", s.handleRenameCategory)
			r.Delete("/{category}", s.handleDeleteCategory)
			r.Get("/{category}/analysis", s.handleCategoryAnalysis)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleRules)
			r.Post("/", s.handleAddRule)
			r.Post("/apply-deletes", s.handleApplyDeleteRules)
			r.Put("/{id}", s.handleUpdateRule)
			r.Put("/{id}/active", s.handleSetRuleActive)
			r.Delete("/{id}", s.handleDeleteRule)
		})

		r.Get("/settings/income", s.handleIncomeSettings)
		r.Put("/settings/income", s.handleSetIncomeSettings)

		r.Post("/import", s.handleImport)
		r.Get("/export", s.handleExport)
		r.Post("/restore", s.handleRestore)
		r.Post("/reset", s.handleReset)
	})

	return r
}

// Shutdown stops accepting requests and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.ready.Store(false)
		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics is the /metrics payload.
type Metrics struct {
	Requests        int64           `json:"requests"`
	ClientErrors    int64           `json:"clientErrors"`
	FailedRequests  int64           `json:"failedRequests"`
	AvgResponseTime string          `json:"avgResponseTime"`
	Security        SecurityMetrics `json:"security"`
}

// Metrics returns request and security counters.
func (s *Server) Metrics() Metrics {
	st := s.tracer.Stats()
	return Metrics{
		Requests:        st.Requests,
		ClientErrors:    st.ClientErrors,
		FailedRequests:  st.ServerErrors,
		AvgResponseTime: st.Mean().String(),
		Security:        s.security.snapshot(),
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	OK(map[string]string{"status": "ok"}).Write(w, r)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		ErrorResponse(http.StatusServiceUnavailable, "shutting down").Write(w, r)
		return
	}
	OK(map[string]any{"status": "ready", "months": len(s.svc.Months())}).Write(w, r)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	OK(s.Metrics()).Write(w, r)
}
