package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"fincon/internal/auth"
	"fincon/internal/ledger"
	applog "fincon/internal/log"
	"fincon/internal/middleware/ratelimit"
	"fincon/internal/middleware/security"
	"fincon/internal/middleware/trace"
	"fincon/internal/services"
)

// Options configures NewServer. Zero values select defaults.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *applog.Logger
	// Ready backs /readyz. nil means always ready.
	Ready func(ctx context.Context) error
	// Heartbeat is the comment interval on event streams.
	Heartbeat time.Duration
}

type Server struct {
	http.Server
	identity  auth.Provider
	ledger    *ledger.Ledger
	accounts  *services.AccountService
	ready     func(ctx context.Context) error
	heartbeat time.Duration

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	// Request contexts derive from base; cancelling it ends open streams
	// so Shutdown is not held up by them.
	cancelBase   context.CancelFunc
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options, identity auth.Provider, l *ledger.Ledger, accounts *services.AccountService) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		identity:   identity,
		ledger:     l,
		accounts:   accounts,
		ready:      opts.Ready,
		heartbeat:  heartbeat,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:   security.NewDetector(),
		cancelBase: cancel,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/auth/signup", s.handleSignup)
	api.HandleFunc("POST /api/auth/login", s.handleLogin)
	api.HandleFunc("POST /api/auth/reset", s.handleResetPassword)
	api.HandleFunc("POST /api/auth/reset/confirm", s.handleConfirmReset)
	api.HandleFunc("POST /api/auth/logout", s.handleLogout)

	api.Handle("GET /api/transactions", s.requireAuth(s.handleListTransactions, false))
	api.Handle("POST /api/transactions", s.requireAuth(s.handleCreateTransaction, false))
	api.Handle("PUT /api/transactions/{id}", s.requireAuth(s.handleUpdateTransaction, false))
	api.Handle("DELETE /api/transactions/{id}", s.requireAuth(s.handleDeleteTransaction, false))
	api.Handle("GET /api/transactions/stream", s.requireAuth(s.handleStream, true))
	api.Handle("GET /api/summary", s.requireAuth(s.handleSummary, false))
	api.Handle("GET /api/profile", s.requireAuth(s.handleGetProfile, false))
	api.Handle("DELETE /api/profile", s.requireAuth(s.handleDeleteProfile, false))

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", limited)

	var handler http.Handler = mux
	handler = s.detector.Middleware(false)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = applog.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	return s
}

// Shutdown ends open streams, stops background goroutines and gracefully
// shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cancelBase()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics is a point-in-time view of the middleware counters.
type Metrics struct {
	Requests           int64
	ServerErrors       int64
	RateLimitHits      int64
	SuspiciousRequests int64
}

func (s *Server) Metrics() Metrics {
	t := s.tracer.GetMetrics()
	return Metrics{
		Requests:           t.TotalRequests,
		ServerErrors:       t.ServerErrors,
		RateLimitHits:      s.limiter.GetMetrics().TotalHits,
		SuspiciousRequests: s.detector.GetMetrics().SuspiciousRequests,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
