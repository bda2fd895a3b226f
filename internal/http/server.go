package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 2 * time.Minute
)

// appMetrics counts domain activity for /metrics.
type appMetrics struct {
	uptime              time.Time
	transactionsCreated int64
	goalContributions   int64
}

type Server struct {
	http.Server
	app    *backend.Backend
	logger *log.Logger
	events *log.StructuredLogger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

// apiFunc is a handler that reports failures by returning them.
type apiFunc func(w http.ResponseWriter, r *http.Request) error

// NewServer wires routes and middleware around app, returning a ready-to-run
// server. logger may be nil.
func NewServer(addr string, app *backend.Backend, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		app:              app,
		logger:           logger,
		events:           log.NewStructuredLogger(logger),
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		appMetrics:       appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.rateLimitKey, isWrite, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("POST /api/transactions", s.api(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions", s.api(s.handleListTransactions))
	mux.Handle("GET /api/transactions/recent", s.api(s.handleRecentTransactions))
	mux.Handle("GET /api/transactions/analytics", s.api(s.handleTransactionAnalytics))
	mux.Handle("DELETE /api/transactions/bulk", s.api(s.handleBulkDeleteTransactions))
	mux.Handle("GET /api/transactions/{id}", s.api(s.handleGetTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.api(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.api(s.handleDeleteTransaction))
	mux.Handle("POST /api/transactions/{id}/duplicate", s.api(s.handleDuplicateTransaction))

	mux.Handle("POST /api/accounts", s.api(s.handleCreateAccount))
	mux.Handle("GET /api/accounts", s.api(s.handleListAccounts))
	mux.Handle("GET /api/accounts/{id}", s.api(s.handleGetAccount))
	mux.Handle("PUT /api/accounts/{id}", s.api(s.handleUpdateAccount))
	mux.Handle("DELETE /api/accounts/{id}", s.api(s.handleDeleteAccount))
	mux.Handle("PUT /api/accounts/{id}/balance", s.api(s.handleOverrideBalance))

	mux.Handle("POST /api/budgets", s.api(s.handleCreateBudget))
	mux.Handle("GET /api/budgets", s.api(s.handleListBudgets))
	mux.Handle("GET /api/budgets/analytics", s.api(s.handleBudgetAnalytics))
	mux.Handle("GET /api/budgets/{id}", s.api(s.handleGetBudget))
	mux.Handle("PUT /api/budgets/{id}", s.api(s.handleUpdateBudget))
	mux.Handle("DELETE /api/budgets/{id}", s.api(s.handleDeleteBudget))

	mux.Handle("POST /api/goals", s.api(s.handleCreateGoal))
	mux.Handle("GET /api/goals", s.api(s.handleListGoals))
	mux.Handle("GET /api/goals/{id}", s.api(s.handleGetGoal))
	mux.Handle("PUT /api/goals/{id}", s.api(s.handleUpdateGoal))
	mux.Handle("DELETE /api/goals/{id}", s.api(s.handleDeleteGoal))
	mux.Handle("POST /api/goals/{id}/contribute", s.api(s.handleContribute))

	mux.Handle("POST /api/recurring", s.api(s.handleCreateRecurring))
	mux.Handle("GET /api/recurring", s.api(s.handleListRecurring))
	mux.Handle("GET /api/recurring/{id}", s.api(s.handleGetRecurring))
	mux.Handle("PUT /api/recurring/{id}", s.api(s.handleUpdateRecurring))
	mux.Handle("DELETE /api/recurring/{id}", s.api(s.handleDeleteRecurring))

	mux.Handle("GET /api/users/profile", s.api(s.handleGetProfile))
	mux.Handle("PUT /api/users/profile", s.api(s.handleUpdateProfile))
}

// api authenticates the caller and turns a returned error into the matching
// status and envelope.
func (s *Server) api(fn apiFunc) http.Handler {
	return requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	ctx := r.Context()
	if kind == core.KindUpstream {
		s.events.LogError(ctx, "Request failed", err, log.ComponentHTTP, r.Method,
			log.NewFields().WithUser(userID(r)).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, ""))
	} else {
		log.FromContext(ctx).DebugContext(ctx, "Request rejected",
			log.FieldErrorKind, kind,
			log.FieldError, err.Error(),
			log.FieldPath, r.URL.Path)
	}
	ErrorResponse(err).Write(w)
}

// rateLimitKey limits per caller when known, per client IP otherwise.
func (s *Server) rateLimitKey(r *http.Request) string {
	if id := r.Header.Get(UserIDHeader); validUserID.MatchString(id) {
		return "user:" + id
	}
	return "ip:" + s.securityDetector.ExtractClientIP(r)
}

func isWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Shutdown gracefully shuts down the server and its background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) countTransaction() {
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
}
