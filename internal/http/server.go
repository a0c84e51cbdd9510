package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"balancio/internal/auth"
	"balancio/internal/cache"
	"balancio/internal/ledger"
	"balancio/internal/log"
	"balancio/internal/middleware/ratelimit"
	"balancio/internal/middleware/security"
	"balancio/internal/middleware/trace"
	"balancio/internal/ofx"
	"balancio/internal/realtime"
	"balancio/internal/services"
)

// Services are the collaborators the handlers call.
type Services struct {
	Store        ledger.Store
	Auth         *services.AuthService
	Budgets      *services.BudgetService
	Transactions *services.TransactionService
	Categories   *services.CategoryService
	Profiles     *services.ProfileService
	Tokens       *auth.Tokens
	Broker       *auth.Broker
	Hub          *realtime.Hub
	Statements   *ofx.Parser
	// Dashboards is reported by the readiness and metrics endpoints.
	Dashboards *cache.LRUCache[services.Evaluation]
}

// Options tune the middleware chain.
type Options struct {
	Addr           string
	AllowedOrigins []string
	TrustedProxies []string
	RateLimit      int
	Logger         *log.Logger
}

type Server struct {
	http.Server
	svc    Services
	logger *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	startedAt        time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(opts Options, svc Services) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		svc:         svc,
		logger:      logger,
		startedAt:   time.Now(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimit}),
	}
	s.securityDetector = security.NewDetector(logger)
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, ratelimit.Mutating, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})(handler)
	handler = security.CORS(opts.AllowedOrigins)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("POST /api/auth/logout", s.authed(s.handleLogout))
	mux.HandleFunc("GET /api/auth/oauth/{provider}/start", s.handleOAuthStart)
	mux.HandleFunc("GET /api/auth/oauth/{provider}/callback", s.handleOAuthCallback)
	mux.HandleFunc("GET /api/auth/oauth/wait", s.handleOAuthWait)

	mux.Handle("GET /api/users/profile", s.authed(s.handleGetProfile))
	mux.Handle("PUT /api/users/profile", s.authed(s.handleUpdateProfile))
	mux.Handle("GET /api/users/budget/alerts", s.authed(s.handleAlertDiagnostics))

	mux.Handle("GET /api/budget", s.authed(s.handleGetBudget))
	mux.Handle("PUT /api/budget", s.authed(s.handleSaveBudget))
	mux.Handle("DELETE /api/budget", s.authed(s.handleDeleteBudget))
	mux.Handle("GET /api/budget/overview", s.authed(s.handleBudgetOverview))
	mux.Handle("POST /api/test/budget-alerts", s.authed(s.handleTestBudgetAlert))

	mux.Handle("GET /api/transactions", s.authed(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.authed(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions/export", s.authed(s.handleExportTransactions))
	mux.Handle("POST /api/transactions/import", s.authed(s.handleImportTransactions))
	mux.Handle("GET /api/transactions/{id}", s.authed(s.handleGetTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.authed(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.authed(s.handleDeleteTransaction))

	mux.Handle("GET /api/categories", s.authed(s.handleListCategories))
	mux.Handle("POST /api/categories", s.authed(s.handleCreateCategory))
	mux.Handle("PUT /api/categories/{id}", s.authed(s.handleUpdateCategory))
	mux.Handle("DELETE /api/categories/{id}", s.authed(s.handleDeleteCategory))

	mux.Handle("GET /api/dashboard", s.authed(s.handleDashboard))
	mux.Handle("GET /api/ws", s.authed(s.handleWebSocket))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such endpoint").Write(w)
	})
}

// Shutdown stops the background routines and then the HTTP server. Only the
// first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		if s.svc.Hub != nil {
			s.svc.Hub.Close()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// fail logs err at a level matching its status and writes the response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorFrom(err)
	logger := log.FromContext(r.Context())
	if statusFor(err) == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldOperation, op, log.FieldError, err)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err)
	}
	resp.Write(w)
}
