package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finsight/internal/auth"
	"finsight/internal/cache"
	"finsight/internal/insights"
	"finsight/internal/log"
	"finsight/internal/middleware/ratelimit"
	"finsight/internal/middleware/security"
	"finsight/internal/middleware/trace"
	"finsight/internal/objstore"
	"finsight/internal/services"
)

// Pinger reports whether a dependency is ready to serve.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API routes call into. Exporter, Objects and
// Ready may be nil.
type Deps struct {
	Auth     *auth.Service
	Finance  *services.Finance
	Exporter *services.Exporter
	Insights *insights.Service
	Bucket   objstore.Bucket
	Objects  http.Handler
	Realtime http.Handler
	Ready    Pinger
	Caches   *cache.Manager
	Logger   *log.Logger
}

type Options struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	TrustProxy         bool
}

type Server struct {
	http.Server
	deps        Deps
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, opts Options, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		deps:     deps,
		logger:   logger,
		detector: security.NewDetector(opts.TrustProxy, logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}, logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if deps.Objects != nil {
		mux.Handle("GET /objects/", http.StripPrefix("/objects/", deps.Objects))
	}

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)

	requireAuth := auth.Middleware(deps.Auth.Issuer(), logger)
	user := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}
	user("GET /api/auth/me", s.handleMe)

	user("GET /api/transactions", s.handleListTransactions)
	user("POST /api/transactions", s.handleCreateTransaction)
	user("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	user("GET /api/categories", s.handleListCategories)

	user("GET /api/goals", s.handleListGoals)
	user("POST /api/goals", s.handleCreateGoal)
	user("PATCH /api/goals/{id}", s.handleUpdateGoal)
	user("POST /api/goals/{id}/funds", s.handleAddFunds)
	user("DELETE /api/goals/{id}", s.handleDeleteGoal)

	user("GET /api/profile", s.handleGetProfile)
	user("PATCH /api/profile", s.handleUpdateProfile)
	user("POST /api/profile/avatar", s.handleUploadAvatar)
	user("DELETE /api/profile/avatar", s.handleDeleteAvatar)

	user("GET /api/summary", s.handleSummary)
	user("POST /api/ai-insights", s.handleInsights)
	user("POST /api/export/sheets", s.handleExport)

	if deps.Realtime != nil {
		mux.Handle("GET /api/realtime", requireAuth(deps.Realtime))
	}

	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, logger)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.detector.ExtractClientIP)(handler)
	handler = security.CORS(opts.AllowedOrigins)(handler)
	handler = headers.Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background cleanup and then the HTTP server. Realtime
// connections are hijacked and are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		if s.deps.Caches != nil {
			s.deps.Caches.Stop()
		}
		s.logger.InfoContext(ctx, "HTTP server shutting down", log.FieldOperation, log.OpShutdown)
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
