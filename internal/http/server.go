package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"depenses/internal/cache"
	"depenses/internal/core"
	"depenses/internal/log"
	"depenses/internal/middleware/ratelimit"
	"depenses/internal/middleware/security"
	"depenses/internal/middleware/trace"
	"depenses/internal/services"
	"depenses/internal/view"
)

// ExpenseService is what the handlers need from the service layer.
// services.ExpenseService implements it.
type ExpenseService interface {
	Create(ctx context.Context, n core.NewExpense) (core.Expense, error)
	Get(ctx context.Context, id string) (core.Expense, error)
	Update(ctx context.Context, id string, p core.ExpensePatch) (core.Expense, error)
	ClearBalance(ctx context.Context, id string) (core.Expense, error)
	Delete(ctx context.Context, id string) error
	RenameLabel(ctx context.Context, oldLabel, newLabel string) (services.LabelResult, error)
	DeleteByLabel(ctx context.Context, label string) (services.LabelResult, error)
	Labels(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context) ([]core.Expense, error)
	ViewSession(ctx context.Context, q view.Query, sess view.Session) (view.Result, view.Session, error)
	Ping(ctx context.Context) error
}

// ServerConfig holds the tunables of the HTTP server.
type ServerConfig struct {
	Addr               string
	RateLimitPerMinute int
	SessionTTL         time.Duration
	SessionCapacity    int
	Logger             *log.Logger
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Addr == "" {
		c.Addr = ":8081"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.SessionCapacity <= 0 {
		c.SessionCapacity = 1000
	}
	if c.Logger == nil {
		c.Logger = log.New(log.DefaultConfig())
	}
	return c
}

// Server is the JSON API.
type Server struct {
	http.Server
	svc      ExpenseService
	logger   *log.Logger
	sessions *sessionStore

	cacheManager *cache.Manager
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware

	// now is replaced in tests.
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware around svc.
func NewServer(svc ExpenseService, cfg ServerConfig) *Server {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		svc:          svc,
		logger:       logger,
		sessions:     newSessionStore(cfg.SessionCapacity, cfg.SessionTTL),
		cacheManager: cache.NewManager(logger),
		detector:     security.NewDetector(),
		now:          time.Now,
	}
	s.cacheManager.Register(s.sessions.cache)
	s.cacheManager.StartCleanup(cleanupInterval(cfg.SessionTTL))
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
		handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(handler)
	}
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if d := ttl / 4; d > time.Minute {
		return min(d, 10*time.Minute)
	}
	return time.Minute
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("POST /api/expenses/{id}/clear-balance", s.handleClearBalance)

	mux.HandleFunc("GET /api/labels", s.handleListLabels)
	mux.HandleFunc("PUT /api/labels/{label}", s.handleRenameLabel)
	mux.HandleFunc("DELETE /api/labels/{label}", s.handleDeleteLabel)

	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("POST /api/view/pages", s.handleViewPages)
	mux.HandleFunc("POST /api/view/accordion", s.handleViewAccordion)

	mux.HandleFunc("GET /api/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).Warn("Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// Metrics summarises request, rate limit and security counters.
type Metrics struct {
	Requests       trace.Metrics
	RateLimit      ratelimit.Metrics
	Security       security.DetectionMetrics
	ActiveSessions int
}

func (s *Server) Metrics() Metrics {
	m := Metrics{
		Requests:       s.tracer.GetMetrics(),
		Security:       s.detector.GetMetrics(),
		ActiveSessions: s.sessions.cache.Size(),
	}
	if s.limiter != nil {
		m.RateLimit = s.limiter.GetMetrics()
	}
	return m
}

// Shutdown stops accepting requests, waits for in-flight ones and stops the
// background cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.cacheManager.Stop()
		m := s.Metrics()
		s.logger.Info("HTTP server stopped",
			"requests", m.Requests.TotalRequests,
			"server_errors", m.Requests.ServerErrors,
			"rate_limit_hits", m.RateLimit.TotalHits,
			"suspicious_requests", m.Security.SuspiciousRequests)
	})
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
