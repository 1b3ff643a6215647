// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/campuskit/campuskit/internal/auth"
	"github.com/campuskit/campuskit/internal/config"
	"github.com/campuskit/campuskit/internal/health"
	"github.com/campuskit/campuskit/internal/ledger"
	"github.com/campuskit/campuskit/internal/logging"
	"github.com/campuskit/campuskit/internal/metrics"
	"github.com/campuskit/campuskit/internal/payment"
	"github.com/campuskit/campuskit/internal/ratelimit"
	"github.com/campuskit/campuskit/internal/realtime"
	"github.com/campuskit/campuskit/internal/security"
	"github.com/campuskit/campuskit/internal/subscription"
	"github.com/campuskit/campuskit/internal/traces"
	"github.com/campuskit/campuskit/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	ledger       *ledger.Ledger
	subscription *subscription.Service
	processor    *payment.Processor
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter

	subHandler    *subscription.Handler
	ledgerHandler *ledger.Handler
	payHandler    *payment.Handler

	db            *sql.DB // nil if using in-memory
	health        *health.Registry
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc          // cancels background goroutines started in Run
	traceShutdown func(context.Context) error // flushes the tracer provider

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		settingsStore subscription.Store
		ledgerStore   ledger.Store
		intentStore   payment.IntentStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		pgSettings := subscription.NewPostgresStore(db)
		if err := pgSettings.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate settings store", "error", err)
		}
		settingsStore = pgSettings

		pgLedger := ledger.NewPostgresStore(db)
		if err := pgLedger.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate ledger store", "error", err)
		}
		ledgerStore = pgLedger

		pgIntents := payment.NewPostgresStore(db)
		if err := pgIntents.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate payment intent store", "error", err)
		}
		intentStore = pgIntents
	} else {
		s.logger.Warn("DATABASE_URL not set, using in-memory storage (data lost on restart)")
		settingsStore = subscription.NewMemoryStore()
		ledgerStore = ledger.NewMemoryStore()
		intentStore = payment.NewMemoryStore()
	}

	// Subsystem health checks surfaced by /health
	s.health = health.NewRegistry()
	if s.db != nil {
		s.health.Register("database", func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.health.Register("storage", func(context.Context) health.Status {
			return health.Status{Name: "storage", Healthy: true, Detail: "in-memory"}
		})
	}

	// Realtime hub: best-effort fan-out of committed changes
	s.realtimeHub = realtime.NewHub(s.logger)

	// Core services
	s.ledger = ledger.New(ledgerStore)
	s.subscription = subscription.NewService(settingsStore, s.ledger, s.realtimeHub, s.logger)

	// Payment gateway client
	var gw payment.Gateway
	if cfg.GatewayBaseURL != "" {
		if err := security.ValidateEndpointURL(cfg.GatewayBaseURL); err != nil && cfg.IsProduction() {
			return nil, fmt.Errorf("unsafe gateway URL: %w", err)
		}
		gw = payment.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewaySecret,
			time.Duration(cfg.GatewayTimeout)*time.Second)
		s.logger.Info("payment gateway configured", "url", cfg.GatewayBaseURL)
	} else {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("GATEWAY_BASE_URL is required in production")
		}
		gw = payment.StubGateway{}
		s.logger.Warn("no payment gateway configured, using local stub")
	}

	s.processor = payment.NewProcessor(intentStore, gw, payment.NewSigner(cfg.GatewaySecret),
		s.subscription, s.ledger, cfg.Currency, s.logger)

	// HTTP handlers
	s.subHandler = subscription.NewHandler(s.subscription, cfg.DefaultMonthlyPrice)
	s.ledgerHandler = ledger.NewHandler(s.ledger)
	s.payHandler = payment.NewHandler(s.processor)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		args := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed", args...)
		case status >= 400:
			logger.Warn("request completed", args...)
		default:
			logger.Info("request completed", args...)
		}
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health and observability
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")

	// Tenant-facing reads and payment flow. The subscription edit lives on
	// the same path as the read but behind the admin guard.
	s.subHandler.RegisterRoutes(v1, auth.AdminRequired(s.cfg.AdminSecret))
	s.ledgerHandler.RegisterRoutes(v1)
	s.payHandler.RegisterRoutes(v1)

	// Per-tenant realtime topic
	v1.GET("/subscription/:tenantId/ws", func(c *gin.Context) {
		topic := realtime.TenantTopic(c.Param("tenantId"))
		s.realtimeHub.ServeTopic(c.Writer, c.Request, topic, false)
	})

	// Admin console (shared secret)
	adminGroup := v1.Group("/admin", auth.AdminRequired(s.cfg.AdminSecret))
	s.subHandler.RegisterAdminRoutes(adminGroup)
	s.payHandler.RegisterAdminRoutes(adminGroup)
	adminGroup.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.ServeTopic(c.Writer, c.Request, realtime.TopicAdmin, true)
	})
	adminGroup.GET("/realtime/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}

	healthy, checks := s.health.CheckAll(c.Request.Context())
	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "time": time.Now().UTC(), "checks": checks})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and blocks until a shutdown signal or context
// cancellation, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.traceShutdown = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Sample DB pool stats into Prometheus
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Warn("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
