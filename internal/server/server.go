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

	"github.com/tradeyard/riskcore/internal/circuitbreaker"
	"github.com/tradeyard/riskcore/internal/config"
	"github.com/tradeyard/riskcore/internal/engine"
	"github.com/tradeyard/riskcore/internal/fusion"
	"github.com/tradeyard/riskcore/internal/ledger"
	"github.com/tradeyard/riskcore/internal/logging"
	"github.com/tradeyard/riskcore/internal/metrics"
	"github.com/tradeyard/riskcore/internal/outcomes"
	"github.com/tradeyard/riskcore/internal/predict"
	"github.com/tradeyard/riskcore/internal/ratelimit"
	"github.com/tradeyard/riskcore/internal/risk"
	"github.com/tradeyard/riskcore/internal/rules"
	"github.com/tradeyard/riskcore/internal/security"
	"github.com/tradeyard/riskcore/internal/training"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg       *config.Config
	engine    *engine.Engine
	scorer    *predict.Scorer
	scheduler *training.Scheduler
	outcomes  outcomes.Store
	limiter   *ratelimit.Limiter
	mem       *ledger.Memory // non-nil in memory mode, used by tests to seed data
	db        *sql.DB        // nil if using in-memory
	router    *gin.Engine
	httpSrv   *http.Server
	logger    *slog.Logger

	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		outcomeStore  outcomes.Store
		decisionStore engine.DecisionStore
		tradeBook     tradeReads
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

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		pg := ledger.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate trade ledger", "error", err)
		}
		tradeBook = pg

		ocs := outcomes.NewPostgresStore(db)
		if err := ocs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate outcome store", "error", err)
		}
		outcomeStore = ocs

		dcs := engine.NewPostgresDecisionStore(db)
		if err := dcs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate decision store", "error", err)
		}
		decisionStore = dcs
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.mem = ledger.NewMemory()
		tradeBook = s.mem
		outcomeStore = outcomes.NewMemoryStore()
		decisionStore = engine.NewMemoryDecisionStore()
	}
	s.outcomes = outcomeStore

	// Predictive tier: scorer over the active snapshot
	s.scorer = predict.NewScorer(tradeBook, predict.DefaultSnapshot())

	// Rule tier
	checker := rules.NewChecker(tradeBook, tradeBook, tradeBook, tradeBook, rules.Config{
		WashTradeWindow: cfg.WashTradeWindow,
	}, s.logger)
	ruleScorer := fusion.NewRuleScorer(tradeBook, 0, cfg.BaseCreditLimit)

	// Circuit breaker guarding the predictive tier
	breaker := circuitbreaker.New(cfg.BreakerFailureThreshold, cfg.BreakerTimeout)

	fusionCfg := fusion.Config{
		RuleWeight: cfg.RuleWeight,
		MLWeight:   cfg.MLWeight,
		WarnFloor:  cfg.WarnFloor,
		PassFloor:  cfg.PassFloor,
	}
	if err := fusionCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fusion config: %w", err)
	}

	s.engine = engine.New(checker, ruleScorer, s.scorer, breaker, fusionCfg,
		engine.WithLogger(s.logger),
		engine.WithDecisionStore(decisionStore),
		engine.WithOutcomeStore(outcomeStore),
	)

	// Retraining pipeline
	trainCfg := training.DefaultConfig()
	trainCfg.MinSamples = cfg.MinTrainingSamples
	trainCfg.AccuracyFloor = cfg.AccuracyFloor
	trainCfg.AccuracyAlert = cfg.AccuracyAlert
	collector := training.NewCollector(outcomeStore, tradeBook, trainCfg.MinSamples)
	trainer := training.NewTrainer(collector, s.scorer, trainCfg, s.logger)
	s.scheduler = training.NewScheduler(trainer, outcomeStore, trainCfg, s.logger)

	s.limiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		BurstSize:         cfg.RateLimitBurst,
		CleanupInterval:   time.Minute,
	})

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

// tradeReads is the union of read interfaces both tiers consume. Both
// ledger backends satisfy all four.
type tradeReads interface {
	risk.PositionReader
	risk.TradeReader
	risk.PartyDirectory
	risk.Blocklist
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

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// requireAdmin guards engine mutation endpoints. When ADMIN_SECRET is
// unset (development) the check is skipped.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin secret required",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.Use(s.limiter.Middleware())

	// Assessment and outcome recording
	v1.POST("/assess", s.assessHandler)
	v1.POST("/outcomes", s.recordOutcomeHandler)

	// Engine administration
	admin := v1.Group("/engine")
	admin.GET("/breaker", s.breakerStatusHandler)
	admin.GET("/snapshot", s.snapshotHandler)
	admin.Use(s.requireAdmin())
	{
		admin.POST("/breaker/reset", s.breakerResetHandler)
		admin.PUT("/breaker", s.breakerUpdateHandler)
		admin.PUT("/weights", s.weightsUpdateHandler)
		admin.POST("/retrain", s.retrainHandler)
	}
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}
	checks["breaker"] = s.engine.BreakerStatus().State

	status := "healthy"
	httpStatus := http.StatusOK
	if checks["database"] == "unhealthy" {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

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
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start the retraining scheduler
	if s.scheduler != nil {
		go s.scheduler.Start(runCtx)
	}

	// Export DB pool stats
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

	// Cancel the context for all background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop the retraining scheduler
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.logger.Info("retraining scheduler stopped")
	}

	if s.limiter != nil {
		s.limiter.Stop()
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

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
