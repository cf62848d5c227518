// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
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
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/mbd888/fraudscore/internal/config"
	"github.com/mbd888/fraudscore/internal/features"
	"github.com/mbd888/fraudscore/internal/feed"
	"github.com/mbd888/fraudscore/internal/health"
	"github.com/mbd888/fraudscore/internal/history"
	"github.com/mbd888/fraudscore/internal/inference"
	"github.com/mbd888/fraudscore/internal/logging"
	"github.com/mbd888/fraudscore/internal/metrics"
	"github.com/mbd888/fraudscore/internal/model"
	"github.com/mbd888/fraudscore/internal/ratelimit"
	"github.com/mbd888/fraudscore/internal/scoring"
	"github.com/mbd888/fraudscore/internal/security"
)

// Version is reported by /health and /.
const Version = "0.1.0"

const (
	defaultDrainDelay = 5 * time.Second
	dbStatsInterval   = 15 * time.Second
	maxRequestIDLen   = 128
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	artifacts    *model.Artifacts
	modelInfo    scoring.ModelInfo
	scoring      *scoring.Service
	handler      *scoring.Handler
	feedHub      *feed.Hub
	history      *history.Guard // nil when HISTORY_BACKEND=none
	redis        *redis.Client  // nil unless HISTORY_BACKEND=redis
	db           *sql.DB        // nil if using in-memory audit
	health       *health.Registry
	rateLimiter  *ratelimit.Limiter
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	drainDelay   time.Duration
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

// WithArtifacts uses already loaded model artifacts instead of reading
// MODEL_PATH and ENCODERS_PATH (for testing)
func WithArtifacts(a *model.Artifacts) Option {
	return func(s *Server) {
		s.artifacts = a
	}
}

// WithDrainDelay sets how long Shutdown waits for load balancers to stop
// sending traffic before closing listeners
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance. It fails when the model artifacts
// cannot be loaded or a configured backend is unreachable.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: defaultDrainDelay,
		health:     health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Model artifacts are loaded once and shared read-only by every request
	if s.artifacts == nil {
		arts, err := model.Load(cfg.ModelPath, cfg.EncodersPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load model artifacts: %w", err)
		}
		s.artifacts = arts
	}
	info := s.artifacts.Classifier.Info()
	s.logger.Info("model loaded",
		"kind", info.Kind,
		"version", info.Version,
		"features", info.NumFeatures,
		"encoders", s.artifacts.Encoders.Columns(),
	)

	adapter, err := inference.NewAdapter(s.artifacts,
		inference.WithThresholds(inference.Thresholds{
			High:   cfg.HighRiskThreshold,
			Medium: cfg.MediumRiskThreshold,
		}),
		inference.WithFallbackCode(cfg.UnknownCategoryCode),
		inference.WithLocale(cfg.RiskLabelLocale),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure classifier: %w", err)
	}

	// Audit storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var store scoring.Store
	if cfg.DatabaseURL != "" {
		db, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.db = db

		pgStore := scoring.NewPostgresStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate scored transactions store", "error", err)
		}
		store = pgStore
		s.health.Register("database", health.PingChecker("database", pgStore))
		s.logger.Info("using PostgreSQL audit storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		store = scoring.NewMemoryStore()
		s.logger.Info("using in-memory audit storage")
	}

	// Customer history
	provider, err := s.historyProvider(ctx)
	if err != nil {
		return nil, err
	}

	var deriverOpts []features.Option
	serviceOpts := []scoring.Option{
		scoring.WithStore(store),
		scoring.WithModelVersion(info.Version),
	}
	if provider != nil {
		s.history = history.NewGuard(provider, s.logger, history.WithName(cfg.HistoryBackend))
		deriverOpts = append(deriverOpts, features.WithHistory(s.history))
		if cfg.HistoryRecord {
			serviceOpts = append(serviceOpts, scoring.WithRecorder(s.history))
		}
		s.health.Register(cfg.HistoryBackend, health.PingChecker(cfg.HistoryBackend, s.history))
		s.logger.Info("customer history enabled",
			"backend", cfg.HistoryBackend,
			"record", cfg.HistoryRecord,
		)
	}

	// Live prediction feed
	s.feedHub = feed.NewHub(s.logger)
	serviceOpts = append(serviceOpts, scoring.WithPublisher(s.feedHub))

	s.scoring = scoring.NewService(features.NewDeriver(deriverOpts...), adapter, serviceOpts...)

	s.modelInfo = scoring.ModelInfo{
		Info:         info,
		Encoders:     s.artifacts.Encoders.Sizes(),
		Thresholds:   adapter.Thresholds(),
		FallbackCode: adapter.FallbackCode(),
		Locale:       adapter.Locale(),
		RiskLabels:   inference.Labels(adapter.Locale()),
	}
	s.handler = scoring.NewHandler(s.scoring,
		scoring.WithModelInfo(s.modelInfo),
		scoring.WithLocale(cfg.RiskLabelLocale),
		scoring.WithStrictStatusCodes(cfg.StrictStatusCodes),
	)
	s.health.Register("model", health.StaticChecker("model", info.Kind+" "+info.Version))

	if cfg.RateLimitRPM > 0 {
		s.rateLimiter = ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitRPM,
			BurstSize:         cfg.RateLimitBurst,
			CleanupInterval:   time.Minute,
		})
	}

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

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// historyProvider builds the configured history backend. It returns nil
// for HISTORY_BACKEND=none.
func (s *Server) historyProvider(ctx context.Context) (history.Provider, error) {
	switch s.cfg.HistoryBackend {
	case config.HistoryMemory:
		return history.NewMemoryProvider(), nil

	case config.HistoryRedis:
		client, err := history.Connect(ctx, s.cfg.RedisURL, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redis = client
		s.logger.Info("using redis customer history", "url", maskDSN(s.cfg.RedisURL))
		return history.NewRedisProvider(client, s.cfg.HistoryTTL), nil

	case config.HistoryPostgres:
		if s.db == nil {
			return nil, errors.New("postgres history requires DATABASE_URL")
		}
		return history.NewPostgresProvider(s.db, s.cfg.HistoryTTL), nil

	default:
		return nil, nil
	}
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

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(security.BodyLimitMiddleware(s.cfg.MaxBodyBytes))

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
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}

		// Log level based on status code
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
			attrs = append(attrs, "client_ip", c.ClientIP())
		case status >= 400:
			level = slog.LevelWarn
		}
		logging.L(c.Request.Context()).Log(c.Request.Context(), level, "request completed", attrs...)
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/", s.infoHandler)

	// Live prediction feed
	s.router.GET("/ws/feed", gin.WrapF(s.feedHub.HandleWebSocket))

	// Scoring routes are rate limited; health checks and metrics are not
	var scoringMW []gin.HandlerFunc
	if s.rateLimiter != nil {
		scoringMW = append(scoringMW, s.rateLimiter.Middleware())
	}

	// Original path kept for existing clients
	s.handler.RegisterLegacyRoutes(s.router.Group("", scoringMW...))

	v1 := s.router.Group("/v1", scoringMW...)
	s.handler.RegisterRoutes(v1)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
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

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "fraudscore",
		"version": Version,
		"model":   s.modelInfo.Version,
		"endpoints": gin.H{
			"predict": "POST /predict",
			"v1":      "POST /v1/predict",
			"model":   "GET /v1/model",
			"history": "GET /v1/customers/:customerId/predictions",
			"feed":    "GET /ws/feed",
			"health":  "GET /health",
			"metrics": "GET /metrics",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// startBackground launches the goroutines that live as long as ctx.
func (s *Server) startBackground(ctx context.Context) {
	go s.feedHub.Run(ctx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(ctx, s.db, dbStatsInterval)
	}
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
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

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"model_version", s.modelInfo.Version,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.startBackground(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		cancel()
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

	// Cancel the context for all background goroutines (feed hub, stats)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

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

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		} else {
			s.logger.Info("redis connection closed")
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
