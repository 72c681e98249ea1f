// Package api exposes scan jobs and exports over HTTP.
//
//	@title						portwatch API
//	@version					1.0
//	@description				Start port scans, follow their progress and export the results.
//	@BasePath					/api
//	@securityDefinitions.apikey	CallerID
//	@in							header
//	@name						X-Caller-ID
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"portwatch/config"
	_ "portwatch/docs"
	"portwatch/export"
	"portwatch/jobs"
	"portwatch/logging"
	"portwatch/metrics"
	"portwatch/scanner"
)

const defaultStreamInterval = 500 * time.Millisecond

// Options wires the server to its collaborators. History, Redis and Metrics
// are optional.
type Options struct {
	Jobs     *jobs.Orchestrator
	Exports  *export.Service
	History  export.HistoryReader
	Identity IdentityProvider
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Redis backs the rate limiter when RateLimit is positive.
	Redis      *redis.Client
	RateLimit  int64
	RateWindow time.Duration

	// StreamInterval is how often the live stream polls a job.
	StreamInterval time.Duration
}

// Server bundles dependencies for HTTP handlers.
type Server struct {
	jobs           *jobs.Orchestrator
	exports        *export.Service
	history        export.HistoryReader
	identity       IdentityProvider
	metrics        *metrics.Metrics
	logger         *slog.Logger
	redis          *redis.Client
	rateLimit      int64
	rateWindow     time.Duration
	streamInterval time.Duration
}

// NewServer creates a new API server instance.
func NewServer(opts Options) *Server {
	s := &Server{
		jobs:           opts.Jobs,
		exports:        opts.Exports,
		history:        opts.History,
		identity:       opts.Identity,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		redis:          opts.Redis,
		rateLimit:      opts.RateLimit,
		rateWindow:     opts.RateWindow,
		streamInterval: opts.StreamInterval,
	}
	if s.identity == nil {
		s.identity = HeaderIdentity{}
	}
	if s.logger == nil {
		s.logger = logging.Logger()
	}
	s.logger = s.logger.With("component", "api")
	if s.streamInterval <= 0 {
		s.streamInterval = defaultStreamInterval
	}
	if s.rateWindow <= 0 {
		s.rateWindow = time.Minute
	}
	return s
}

// Handler builds the gin engine with middleware and every route.
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestLoggingMiddleware(s.logger),
		MetricsMiddleware(s.metrics),
		SecurityHeadersMiddleware(),
		IdentityMiddleware(s.identity),
	)
	s.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches handlers to the provided Gin engine.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", s.healthHandler)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	if s.redis != nil && s.rateLimit > 0 {
		api.Use(RateLimitMiddleware(s.redis, s.rateLimit, s.rateWindow, s.logger))
	}

	api.POST("/scans", s.startScanHandler)
	api.GET("/scans", s.listScansHandler)
	api.GET("/scans/:id", s.getScanHandler)
	api.GET("/scans/:id/status", s.scanStatusHandler)
	api.POST("/scans/:id/stop", s.stopScanHandler)
	api.GET("/scans/:id/stream", s.streamScanHandler)
	api.POST("/scans/:id/export", s.exportScanHandler)

	api.GET("/exports", s.listExportsHandler)
	api.GET("/exports/:id/download", s.downloadExportHandler)

	api.GET("/dashboard", s.dashboardHandler)
	api.GET("/local-ip", s.localIPHandler)
}

// Run initializes dependencies from cfg and serves the API until ctx is
// cancelled, then drains requests and stops running scans.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := logging.Logger()
	gin.SetMode(gin.ReleaseMode)

	m := metrics.New()

	var (
		redisClient *redis.Client
		history     export.HistoryReader
		sink        export.HistorySink
	)
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		store := export.NewRedisHistory(redisClient)
		history, sink = store, store
	}

	prober, err := scanner.Setup(cfg.Scanner.Mode, cfg.Scanner.ProbesFile)
	if err != nil {
		return err
	}

	orchestrator := jobs.New(prober, jobs.Config{
		DefaultWorkers: cfg.Scanner.DefaultWorkers,
		MaxWorkers:     cfg.Scanner.MaxWorkers,
		DefaultTimeout: cfg.Scanner.Timeout,
		Metrics:        m,
	})
	exports := export.NewService(export.NewExporter(cfg.Export.Dir), sink, m)

	server := NewServer(Options{
		Jobs:       orchestrator,
		Exports:    exports,
		History:    history,
		Metrics:    m,
		Logger:     logger,
		Redis:      redisClient,
		RateLimit:  cfg.Server.RateLimit,
		RateWindow: cfg.Server.RateWindow,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting portwatch API server", "addr", cfg.Server.Addr, "redis", cfg.Redis.Enabled, "mode", cfg.Scanner.Mode)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down portwatch API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	return orchestrator.Shutdown(shutdownCtx)
}
