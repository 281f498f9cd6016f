package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hfanalytics/internal/config"
	"github.com/ehr/hfanalytics/internal/domain/dashboard"
	"github.com/ehr/hfanalytics/internal/domain/dataset"
	"github.com/ehr/hfanalytics/internal/platform/auth"
	"github.com/ehr/hfanalytics/internal/platform/db"
	"github.com/ehr/hfanalytics/internal/platform/middleware"
	"github.com/ehr/hfanalytics/internal/platform/source"
	"github.com/ehr/hfanalytics/internal/platform/telemetry"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "hf-server",
		Short:        "Heart failure cohort analytics API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(synthCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the analytics API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newLogger builds the process logger. Development gets the console writer.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// loadConfig reads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openLoader opens the configured dataset source. The returned pool is nil
// unless the source is postgres; the caller closes it.
func openLoader(ctx context.Context, cfg *config.Config) (source.Loader, *pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		var err error
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, db.ReadOnly(), db.ApplicationName("hf-server"))
		if err != nil {
			return nil, nil, err
		}
	}
	loader, err := source.Open(source.Config{
		Kind:   cfg.DatasetSource,
		Path:   cfg.DatasetPath,
		Schema: cfg.DatasetSchema,
		Pool:   pool,
	})
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, err
	}
	return loader, pool, nil
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Leeway:     30 * time.Second,
		Skipper:    auth.AuthSkipper,
	}
}

// server holds what newServer wires so that tests can drive the router.
type server struct {
	echo      *echo.Echo
	snapshots *source.Cache
	metrics   *telemetry.Provider
}

func newServer(cfg *config.Config, loader source.Loader, pool *pgxpool.Pool, logger zerolog.Logger) (*server, error) {
	metrics := telemetry.NewProvider(telemetry.Config{ProcessCollectors: true})
	snapshots := source.NewCache(loader, logger, metrics)

	svc, err := dashboard.NewService(snapshots, dashboard.ServiceConfig{
		CacheSize: cfg.DashboardCacheSize,
		Recorder:  metrics,
	}, logger)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-None-Match", "X-Request-ID"},
		ExposeHeaders: []string{"ETag", "X-Request-ID", "X-RateLimit-Limit", "Retry-After"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtConfig(cfg)))
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	rateLimitCfg.BurstSize = cfg.RateLimitBurst

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	apiV1.Use(middleware.ETag(middleware.DefaultETagConfig()))

	dashboard.NewHandler(svc).RegisterRoutes(apiV1)

	// Health and metrics endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/dataset", dashboard.HealthHandler(snapshots))
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(db.NewChecker(pool), cfg.DatasetSchema))
	}
	e.GET("/metrics", metrics.PrometheusHandler())

	return &server{echo: e, snapshots: snapshots, metrics: metrics}, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	loader, pool, err := openLoader(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open dataset source")
	}
	if pool != nil {
		defer pool.Close()
		logger.Info().Str("schema", cfg.DatasetSchema).Msg("connected to database")
	}

	srv, err := newServer(cfg, loader, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// A dataset that cannot be loaded at startup is fatal. Later reload
	// failures only fail the requests that hit them.
	if _, err := srv.snapshots.Snapshot(ctx); err != nil {
		var loadErr *dataset.LoadError
		if errors.As(err, &loadErr) {
			logger.Fatal().Str("source", loadErr.Source).Str("sheet", loadErr.Sheet).Err(loadErr.Err).Msg("failed to load dataset")
		}
		logger.Fatal().Err(err).Msg("failed to load dataset")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
