package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/domain/patient"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/middleware"
	"github.com/ehr/records/internal/platform/telemetry"
)

// app bundles what every command needs: configuration, a logger, a loaded
// store and the service on top of it.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	repo    patient.Repository
	svc     *patient.Service
	check   db.CheckFunc
	limiter *middleware.RateLimiter
	close   func()
}

func newLogger(out io.Writer, cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// newApp loads configuration and opens the configured store. A store that
// cannot be read is an error; it is never replaced by an empty one.
func newApp(ctx context.Context, logOut io.Writer, metrics *telemetry.Metrics) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(logOut, cfg)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}),
		close: func() {},
	}

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		a.repo = patient.NewPGRepo(pool)
		a.check = db.PoolCheck(pool)
		a.close = pool.Close
	default:
		repo := patient.NewCSVRepo(cfg.StorePath, logger, metrics)
		a.repo = repo
		a.check = repo.Check
	}

	if err := a.repo.Load(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.svc = patient.NewService(a.repo, metrics)
	return a, nil
}

// cliApp is newApp for commands that log to stderr and keep stdout for
// their own output.
func cliApp(ctx context.Context) (*app, error) {
	return newApp(ctx, os.Stderr, nil)
}
