package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/domain/patient"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/middleware"
	"github.com/ehr/records/internal/platform/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the records API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// newServer builds the echo instance with middleware and routes mounted.
func newServer(a *app, tokens *auth.TokenManager) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", db.HealthHandler(a.cfg.StoreDriver, a.check))
	e.GET("/metrics", a.metrics.Handler())

	public := e.Group("", a.limiter.Middleware())
	api := e.Group("", auth.JWTMiddleware(tokens, auth.AuthSkipper))

	patient.NewHandler(a.svc, tokens).RegisterRoutes(public, api)
	return e
}

func runServer() error {
	metrics := telemetry.NewMetrics()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := newApp(ctx, os.Stdout, metrics)
	if err != nil {
		fallback := newLogger(os.Stdout, &config.Config{Env: os.Getenv("ENV"), LogLevel: "info"})
		fallback.Fatal().Err(err).Msg("failed to open record store")
	}
	defer a.close()
	logger := a.logger
	logger.Info().Str("driver", a.cfg.StoreDriver).Msg("record store loaded")

	tokens, err := auth.NewTokenManager(auth.JWTConfig{
		Issuer:     a.cfg.JWTIssuer,
		SigningKey: []byte(a.cfg.JWTSigningKey),
		TTL:        a.cfg.TokenTTL,
	})
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}
	go tokens.Revocations().Run(ctx, 5*time.Minute)
	go a.limiter.Run(ctx, time.Minute)

	e := newServer(a, tokens)

	// Graceful shutdown
	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	if err := shutdown(e, 10*time.Second); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// shutdown drains in-flight requests. Every mutation has already rewritten
// the store, so nothing is persisted here; a late write would clobber rows
// other processes added while the server ran.
func shutdown(e *echo.Echo, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return e.Shutdown(ctx)
}
