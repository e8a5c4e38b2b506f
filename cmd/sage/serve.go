package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/sage/config"
	"github.com/Ramsey-B/sage/pkg/health"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the review sweep and sync relay with health and metrics endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cc)
		},
	}
}

func serve(ctx context.Context, cc *commandContext) error {
	s := newServices(cc)
	if err := s.start(ctx, cc.config.DatabaseMigrateOnStart, depTracing, depDatabase, depRedis, depKafka); err != nil {
		return err
	}

	checker := health.NewChecker(cc.config.Version, map[string]health.Pinger{
		"postgres": s.db,
		"redis":    health.PingerFunc(s.redis.Ping),
	})
	e := newOpsServer(cc.config, checker)

	approver := s.autoApprover(s.repositories())
	if err := approver.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cc.config.Port)
		cc.logger.Infof("Ops server listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	checker.SetReady(true)

	var runErr error
	select {
	case <-ctx.Done():
		cc.logger.Info("Shutting down")
	case runErr = <-serverErr:
		cc.logger.WithError(runErr).Error("Ops server failed")
	}
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := approver.Stop(shutdownCtx); err != nil {
		cc.logger.WithError(err).Warn("Review sweep did not stop cleanly")
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		cc.logger.WithError(err).Warn("Ops server did not stop cleanly")
	}
	if err := s.stop(shutdownCtx); err != nil {
		cc.logger.WithError(err).Warn("Dependencies did not stop cleanly")
	}
	return runErr
}

func newOpsServer(cfg *config.Config, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(otelecho.Middleware(cfg.AppName))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}
