package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminhttp "gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/http"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/middleware"
	"gitlab.com/arbiterhq/api/fleet-mod-service/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.
// This file should only contain methods for the App struct, like Run().

// Run registers the admin routes, optionally preloads the scope cache, and
// serves HTTP until a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	appCfg := a.configProvider.Get().App
	a.logger.Info(ctx, "Starting application", "service_name", appCfg.ServiceName, "version", appCfg.Version)

	healthHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"OK"}`)
	})
	a.httpServeMux.Handle("GET /health", middleware.RequestIDMiddleware(healthHandler))

	a.httpServeMux.Handle("GET /metrics", middleware.RequestIDMiddleware(promhttp.Handler()))
	a.logger.Info(ctx, "Prometheus metrics endpoint registered at /metrics")

	// Admin surface: API-key auth behind request-id tagging.
	admin := func(h http.Handler) http.Handler {
		return middleware.RequestIDMiddleware(a.adminAuthMiddleware(h))
	}
	a.httpServeMux.Handle("POST /admin/moderation/{action}", admin(adminhttp.ModerationActionHandler(a.moderationService, a.logger)))
	a.httpServeMux.Handle("GET /admin/resolve", admin(adminhttp.ResolveHandler(a.moderationService, a.logger)))
	a.httpServeMux.Handle("POST /admin/cache/refresh", admin(adminhttp.CacheRefreshHandler(a.moderationService, a.logger)))
	a.httpServeMux.Handle("GET /admin/cache/status", admin(adminhttp.CacheStatusHandler(a.moderationService, a.logger)))
	a.logger.Info(ctx, "Admin moderation endpoints registered")

	if a.configProvider.Get().Cache.PreloadOnStart {
		safego.Execute(ctx, a.logger, "ScopeCachePreload", func() {
			count := a.moderationService.Preload(ctx)
			a.logger.Info(ctx, "Scope cache preloaded", "scopes", count)
		})
	}

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second
		if appCfg.ShutdownTimeoutSeconds > 0 {
			shutdownTimeout = time.Duration(appCfg.ShutdownTimeoutSeconds) * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", a.configProvider.Get().Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}
