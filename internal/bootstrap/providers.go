package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/config"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/logger"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/middleware"
	appnats "gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/nats"
	apptelegram "gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/telegram"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/application"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// AdminAuthMiddleware is a distinct type so Wire can tell the admin auth
// middleware apart from any other func(http.Handler) http.Handler.
type AdminAuthMiddleware func(http.Handler) http.Handler

// App aggregates the assembled service. Its runtime behavior lives in
// app.go; the struct and NewApp exist here for Wire.
type App struct {
	configProvider      config.Provider
	logger              domain.Logger
	httpServeMux        *http.ServeMux
	httpServer          *http.Server
	moderationService   *application.ModerationService
	adminAuthMiddleware AdminAuthMiddleware
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	moderationService *application.ModerationService,
	adminAuthMid AdminAuthMiddleware,
) (*App, error) {
	return &App{
		configProvider:      cfgProvider,
		logger:              appLogger,
		httpServeMux:        mux,
		httpServer:          server,
		moderationService:   moderationService,
		adminAuthMiddleware: adminAuthMid,
	}, nil
}

// InitialZapLoggerProvider provides a basic *zap.Logger used only while the
// config provider bootstraps; the application logger is built from config
// afterwards.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger, err = zap.NewDevelopment()
		if err != nil {
			zapLogger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger, falling back to example logger: %v\n", err)
		}
	}
	cleanup := func() {
		_ = zapLogger.Sync()
	}
	return zapLogger, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, zapLogger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, zapLogger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	return logger.NewZapAdapter(cfgProvider, cfgProvider.Get().App.ServiceName)
}

// HTTPServeMuxProvider provides the admin HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides the admin HTTP server. The write
// timeout is generous: a cold-cache dispatch enumerates and probes every
// administered scope before answering.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// TelegramClientProvider provides the running MTProto client.
func TelegramClientProvider(appCtx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*apptelegram.Client, func(), error) {
	return apptelegram.NewClient(appCtx, cfgProvider, appLogger)
}

// RosterAdapterProvider provides the roster and directory adapter.
func RosterAdapterProvider(client *apptelegram.Client, appLogger domain.Logger) *apptelegram.RosterAdapter {
	return apptelegram.NewRosterAdapter(client.API(), appLogger)
}

// PermissionCacheProvider provides the per-scope permission cache.
func PermissionCacheProvider(cfgProvider config.Provider) *application.TTLCache[int64, bool] {
	ttl := time.Duration(cfgProvider.Get().Cache.PermissionTTLSeconds) * time.Second
	return application.NewTTLCache[int64, bool](ttl)
}

// IdentityCacheProvider provides the resolved-identity cache.
func IdentityCacheProvider(cfgProvider config.Provider) *application.TTLCache[int64, domain.Identity] {
	ttl := time.Duration(cfgProvider.Get().Cache.IdentityTTLSeconds) * time.Second
	return application.NewTTLCache[int64, domain.Identity](ttl)
}

// ScopeCacheProvider provides the administered-scope cache.
func ScopeCacheProvider(roster domain.RosterService, perms *application.TTLCache[int64, bool], appLogger domain.Logger, cfgProvider config.Provider) *application.ScopeCache {
	cacheCfg := cfgProvider.Get().Cache
	ttl := time.Duration(cacheCfg.ScopeTTLSeconds) * time.Second
	return application.NewScopeCache(roster, perms, appLogger, ttl, cacheCfg.ProbeBatchSize)
}

// RacingResolverProvider provides the cross-scope identity resolver.
func RacingResolverProvider(roster domain.RosterService, identities *application.TTLCache[int64, domain.Identity], appLogger domain.Logger, cfgProvider config.Provider) *application.RacingResolver {
	resolverCfg := cfgProvider.Get().Resolver
	return application.NewRacingResolver(roster, identities, appLogger, resolverCfg.ParallelLimit, resolverCfg.PerScopeScanLimit)
}

// IdentityLookupProvider provides the executor's identity lookup: identity
// cache first, racing resolver over the current scope snapshot on a miss.
func IdentityLookupProvider(resolver *application.RacingResolver, scopes *application.ScopeCache, identities *application.TTLCache[int64, domain.Identity]) application.IdentityLookup {
	return func(ctx context.Context, targetID int64) (domain.Identity, error) {
		if ident, ok := identities.Get(targetID); ok {
			return ident, nil
		}
		return resolver.Resolve(ctx, scopes.Scopes(ctx), targetID)
	}
}

// ExecutorProvider provides the fallback action executor.
func ExecutorProvider(roster domain.RosterService, lookup application.IdentityLookup, appLogger domain.Logger) *application.FallbackActionExecutor {
	return application.NewFallbackActionExecutor(roster, lookup, appLogger)
}

// DispatcherProvider provides the chunked batch dispatcher.
func DispatcherProvider(executor *application.FallbackActionExecutor, appLogger domain.Logger, cfgProvider config.Provider) *application.BatchDispatcher {
	return application.NewBatchDispatcher(executor, appLogger, cfgProvider.Get().Dispatcher.BatchSize)
}

// AuditPublisherProvider provides the audit publisher: the JetStream adapter
// when a NATS URL is configured, a no-op otherwise.
func AuditPublisherProvider(appCtx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (domain.AuditPublisher, func(), error) {
	if cfgProvider.Get().NATS.URL == "" {
		appLogger.Info(appCtx, "NATS URL not configured; audit events disabled")
		return appnats.NoopAuditPublisher{}, func() {}, nil
	}
	return appnats.NewAuditPublisherAdapter(appCtx, cfgProvider, appLogger)
}

// ModerationServiceProvider provides the moderation facade.
func ModerationServiceProvider(
	scopes *application.ScopeCache,
	resolver *application.RacingResolver,
	identities *application.TTLCache[int64, domain.Identity],
	dispatcher *application.BatchDispatcher,
	directory domain.IdentityDirectory,
	audit domain.AuditPublisher,
	appLogger domain.Logger,
) *application.ModerationService {
	return application.NewModerationService(scopes, resolver, identities, dispatcher, directory, audit, appLogger)
}

// AdminAuthMiddlewareProvider provides the admin API key middleware.
func AdminAuthMiddlewareProvider(cfgProvider config.Provider, appLogger domain.Logger) AdminAuthMiddleware {
	return AdminAuthMiddleware(middleware.AdminAPIKeyAuthMiddleware(cfgProvider, appLogger))
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure adapters
	TelegramClientProvider,
	RosterAdapterProvider,
	wire.Bind(new(domain.RosterService), new(*apptelegram.RosterAdapter)),
	wire.Bind(new(domain.IdentityDirectory), new(*apptelegram.RosterAdapter)),
	AuditPublisherProvider,

	// Fleet engine
	PermissionCacheProvider,
	IdentityCacheProvider,
	ScopeCacheProvider,
	RacingResolverProvider,
	IdentityLookupProvider,
	ExecutorProvider,
	DispatcherProvider,
	ModerationServiceProvider,

	// Admin surface
	AdminAuthMiddlewareProvider,
	NewApp,
)
