// Code generated by Wire. DO NOT EDIT.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package bootstrap

import (
	"context"
)

// Injectors from wire.go:

// InitializeApp assembles the application via Wire.
func InitializeApp(ctx context.Context) (*App, func(), error) {
	logger, cleanup, err := InitialZapLoggerProvider()
	if err != nil {
		return nil, nil, err
	}
	provider, err := ConfigProvider(ctx, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	domainLogger, err := LoggerProvider(provider)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	serveMux := HTTPServeMuxProvider()
	server := HTTPGracefulServerProvider(provider, serveMux)
	client, cleanup2, err := TelegramClientProvider(ctx, provider, domainLogger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	rosterAdapter := RosterAdapterProvider(client, domainLogger)
	ttlCache := PermissionCacheProvider(provider)
	scopeCache := ScopeCacheProvider(rosterAdapter, ttlCache, domainLogger, provider)
	applicationTTLCache := IdentityCacheProvider(provider)
	racingResolver := RacingResolverProvider(rosterAdapter, applicationTTLCache, domainLogger, provider)
	identityLookup := IdentityLookupProvider(racingResolver, scopeCache, applicationTTLCache)
	fallbackActionExecutor := ExecutorProvider(rosterAdapter, identityLookup, domainLogger)
	batchDispatcher := DispatcherProvider(fallbackActionExecutor, domainLogger, provider)
	auditPublisher, cleanup3, err := AuditPublisherProvider(ctx, provider, domainLogger)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	moderationService := ModerationServiceProvider(scopeCache, racingResolver, applicationTTLCache, batchDispatcher, rosterAdapter, auditPublisher, domainLogger)
	adminAuthMiddleware := AdminAuthMiddlewareProvider(provider, domainLogger)
	app, err := NewApp(provider, domainLogger, serveMux, server, moderationService, adminAuthMiddleware)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	return app, func() {
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}
