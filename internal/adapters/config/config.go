package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "FLEETMOD"

// ServerConfig holds the admin HTTP server configuration.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

// TelegramConfig holds the MTProto client configuration. The session file
// must already be authorized; interactive login is not this service's job.
type TelegramConfig struct {
	APIID       int    `mapstructure:"api_id"`
	APIHash     string `mapstructure:"api_hash"`
	SessionFile string `mapstructure:"session_file"`
}

// CacheConfig holds cache TTLs and probe batching. A TTL of 0 means entries
// never expire until explicitly invalidated, which is the default: explicit
// invalidation is the primary correctness mechanism here.
type CacheConfig struct {
	ScopeTTLSeconds      int  `mapstructure:"scope_ttl_seconds"`
	PermissionTTLSeconds int  `mapstructure:"permission_ttl_seconds"`
	IdentityTTLSeconds   int  `mapstructure:"identity_ttl_seconds"`
	ProbeBatchSize       int  `mapstructure:"probe_batch_size"`
	PreloadOnStart       bool `mapstructure:"preload_on_start"`
}

// ResolverConfig holds the racing resolver limits.
type ResolverConfig struct {
	ParallelLimit     int `mapstructure:"parallel_limit"`
	PerScopeScanLimit int `mapstructure:"per_scope_scan_limit"`
}

// DispatcherConfig holds the batch dispatcher limits.
type DispatcherConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// NATSConfig holds the audit stream configuration. An empty URL disables
// audit publishing entirely.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds the admin API credentials. AdminAPIKey should come from
// the environment, not the file.
type AuthConfig struct {
	AdminAPIKey string `mapstructure:"admin_api_key"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	App        AppConfig        `mapstructure:"app"`
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// viperProvider implements the Provider interface using Viper. The current
// config is held behind an atomic pointer because the reload goroutines swap
// it while request handlers read it.
type viperProvider struct {
	config atomic.Pointer[Config]
	logger *zap.Logger // zap directly; domain.Logger is not built yet when config loads
}

// NewViperProvider creates and initializes a new configuration provider
// using Viper. It loads configuration from file and environment variables
// and sets up hot reloading via SIGHUP and file-watch. appCtx is the
// application lifecycle context used to stop the reload goroutine.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	cfg := &Config{}
	v := viper.New()

	v.SetDefault("server.http_port", 8085)
	v.SetDefault("log.level", "info")
	v.SetDefault("app.service_name", "fleet-mod-service")
	v.SetDefault("app.shutdown_timeout_seconds", 30)
	v.SetDefault("cache.scope_ttl_seconds", 0)
	v.SetDefault("cache.permission_ttl_seconds", 0)
	v.SetDefault("cache.identity_ttl_seconds", 0)
	v.SetDefault("cache.probe_batch_size", 10)
	v.SetDefault("resolver.parallel_limit", 8)
	v.SetDefault("resolver.per_scope_scan_limit", 2000)
	v.SetDefault("dispatcher.batch_size", 20)
	v.SetDefault("nats.subject_prefix", "fleetmod")

	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnv("VIPER_CONFIG_PATH", "/app/config"))
	v.AddConfigPath(".")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g., server.http_port becomes SERVER_HTTP_PORT

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{
		logger: logger,
	}
	p.config.Store(cfg)

	// SIGHUP triggers a reload, for deployments where the config file is
	// replaced in place.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
					continue
				}
				newCfg := &Config{}
				if err := v.Unmarshal(newCfg); err != nil {
					p.logger.Error("Failed to unmarshal re-read config on SIGHUP", zap.Error(err))
				} else {
					p.config.Store(newCfg)
					p.logger.Info("Configuration reloaded successfully via SIGHUP")
				}
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in OnConfigChange callback",
					zap.String("event_name", e.Name),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			p.logger.Error("Failed to unmarshal config on file change event", zap.Error(err))
		} else {
			p.config.Store(newCfg)
			p.logger.Info("Configuration reloaded successfully via file change event")
		}
	})

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))

	return p, nil
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
