package logger

import (
	"context"
	"os"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/config"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
	"gitlab.com/arbiterhq/api/fleet-mod-service/pkg/contextkeys"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter implements the domain.Logger interface using Zap.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter creates a new ZapAdapter configured from the application
// config: JSON output, info and below to stdout, errors to stderr, level
// from config with info as the fallback.
func NewZapAdapter(cfgProvider config.Provider, serviceName string) (domain.Logger, error) {
	appConfig := cfgProvider.Get()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(appConfig.Log.Level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	infoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapLevel && lvl < zapcore.ErrorLevel
	})
	errorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapLevel && lvl >= zapcore.ErrorLevel
	})

	consoleInfo := zapcore.Lock(os.Stdout)
	consoleErrors := zapcore.Lock(os.Stderr)

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), consoleInfo, infoLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), consoleErrors, errorLevel),
	)

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	zapLogger = zapLogger.With(zap.String("service", serviceName))

	return &ZapAdapter{logger: zapLogger}, nil
}

// extractFieldsFromContext pulls the well-known correlation keys out of ctx
// and appends the caller's key/value pairs.
func (za *ZapAdapter) extractFieldsFromContext(ctx context.Context, additionalFields []any) []zap.Field {
	fields := make([]zap.Field, 0, len(additionalFields)/2+4)

	if requestID, ok := ctx.Value(contextkeys.RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, zap.String(contextkeys.RequestIDKey.String(), requestID))
	}
	if operationID, ok := ctx.Value(contextkeys.OperationIDKey).(string); ok && operationID != "" {
		fields = append(fields, zap.String(contextkeys.OperationIDKey.String(), operationID))
	}
	if targetID, ok := ctx.Value(contextkeys.TargetIDKey).(string); ok && targetID != "" {
		fields = append(fields, zap.String(contextkeys.TargetIDKey.String(), targetID))
	}
	if action, ok := ctx.Value(contextkeys.ActionKey).(string); ok && action != "" {
		fields = append(fields, zap.String(contextkeys.ActionKey.String(), action))
	}

	for i := 0; i+1 < len(additionalFields); i += 2 {
		if key, ok := additionalFields[i].(string); ok {
			fields = append(fields, zap.Any(key, additionalFields[i+1]))
		} else {
			fields = append(fields, zap.Any("malformed_log_field", additionalFields[i]))
			fields = append(fields, zap.Any("malformed_log_value", additionalFields[i+1]))
		}
	}
	if len(additionalFields)%2 != 0 {
		fields = append(fields, zap.Any("orphan_log_field", additionalFields[len(additionalFields)-1]))
	}

	return fields
}

func (za *ZapAdapter) Debug(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	za.logger.Debug(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) Info(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.InfoLevel) {
		return
	}
	za.logger.Info(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) Warn(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.WarnLevel) {
		return
	}
	za.logger.Warn(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) Error(ctx context.Context, msg string, args ...any) {
	if !za.logger.Core().Enabled(zapcore.ErrorLevel) {
		return
	}
	za.logger.Error(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) Fatal(ctx context.Context, msg string, args ...any) {
	// Fatal always logs; Zap exits afterwards.
	za.logger.Fatal(msg, za.extractFieldsFromContext(ctx, args)...)
}

func (za *ZapAdapter) With(args ...any) domain.Logger {
	zapFields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			zapFields = append(zapFields, zap.Any(key, args[i+1]))
		}
	}
	return &ZapAdapter{logger: za.logger.With(zapFields...)}
}
