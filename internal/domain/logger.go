package domain

import (
	"context"
)

// Logger is the structured logging interface used across the application.
// Methods accept a context.Context first so implementations can attach
// context-carried fields (request id, operation id, actor). The variadic
// fields are alternating key/value pairs, kept as `any` so the interface
// stays agnostic of the underlying logging library.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...any)
	Info(ctx context.Context, msg string, fields ...any)
	Warn(ctx context.Context, msg string, fields ...any)
	Error(ctx context.Context, msg string, fields ...any)
	Fatal(ctx context.Context, msg string, fields ...any) // logs, then exits

	// With creates a child logger carrying the given structured fields.
	With(fields ...any) Logger
}
