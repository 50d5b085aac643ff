package safego

import (
	"context"
	"fmt"
	"runtime/debug"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// Execute runs the given function in a new goroutine.
// It recovers from any panics within the goroutine, logs them with the provided logger and a descriptive name,
// and includes a stack trace.
func Execute(ctx context.Context, logger domain.Logger, goroutineName string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				// Log on a fresh context if the original one is done.
				logCtx := ctx
				if ctx.Err() != nil {
					logCtx = context.Background()
				}
				logger.Error(logCtx, fmt.Sprintf("Panic recovered in goroutine: %s", goroutineName),
					"panic_info", fmt.Sprintf("%v", r),
					"stacktrace", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
