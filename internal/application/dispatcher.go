package application

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/metrics"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

const defaultDispatchChunkSize = 20

// ActionApplier applies one rights change to one (scope, target) pair.
// Implemented by FallbackActionExecutor.
type ActionApplier interface {
	ApplyAction(ctx context.Context, scopeID, targetID int64, rights domain.MemberRights) bool
}

// BatchDispatcher fans one action out across every scope in a snapshot.
// Scopes are processed in fixed size chunks: chunks run sequentially, the
// members of a chunk run concurrently. The chunk boundary caps peak
// concurrency against the remote side's rate limits while still overlapping
// latency within a chunk.
type BatchDispatcher struct {
	applier   ActionApplier
	logger    domain.Logger
	chunkSize int
}

// NewBatchDispatcher creates a BatchDispatcher. chunkSize <= 0 defaults
// to 20.
func NewBatchDispatcher(applier ActionApplier, logger domain.Logger, chunkSize int) *BatchDispatcher {
	if chunkSize <= 0 {
		chunkSize = defaultDispatchChunkSize
	}
	return &BatchDispatcher{applier: applier, logger: logger, chunkSize: chunkSize}
}

// scopeResult is one scope's contribution to the tally. failedTitle is empty
// on success.
type scopeResult struct {
	ok          bool
	failedTitle string
}

// Dispatch applies rights to targetID in every scope, aggregating a running
// tally. A panic while processing one scope is contained and counted as that
// scope's failure with a synthesized reason; it never aborts the batch.
// FailedScopeTitles follows completion order within each chunk.
func (d *BatchDispatcher) Dispatch(ctx context.Context, scopes []domain.Scope, targetID int64, rights domain.MemberRights, action domain.Action) domain.BatchOutcome {
	started := time.Now()
	outcome := domain.BatchOutcome{}

	d.logger.Info(ctx, "Dispatching fleet action",
		"action", string(action),
		"target_id", targetID,
		"scopes", len(scopes),
		"chunk_size", d.chunkSize,
	)

	for start := 0; start < len(scopes); start += d.chunkSize {
		end := start + d.chunkSize
		if end > len(scopes) {
			end = len(scopes)
		}
		chunk := scopes[start:end]
		results := make(chan scopeResult, len(chunk))

		var wg sync.WaitGroup
		for _, sc := range chunk {
			wg.Add(1)
			go func(sc domain.Scope) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						d.logger.Error(ctx, "Panic while applying action to scope",
							"scope_id", sc.ID,
							"scope_title", sc.Title,
							"panic_info", fmt.Sprintf("%v", r),
							"stacktrace", string(debug.Stack()),
						)
						results <- scopeResult{failedTitle: sc.Title + " (panic)"}
					}
				}()
				if d.applier.ApplyAction(ctx, sc.ID, targetID, rights) {
					results <- scopeResult{ok: true}
				} else {
					results <- scopeResult{failedTitle: sc.Title}
				}
			}(sc)
		}
		wg.Wait()
		close(results)

		for res := range results {
			if res.ok {
				outcome.Succeeded++
			} else {
				outcome.Failed++
				outcome.FailedScopeTitles = append(outcome.FailedScopeTitles, res.failedTitle)
			}
		}
	}

	metrics.ObserveDispatchDuration(string(action), time.Since(started))
	metrics.AddDispatchResults(string(action), outcome.Succeeded, outcome.Failed)
	d.logger.Info(ctx, "Fleet action dispatched",
		"action", string(action),
		"target_id", targetID,
		"succeeded", outcome.Succeeded,
		"failed", outcome.Failed,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return outcome
}
