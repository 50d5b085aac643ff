package application

import (
	"context"
	"sync"
	"time"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/metrics"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

const defaultProbeBatchSize = 10

// ScopeCache is the lazily built, process-wide cache of scopes the service
// account can moderate. Reads return snapshots so a concurrent refresh never
// mutates a slice a caller is iterating. Refreshes are expensive (one
// enumeration plus one permission probe per candidate), so unlike the
// accepted-race TTL caches, concurrent refresh attempts are collapsed into
// one behind refreshMu with a freshness re-check after the lock is acquired.
type ScopeCache struct {
	roster     domain.RosterService
	perms      *TTLCache[int64, bool]
	logger     domain.Logger
	ttl        time.Duration // <= 0 means entries never go stale
	probeBatch int
	now        func() time.Time

	refreshMu sync.Mutex // collapses concurrent refreshes

	mu        sync.RWMutex // guards scopes and fetchedAt
	scopes    []domain.Scope
	fetchedAt time.Time
}

// NewScopeCache creates a ScopeCache. ttl <= 0 keeps the cache valid until
// explicitly invalidated. probeBatch <= 0 falls back to the default of 10.
func NewScopeCache(roster domain.RosterService, perms *TTLCache[int64, bool], logger domain.Logger, ttl time.Duration, probeBatch int) *ScopeCache {
	if probeBatch <= 0 {
		probeBatch = defaultProbeBatchSize
	}
	return &ScopeCache{
		roster:     roster,
		perms:      perms,
		logger:     logger,
		ttl:        ttl,
		probeBatch: probeBatch,
		now:        time.Now,
	}
}

// Scopes returns the cached scope list, refreshing it first when empty or
// stale. A total enumeration failure degrades to an empty result rather than
// an error: dispatching against zero scopes is a normal, reportable outcome.
func (c *ScopeCache) Scopes(ctx context.Context) []domain.Scope {
	if s, ok := c.snapshot(); ok {
		return s
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have completed the refresh while this one waited
	// for the lock.
	if s, ok := c.snapshot(); ok {
		return s
	}
	return c.refresh(ctx)
}

// Refresh discards the current permission cache and rebuilds the scope list
// unconditionally.
func (c *ScopeCache) Refresh(ctx context.Context) []domain.Scope {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.perms.Clear()
	return c.refresh(ctx)
}

// Invalidate clears the cached scopes and timestamp without fetching; the
// next Scopes call triggers a full refresh.
func (c *ScopeCache) Invalidate() {
	c.mu.Lock()
	c.scopes = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
	c.perms.Clear()
	metrics.SetCachedScopes(0)
}

// Status reports the current cache contents for the admin surface.
func (c *ScopeCache) Status() (count int, fetchedAt time.Time, permanent bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scopes), c.fetchedAt, c.ttl <= 0
}

// snapshot returns a copy of the cached scopes when present and fresh. An
// empty list counts as unpopulated, matching the lifecycle in which the
// cache starts empty and is only considered built after a refresh that
// found at least one scope.
func (c *ScopeCache) snapshot() ([]domain.Scope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.scopes) == 0 {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	out := make([]domain.Scope, len(c.scopes))
	copy(out, c.scopes)
	return out, true
}

// refresh enumerates every reachable space and keeps those where a cheap
// permission probe reports a moderation-capable role. Probes run in fixed
// size concurrent batches; a failed probe excludes that one scope and never
// aborts the refresh. Callers must hold refreshMu.
func (c *ScopeCache) refresh(ctx context.Context) []domain.Scope {
	candidates, err := c.roster.EnumerateScopes(ctx)
	if err != nil {
		c.logger.Error(ctx, "Scope enumeration failed; continuing with empty scope set", "error", err.Error())
		metrics.IncrementScopeRefresh("enumeration_error")
		return nil
	}

	kept := make([]domain.Scope, 0, len(candidates))
	for start := 0; start < len(candidates); start += c.probeBatch {
		end := start + c.probeBatch
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]
		results := make([]bool, len(batch))

		var wg sync.WaitGroup
		for i, sc := range batch {
			wg.Add(1)
			go func(i int, sc domain.Scope) {
				defer wg.Done()
				results[i] = c.canModerate(ctx, sc)
			}(i, sc)
		}
		wg.Wait()

		for i, ok := range results {
			if ok {
				kept = append(kept, batch[i])
			}
		}
	}

	c.mu.Lock()
	c.scopes = kept
	c.fetchedAt = c.now()
	c.mu.Unlock()

	metrics.IncrementScopeRefresh("ok")
	metrics.SetCachedScopes(len(kept))
	c.logger.Info(ctx, "Scope cache refreshed",
		"candidates", len(candidates),
		"moderable", len(kept),
	)

	out := make([]domain.Scope, len(kept))
	copy(out, kept)
	return out
}

// canModerate probes one scope for the service account's own role, caching
// the answer per scope id.
func (c *ScopeCache) canModerate(ctx context.Context, sc domain.Scope) bool {
	allowed, err := c.perms.GetOrCompute(ctx, sc.ID, func(ctx context.Context) (bool, error) {
		mi, err := c.roster.SelfMembership(ctx, sc.ID)
		if err != nil {
			return false, err
		}
		return mi.CanRestrict, nil
	})
	if err != nil {
		metrics.IncrementScopeProbe("error")
		c.logger.Debug(ctx, "Permission probe failed; scope excluded",
			"scope_id", sc.ID,
			"scope_title", sc.Title,
			"error", err.Error(),
		)
		return false
	}
	if allowed {
		metrics.IncrementScopeProbe("moderable")
	} else {
		metrics.IncrementScopeProbe("not_moderable")
	}
	return allowed
}
