package application

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/metrics"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

const (
	defaultResolveParallelism = 8
	defaultPerScopeScanLimit  = 2000
)

// RacingResolver locates an identity by bare numeric id by probing many
// scopes concurrently. The first probe to find a match wins; every other
// in-flight probe is cancelled and joined before Resolve returns. Probes are
// bounded by a global semaphore regardless of scope count, and each probe
// tries a cheap exact membership lookup before falling back to a bounded
// linear member scan.
type RacingResolver struct {
	roster     domain.RosterService
	identities *TTLCache[int64, domain.Identity]
	logger     domain.Logger
	parallel   int64
	scanLimit  int
}

// NewRacingResolver creates a RacingResolver. parallel <= 0 defaults to 8
// concurrent probes; scanLimit <= 0 defaults to 2000 scanned members per
// scope.
func NewRacingResolver(roster domain.RosterService, identities *TTLCache[int64, domain.Identity], logger domain.Logger, parallel int, scanLimit int) *RacingResolver {
	if parallel <= 0 {
		parallel = defaultResolveParallelism
	}
	if scanLimit <= 0 {
		scanLimit = defaultPerScopeScanLimit
	}
	return &RacingResolver{
		roster:     roster,
		identities: identities,
		logger:     logger,
		parallel:   int64(parallel),
		scanLimit:  scanLimit,
	}
}

// Resolve returns the identity behind targetID, or domain.ErrNotFound when
// every probe completed without a match. A hit is written to the identity
// cache. Probe errors are swallowed per scope: a transport failure in one
// scope must not mask a hit in another.
func (r *RacingResolver) Resolve(ctx context.Context, scopes []domain.Scope, targetID int64) (domain.Identity, error) {
	if ident, ok := r.identities.Get(targetID); ok {
		metrics.IncrementResolve("cache_hit")
		return ident, nil
	}
	if len(scopes) == 0 {
		metrics.IncrementResolve("no_scopes")
		return domain.Identity{}, domain.ErrNotFound
	}

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(r.parallel)
	found := make(chan domain.Identity, 1)

	var wg sync.WaitGroup
	for _, sc := range scopes {
		wg.Add(1)
		go func(sc domain.Scope) {
			defer wg.Done()
			// A probe still queued on the semaphore when the race is
			// decided exits here without any remote call.
			if err := sem.Acquire(probeCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			ident, ok := r.probeScope(probeCtx, sc, targetID)
			if !ok {
				return
			}
			select {
			case found <- ident:
				cancel() // first success wins
			default:
			}
		}(sc)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var ident domain.Identity
	var ok bool
	select {
	case ident = <-found:
		ok = true
	case <-done:
		// All probes finished; a hit may still be sitting in the buffer
		// if the winner lost the select race above.
		select {
		case ident = <-found:
			ok = true
		default:
		}
	}
	cancel()
	<-done // join every probe before returning

	if !ok {
		if err := ctx.Err(); err != nil {
			return domain.Identity{}, err
		}
		metrics.IncrementResolve("not_found")
		return domain.Identity{}, domain.ErrNotFound
	}
	r.identities.Set(targetID, ident)
	metrics.IncrementResolve("found")
	return ident, nil
}

// probeScope checks one scope for targetID. The cheap path asks the roster
// for the exact membership; only when that errors or does not enumerate the
// identity does the probe fall back to scanning up to scanLimit members.
func (r *RacingResolver) probeScope(ctx context.Context, sc domain.Scope, targetID int64) (domain.Identity, bool) {
	mi, err := r.roster.GetMembership(ctx, sc.ID, targetID)
	if err == nil && mi != nil && mi.Identity != nil && mi.Identity.ID == targetID {
		metrics.IncrementResolveProbe("membership", "hit")
		return *mi.Identity, true
	}
	if err != nil {
		metrics.IncrementResolveProbe("membership", "error")
		r.logger.Debug(ctx, "Membership probe failed; falling back to member scan",
			"scope_id", sc.ID,
			"target_id", targetID,
			"error", err.Error(),
		)
	} else {
		metrics.IncrementResolveProbe("membership", "inconclusive")
	}

	if ctx.Err() != nil {
		return domain.Identity{}, false
	}

	var match *domain.Identity
	scanErr := r.roster.IterMembers(ctx, sc.ID, r.scanLimit, func(m domain.Identity) error {
		// Observe the race outcome at every yield point.
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.ID == targetID {
			found := m
			match = &found
			return domain.ErrStopIteration
		}
		return nil
	})
	if match != nil {
		metrics.IncrementResolveProbe("scan", "hit")
		return *match, true
	}
	if scanErr != nil && ctx.Err() == nil {
		metrics.IncrementResolveProbe("scan", "error")
		r.logger.Debug(ctx, "Member scan failed",
			"scope_id", sc.ID,
			"scope_title", sc.Title,
			"target_id", targetID,
			"error", scanErr.Error(),
		)
	}
	return domain.Identity{}, false
}
