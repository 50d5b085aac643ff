package application

import (
	"context"
	"errors"
	"testing"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

func newTestResolver(roster *mockRoster, identities *TTLCache[int64, domain.Identity]) *RacingResolver {
	if identities == nil {
		identities = NewTTLCache[int64, domain.Identity](0)
	}
	return NewRacingResolver(roster, identities, nopLogger{}, 4, 100)
}

func membershipFor(ident domain.Identity) *domain.MembershipInfo {
	return &domain.MembershipInfo{Identity: &ident}
}

func TestResolveFindsTargetViaMembershipProbe(t *testing.T) {
	target := domain.Identity{ID: 77, FirstName: "Ada", Username: "ada"}
	roster := &mockRoster{
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			if scopeID == 3 {
				return membershipFor(target), nil
			}
			return nil, errRemote
		},
		iterFn: func(ctx context.Context, scopeID int64, limit int, fn func(domain.Identity) error) error {
			return nil // empty scope
		},
	}
	r := newTestResolver(roster, nil)

	got, err := r.Resolve(context.Background(), scopesN(5), 77)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 77 || got.Username != "ada" {
		t.Fatalf("resolved wrong identity: %+v", got)
	}
}

func TestResolveFallsBackToMemberScan(t *testing.T) {
	roster := &mockRoster{
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			return nil, errRemote
		},
		iterFn: func(ctx context.Context, scopeID int64, limit int, fn func(domain.Identity) error) error {
			if scopeID != 2 {
				return nil
			}
			for _, m := range []domain.Identity{{ID: 10}, {ID: 77, FirstName: "Ada"}, {ID: 30}} {
				if err := fn(m); err != nil {
					if errors.Is(err, domain.ErrStopIteration) {
						return nil
					}
					return err
				}
			}
			return nil
		},
	}
	r := newTestResolver(roster, nil)

	got, err := r.Resolve(context.Background(), scopesN(3), 77)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 77 || got.FirstName != "Ada" {
		t.Fatalf("resolved wrong identity: %+v", got)
	}
}

func TestResolveNotFoundWhenNoScopeMatches(t *testing.T) {
	roster := &mockRoster{
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			return nil, errRemote
		},
		iterFn: func(ctx context.Context, scopeID int64, limit int, fn func(domain.Identity) error) error {
			return fn(domain.Identity{ID: scopeID * 1000})
		},
	}
	r := newTestResolver(roster, nil)

	_, err := r.Resolve(context.Background(), scopesN(6), 77)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveNotFoundWithoutScopes(t *testing.T) {
	r := newTestResolver(&mockRoster{}, nil)
	_, err := r.Resolve(context.Background(), nil, 77)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveCacheHitSkipsRemoteCalls(t *testing.T) {
	identities := NewTTLCache[int64, domain.Identity](0)
	identities.Set(77, domain.Identity{ID: 77, Username: "cached"})
	roster := &mockRoster{}
	r := newTestResolver(roster, identities)

	got, err := r.Resolve(context.Background(), scopesN(4), 77)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Username != "cached" {
		t.Fatalf("expected cached identity, got %+v", got)
	}
	if roster.membershipHit.Load() != 0 || roster.iterHits.Load() != 0 {
		t.Fatal("cache hit must not touch the roster")
	}
}

func TestResolveCachesHit(t *testing.T) {
	identities := NewTTLCache[int64, domain.Identity](0)
	roster := &mockRoster{
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			return membershipFor(domain.Identity{ID: 77}), nil
		},
	}
	r := newTestResolver(roster, identities)

	if _, err := r.Resolve(context.Background(), scopesN(1), 77); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := identities.Get(77); !ok {
		t.Fatal("resolved identity was not written to the cache")
	}
}

func TestResolveCancelsLosingProbesAfterFirstHit(t *testing.T) {
	// Scope 1 hits immediately; the other probes block on a slow scan until
	// the race cancellation reaches them.
	roster := &mockRoster{
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			if scopeID == 1 {
				return membershipFor(domain.Identity{ID: 77}), nil
			}
			return nil, errRemote
		},
		iterFn: func(ctx context.Context, scopeID int64, limit int, fn func(domain.Identity) error) error {
			for i := 0; i < limit; i++ {
				if err := fn(domain.Identity{ID: int64(i + 1000)}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	r := newTestResolver(roster, nil)

	got, err := r.Resolve(context.Background(), scopesN(8), 77)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 77 {
		t.Fatalf("resolved wrong identity: %+v", got)
	}
	// Resolve joins every probe before returning, so no goroutine may still
	// be touching the roster here. Nothing to assert beyond clean return;
	// the race detector flags violations.
}

func TestResolveHonorsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	roster := &mockRoster{
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
		iterFn: func(ctx context.Context, scopeID int64, limit int, fn func(domain.Identity) error) error {
			return ctx.Err()
		},
	}
	r := newTestResolver(roster, nil)

	_, err := r.Resolve(ctx, scopesN(4), 77)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
