package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// refRecorder captures the PeerRef of every recorded call, in order.
type refRecorder struct {
	mu   sync.Mutex
	refs []domain.PeerRef
}

func (r *refRecorder) record(ref domain.PeerRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
}

func (r *refRecorder) kinds() []domain.PeerRefKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PeerRefKind, 0, len(r.refs))
	for _, ref := range r.refs {
		out = append(out, ref.Kind)
	}
	return out
}

func staticLookup(ident domain.Identity, err error) IdentityLookup {
	return func(ctx context.Context, targetID int64) (domain.Identity, error) {
		return ident, err
	}
}

func TestApplyActionFirstStrategySucceeds(t *testing.T) {
	rec := &refRecorder{}
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			rec.record(ref)
			return nil
		},
	}
	e := NewFallbackActionExecutor(roster, staticLookup(domain.Identity{}, errRemote), nopLogger{})

	if !e.ApplyAction(context.Background(), 5, 77, domain.RestoreRights()) {
		t.Fatal("expected success")
	}
	kinds := rec.kinds()
	if len(kinds) != 1 || kinds[0] != domain.PeerRefID {
		t.Fatalf("expected single direct-id attempt, got %v", kinds)
	}
}

func TestApplyActionWalksStrategiesInOrder(t *testing.T) {
	rec := &refRecorder{}
	ident := domain.Identity{ID: 77, AccessHash: 0xbeef}
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			rec.record(ref)
			if ref.Kind == domain.PeerRefRaw {
				return nil
			}
			return errRemote
		},
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			return &domain.MembershipInfo{ChannelPeerID: -100123, Identity: &ident}, nil
		},
	}
	e := NewFallbackActionExecutor(roster, staticLookup(ident, nil), nopLogger{})

	if !e.ApplyAction(context.Background(), 5, 77, domain.RestoreRights()) {
		t.Fatal("expected eventual success via raw peer")
	}
	want := []domain.PeerRefKind{domain.PeerRefID, domain.PeerRefIdentity, domain.PeerRefChannel, domain.PeerRefRaw}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d attempts, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("attempt %d: got kind %v, want %v", i, got[i], want[i])
		}
	}
}

func TestApplyActionExhaustionReturnsFalse(t *testing.T) {
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			return errRemote
		},
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			return nil, errRemote
		},
	}
	// Lookup fails too, so only the direct-id strategy is attemptable.
	e := NewFallbackActionExecutor(roster, staticLookup(domain.Identity{}, errRemote), nopLogger{})

	if e.ApplyAction(context.Background(), 5, 77, domain.RestoreRights()) {
		t.Fatal("expected failure after exhausting every strategy")
	}
	if n := roster.purgeHits.Load(); n != 0 {
		t.Fatalf("no purge expected on failure, got %d", n)
	}
}

func TestApplyActionSkipsRawPeerWithoutAccessHash(t *testing.T) {
	rec := &refRecorder{}
	ident := domain.Identity{ID: 77} // no access hash
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			rec.record(ref)
			return errRemote
		},
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			return nil, errRemote
		},
	}
	e := NewFallbackActionExecutor(roster, staticLookup(ident, nil), nopLogger{})

	if e.ApplyAction(context.Background(), 5, 77, domain.RestoreRights()) {
		t.Fatal("expected failure")
	}
	for _, k := range rec.kinds() {
		if k == domain.PeerRefRaw {
			t.Fatal("raw-peer strategy must not run without an access hash")
		}
	}
}

func TestApplyActionChannelPersonaAddressing(t *testing.T) {
	rec := &refRecorder{}
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			rec.record(ref)
			if ref.Kind == domain.PeerRefChannel && ref.ID == -100456 {
				return nil
			}
			return errRemote
		},
		membershipFn: func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
			return &domain.MembershipInfo{ChannelPeerID: -100456}, nil
		},
	}
	e := NewFallbackActionExecutor(roster, staticLookup(domain.Identity{}, errRemote), nopLogger{})

	if !e.ApplyAction(context.Background(), 5, -100456, domain.RestoreRights()) {
		t.Fatal("expected success via channel-persona addressing")
	}
}

func TestFullExclusionTriggersHistoryPurge(t *testing.T) {
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			return nil
		},
		purgeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef) error {
			return nil
		},
	}
	e := NewFallbackActionExecutor(roster, staticLookup(domain.Identity{ID: 77}, nil), nopLogger{})

	if !e.ApplyAction(context.Background(), 5, 77, domain.ExcludeRights()) {
		t.Fatal("expected success")
	}
	if n := roster.purgeHits.Load(); n != 1 {
		t.Fatalf("expected one purge call, got %d", n)
	}
}

func TestExpelDoesNotPurgeHistory(t *testing.T) {
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			return nil
		},
	}
	e := NewFallbackActionExecutor(roster, staticLookup(domain.Identity{ID: 77}, nil), nopLogger{})

	if !e.ApplyAction(context.Background(), 5, 77, domain.ExpelRights(time.Now())) {
		t.Fatal("expected success")
	}
	if n := roster.purgeHits.Load(); n != 0 {
		t.Fatalf("expel must not purge history, got %d purge calls", n)
	}
}

func TestPurgeFallsBackToResolvedIdentity(t *testing.T) {
	rec := &refRecorder{}
	ident := domain.Identity{ID: 77, AccessHash: 0xbeef}
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			return nil
		},
		purgeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef) error {
			rec.record(ref)
			if ref.Kind == domain.PeerRefID {
				return errRemote
			}
			return nil
		},
	}
	e := NewFallbackActionExecutor(roster, staticLookup(ident, nil), nopLogger{})

	if !e.ApplyAction(context.Background(), 5, 77, domain.ExcludeRights()) {
		t.Fatal("expected success")
	}
	kinds := rec.kinds()
	if len(kinds) != 2 || kinds[0] != domain.PeerRefID || kinds[1] != domain.PeerRefIdentity {
		t.Fatalf("expected id-then-identity purge attempts, got %v", kinds)
	}
}

func TestPurgeFailureDoesNotDowngradeSuccess(t *testing.T) {
	roster := &mockRoster{
		changeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
			return nil
		},
		purgeFn: func(ctx context.Context, scopeID int64, ref domain.PeerRef) error {
			return errRemote
		},
	}
	e := NewFallbackActionExecutor(roster, staticLookup(domain.Identity{}, errors.New("unresolvable")), nopLogger{})

	if !e.ApplyAction(context.Background(), 5, 77, domain.ExcludeRights()) {
		t.Fatal("purge failure must not downgrade the rights-change success")
	}
}
