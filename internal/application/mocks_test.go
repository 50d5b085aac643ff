package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// nopLogger satisfies domain.Logger for tests.
type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...any) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, fields ...any) {}
func (nopLogger) Fatal(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) With(fields ...any) domain.Logger                   { return l }

var errRemote = errors.New("remote call failed")

// mockRoster implements domain.RosterService with per-method function fields
// and call counters. Unset methods fail loudly so a test only exercises the
// paths it declares.
type mockRoster struct {
	enumerateFn   func(ctx context.Context) ([]domain.Scope, error)
	selfFn        func(ctx context.Context, scopeID int64) (*domain.MembershipInfo, error)
	membershipFn  func(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error)
	iterFn        func(ctx context.Context, scopeID int64, limit int, fn func(domain.Identity) error) error
	changeFn      func(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error
	purgeFn       func(ctx context.Context, scopeID int64, ref domain.PeerRef) error
	enumerateHits atomic.Int64
	selfHits      atomic.Int64
	membershipHit atomic.Int64
	iterHits      atomic.Int64
	changeHits    atomic.Int64
	purgeHits     atomic.Int64
}

func (m *mockRoster) EnumerateScopes(ctx context.Context) ([]domain.Scope, error) {
	m.enumerateHits.Add(1)
	if m.enumerateFn == nil {
		return nil, errors.New("EnumerateScopes not stubbed")
	}
	return m.enumerateFn(ctx)
}

func (m *mockRoster) SelfMembership(ctx context.Context, scopeID int64) (*domain.MembershipInfo, error) {
	m.selfHits.Add(1)
	if m.selfFn == nil {
		return nil, errors.New("SelfMembership not stubbed")
	}
	return m.selfFn(ctx, scopeID)
}

func (m *mockRoster) GetMembership(ctx context.Context, scopeID, targetID int64) (*domain.MembershipInfo, error) {
	m.membershipHit.Add(1)
	if m.membershipFn == nil {
		return nil, errors.New("GetMembership not stubbed")
	}
	return m.membershipFn(ctx, scopeID, targetID)
}

func (m *mockRoster) IterMembers(ctx context.Context, scopeID int64, limit int, fn func(domain.Identity) error) error {
	m.iterHits.Add(1)
	if m.iterFn == nil {
		return errors.New("IterMembers not stubbed")
	}
	return m.iterFn(ctx, scopeID, limit, fn)
}

func (m *mockRoster) ChangeRights(ctx context.Context, scopeID int64, ref domain.PeerRef, rights domain.MemberRights) error {
	m.changeHits.Add(1)
	if m.changeFn == nil {
		return errors.New("ChangeRights not stubbed")
	}
	return m.changeFn(ctx, scopeID, ref, rights)
}

func (m *mockRoster) PurgeHistory(ctx context.Context, scopeID int64, ref domain.PeerRef) error {
	m.purgeHits.Add(1)
	if m.purgeFn == nil {
		return errors.New("PurgeHistory not stubbed")
	}
	return m.purgeFn(ctx, scopeID, ref)
}

// mockDirectory implements domain.IdentityDirectory.
type mockDirectory struct {
	resolveFn   func(ctx context.Context, handleOrID string) (domain.Identity, error)
	resolveHits atomic.Int64
}

func (m *mockDirectory) ResolveHandle(ctx context.Context, handleOrID string) (domain.Identity, error) {
	m.resolveHits.Add(1)
	if m.resolveFn == nil {
		return domain.Identity{}, errors.New("ResolveHandle not stubbed")
	}
	return m.resolveFn(ctx, handleOrID)
}

// mockAudit records published events.
type mockAudit struct {
	mu     sync.Mutex
	events []domain.ModerationAuditEvent
	err    error
}

func (m *mockAudit) PublishModerationEvent(ctx context.Context, event domain.ModerationAuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockAudit) published() []domain.ModerationAuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ModerationAuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

// mockApplier implements ActionApplier with a per-call decision function.
type mockApplier struct {
	applyFn func(ctx context.Context, scopeID, targetID int64, rights domain.MemberRights) bool
	hits    atomic.Int64
}

func (m *mockApplier) ApplyAction(ctx context.Context, scopeID, targetID int64, rights domain.MemberRights) bool {
	m.hits.Add(1)
	if m.applyFn == nil {
		return false
	}
	return m.applyFn(ctx, scopeID, targetID, rights)
}

func scopesN(n int) []domain.Scope {
	out := make([]domain.Scope, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Scope{ID: int64(i), Title: fmt.Sprintf("scope-%d", i)})
	}
	return out
}
