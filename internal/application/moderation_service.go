package application

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
	"gitlab.com/arbiterhq/api/fleet-mod-service/pkg/contextkeys"
)

// ModerationService is the upward surface of the fleet engine. It validates
// a raw target reference, resolves it to an identity, dispatches the
// requested action across the scope cache snapshot, and emits one audit
// event per dispatch.
type ModerationService struct {
	scopes     *ScopeCache
	resolver   *RacingResolver
	identities *TTLCache[int64, domain.Identity]
	dispatcher *BatchDispatcher
	directory  domain.IdentityDirectory
	audit      domain.AuditPublisher
	logger     domain.Logger
	now        func() time.Time
}

// NewModerationService creates a ModerationService.
func NewModerationService(
	scopes *ScopeCache,
	resolver *RacingResolver,
	identities *TTLCache[int64, domain.Identity],
	dispatcher *BatchDispatcher,
	directory domain.IdentityDirectory,
	audit domain.AuditPublisher,
	logger domain.Logger,
) *ModerationService {
	return &ModerationService{
		scopes:     scopes,
		resolver:   resolver,
		identities: identities,
		dispatcher: dispatcher,
		directory:  directory,
		audit:      audit,
		logger:     logger,
		now:        time.Now,
	}
}

// ModerationResult is the structured outcome of one fleet action.
type ModerationResult struct {
	OperationID string              `json:"operation_id"`
	Action      domain.Action       `json:"action"`
	TargetID    int64               `json:"target_id"`
	Display     string              `json:"display"`
	Outcome     domain.BatchOutcome `json:"outcome"`
}

// targetRef is a parsed target reference: exactly one of Handle or
// NumericID is set.
type targetRef struct {
	Handle    string
	NumericID int64
}

// parseTarget validates a raw target reference before any remote call is
// attempted. Accepted forms: "@username", a positive participant id, or a
// negative channel-persona id. Bare usernames without "@" are rejected
// deliberately: they locate the wrong account too easily.
func parseTarget(raw string) (targetRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return targetRef{}, domain.ErrInvalidTarget
	}
	if strings.HasPrefix(raw, "@") {
		handle := raw[1:]
		if handle == "" {
			return targetRef{}, domain.ErrInvalidTarget
		}
		for _, r := range handle {
			if r != '_' && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9') {
				return targetRef{}, domain.ErrInvalidTarget
			}
		}
		return targetRef{Handle: handle}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return targetRef{}, domain.ErrInvalidTarget
	}
	return targetRef{NumericID: id}, nil
}

// ResolveTarget parses and resolves a raw target reference. Handles go
// through the identity directory. Numeric ids try the directory first and
// fall back to the racing resolver over the administered scopes; a negative
// id (channel persona) that the directory cannot resolve is still actionable
// by bare id, so it degrades to a minimal identity instead of failing.
func (s *ModerationService) ResolveTarget(ctx context.Context, raw string) (domain.Identity, error) {
	ref, err := parseTarget(raw)
	if err != nil {
		return domain.Identity{}, err
	}

	if ref.Handle != "" {
		ident, err := s.directory.ResolveHandle(ctx, "@"+ref.Handle)
		if err != nil {
			s.logger.Warn(ctx, "Handle resolution failed", "handle", ref.Handle, "error", err.Error())
			return domain.Identity{}, domain.ErrNotFound
		}
		s.identities.Set(ident.ID, ident)
		return ident, nil
	}

	if ident, ok := s.identities.Get(ref.NumericID); ok {
		return ident, nil
	}

	ident, err := s.directory.ResolveHandle(ctx, strconv.FormatInt(ref.NumericID, 10))
	if err == nil {
		s.identities.Set(ident.ID, ident)
		return ident, nil
	}
	s.logger.Debug(ctx, "Directory does not know the id; racing across administered scopes",
		"target_id", ref.NumericID,
		"error", err.Error(),
	)

	if ref.NumericID < 0 {
		// Channel-persona ids are not scope members; the executor can
		// still address them by bare id and by channel-persona lookup.
		return domain.Identity{ID: ref.NumericID, Broadcast: true}, nil
	}
	return s.resolver.Resolve(ctx, s.scopes.Scopes(ctx), ref.NumericID)
}

// Apply runs one fleet action against the target. silenceFor only applies to
// ActionSilence and is clamped per domain.SilenceRights. The returned result
// always reflects partial success; only target validation or resolution
// failures surface as errors.
func (s *ModerationService) Apply(ctx context.Context, action domain.Action, rawTarget, reason string, silenceFor time.Duration) (*ModerationResult, error) {
	opID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkeys.OperationIDKey, opID)
	ctx = context.WithValue(ctx, contextkeys.ActionKey, string(action))

	ident, err := s.ResolveTarget(ctx, rawTarget)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, contextkeys.TargetIDKey, strconv.FormatInt(ident.ID, 10))

	scopes := s.scopes.Scopes(ctx)
	rights := domain.RightsFor(action, s.now(), silenceFor)
	outcome := s.dispatcher.Dispatch(ctx, scopes, ident.ID, rights, action)

	event := domain.ModerationAuditEvent{
		OperationID:       opID,
		Action:            action,
		TargetID:          ident.ID,
		TargetDisplay:     ident.DisplayName(),
		Reason:            reason,
		Succeeded:         outcome.Succeeded,
		Failed:            outcome.Failed,
		FailedScopeTitles: outcome.FailedScopeTitles,
		DispatchedAt:      s.now().UTC(),
	}
	if err := s.audit.PublishModerationEvent(ctx, event); err != nil {
		s.logger.Warn(ctx, "Audit event publish failed", "operation_id", opID, "error", err.Error())
	}

	return &ModerationResult{
		OperationID: opID,
		Action:      action,
		TargetID:    ident.ID,
		Display:     ident.DisplayName(),
		Outcome:     outcome,
	}, nil
}

// RefreshScopes rebuilds the scope cache and drops the identity cache, the
// permission cache being dropped by the scope cache itself. Returns the new
// scope count.
func (s *ModerationService) RefreshScopes(ctx context.Context) int {
	s.identities.Clear()
	return len(s.scopes.Refresh(ctx))
}

// CacheStatus describes the scope cache for the admin surface.
type CacheStatus struct {
	Scopes    int        `json:"scopes"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	TTLMode   string     `json:"ttl_mode"`
}

// Status reports the scope cache state.
func (s *ModerationService) Status() CacheStatus {
	count, fetchedAt, permanent := s.scopes.Status()
	status := CacheStatus{Scopes: count, TTLMode: "expiring"}
	if permanent {
		status.TTLMode = "permanent"
	}
	if !fetchedAt.IsZero() {
		t := fetchedAt.UTC()
		status.FetchedAt = &t
	}
	return status
}

// Preload warms the scope cache at boot.
func (s *ModerationService) Preload(ctx context.Context) int {
	return len(s.scopes.Scopes(ctx))
}
