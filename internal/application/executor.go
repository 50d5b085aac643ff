package application

import (
	"context"
	"errors"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/metrics"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// IdentityLookup resolves a numeric id to a full identity. The moderation
// service wires this to the identity cache backed by the racing resolver.
type IdentityLookup func(ctx context.Context, targetID int64) (domain.Identity, error)

// errStrategyNotApplicable marks a strategy that cannot even be attempted
// for this target (for example raw-peer addressing without an access hash).
var errStrategyNotApplicable = errors.New("strategy not applicable")

// FallbackActionExecutor applies one rights change to one (scope, target)
// pair, walking an ordered chain of addressing strategies until one
// succeeds. Strategy failures are logged and swallowed; only exhausting the
// whole chain yields false.
type FallbackActionExecutor struct {
	roster domain.RosterService
	lookup IdentityLookup
	logger domain.Logger
}

// NewFallbackActionExecutor creates a FallbackActionExecutor.
func NewFallbackActionExecutor(roster domain.RosterService, lookup IdentityLookup, logger domain.Logger) *FallbackActionExecutor {
	return &FallbackActionExecutor{roster: roster, lookup: lookup, logger: logger}
}

// refStrategy builds one addressing reference for a (scope, target) pair, or
// reports that it cannot.
type refStrategy struct {
	name  string
	build func(ctx context.Context, scopeID, targetID int64) (domain.PeerRef, error)
}

func (e *FallbackActionExecutor) strategies() []refStrategy {
	return []refStrategy{
		{
			name: "direct_id",
			build: func(ctx context.Context, scopeID, targetID int64) (domain.PeerRef, error) {
				return domain.PeerRef{Kind: domain.PeerRefID, ID: targetID}, nil
			},
		},
		{
			name: "resolved_identity",
			build: func(ctx context.Context, scopeID, targetID int64) (domain.PeerRef, error) {
				ident, err := e.lookup(ctx, targetID)
				if err != nil {
					return domain.PeerRef{}, err
				}
				return domain.PeerRef{Kind: domain.PeerRefIdentity, ID: ident.ID, Identity: &ident}, nil
			},
		},
		{
			// A broadcast persona masquerading as a participant has to be
			// addressed by its underlying channel id.
			name: "channel_persona",
			build: func(ctx context.Context, scopeID, targetID int64) (domain.PeerRef, error) {
				mi, err := e.roster.GetMembership(ctx, scopeID, targetID)
				if err != nil {
					return domain.PeerRef{}, err
				}
				if mi == nil || mi.ChannelPeerID == 0 {
					return domain.PeerRef{}, errStrategyNotApplicable
				}
				return domain.PeerRef{Kind: domain.PeerRefChannel, ID: mi.ChannelPeerID}, nil
			},
		},
		{
			name: "raw_peer",
			build: func(ctx context.Context, scopeID, targetID int64) (domain.PeerRef, error) {
				ident, err := e.lookup(ctx, targetID)
				if err != nil {
					return domain.PeerRef{}, err
				}
				if ident.AccessHash == 0 {
					return domain.PeerRef{}, errStrategyNotApplicable
				}
				return domain.PeerRef{Kind: domain.PeerRefRaw, ID: ident.ID, Identity: &ident}, nil
			},
		},
	}
}

// ApplyAction applies rights to targetID in scopeID, trying each addressing
// strategy in order. When the change is a full exclusion, the target's prior
// messages are purged best-effort afterwards; purge failure never downgrades
// the reported success of the rights change.
func (e *FallbackActionExecutor) ApplyAction(ctx context.Context, scopeID, targetID int64, rights domain.MemberRights) bool {
	for _, s := range e.strategies() {
		ref, err := s.build(ctx, scopeID, targetID)
		if err != nil {
			e.logger.Debug(ctx, "Addressing strategy unavailable",
				"strategy", s.name,
				"scope_id", scopeID,
				"target_id", targetID,
				"error", err.Error(),
			)
			continue
		}
		if err := e.roster.ChangeRights(ctx, scopeID, ref, rights); err != nil {
			metrics.IncrementRightsChange(s.name, "error")
			e.logger.Debug(ctx, "Rights change failed; trying next strategy",
				"strategy", s.name,
				"scope_id", scopeID,
				"target_id", targetID,
				"ref", ref.String(),
				"error", err.Error(),
			)
			continue
		}
		metrics.IncrementRightsChange(s.name, "ok")
		if rights.FullExclusion() {
			e.purgeHistory(ctx, scopeID, targetID)
		}
		return true
	}
	e.logger.Warn(ctx, "All addressing strategies exhausted",
		"scope_id", scopeID,
		"target_id", targetID,
	)
	return false
}

// purgeHistory removes the target's prior messages from the scope, first by
// bare id and then through the resolved identity. Both attempts are
// best-effort.
func (e *FallbackActionExecutor) purgeHistory(ctx context.Context, scopeID, targetID int64) {
	err := e.roster.PurgeHistory(ctx, scopeID, domain.PeerRef{Kind: domain.PeerRefID, ID: targetID})
	if err == nil {
		metrics.IncrementHistoryPurge("ok")
		return
	}
	e.logger.Debug(ctx, "History purge by id failed; retrying with resolved identity",
		"scope_id", scopeID,
		"target_id", targetID,
		"error", err.Error(),
	)

	ident, lerr := e.lookup(ctx, targetID)
	if lerr != nil {
		metrics.IncrementHistoryPurge("error")
		e.logger.Warn(ctx, "History purge skipped: identity unresolvable; exclusion itself succeeded",
			"scope_id", scopeID,
			"target_id", targetID,
			"error", lerr.Error(),
		)
		return
	}
	ref := domain.PeerRef{Kind: domain.PeerRefIdentity, ID: ident.ID, Identity: &ident}
	if err := e.roster.PurgeHistory(ctx, scopeID, ref); err != nil {
		metrics.IncrementHistoryPurge("error")
		e.logger.Warn(ctx, "History purge failed; exclusion itself succeeded",
			"scope_id", scopeID,
			"target_id", targetID,
			"error", err.Error(),
		)
		return
	}
	metrics.IncrementHistoryPurge("ok")
}
