package domain

import "context"

// RosterService is the port to the remote directory/roster backend. The
// transport, auth and rate limiting behind it are external concerns; every
// method maps to a single remote call and returns the call's error untouched.
// Callers own the swallow-and-log policy.
type RosterService interface {
	// EnumerateScopes lists every group- or channel-like space the service
	// account is a member of, with no role filtering; the scope cache
	// decides which of them are moderable.
	EnumerateScopes(ctx context.Context) ([]Scope, error)

	// SelfMembership looks up the service account's own participation in
	// the scope, used to probe for a moderation-capable role.
	SelfMembership(ctx context.Context, scopeID int64) (*MembershipInfo, error)

	// GetMembership looks up one participant by id in one scope.
	GetMembership(ctx context.Context, scopeID, targetID int64) (*MembershipInfo, error)

	// IterMembers walks the scope's member list, newest first, calling fn
	// for each entry until fn returns an error, limit entries have been
	// seen, or the list ends. Returning ErrStopIteration from fn stops the
	// walk without error. The walk is not restartable mid-scan.
	IterMembers(ctx context.Context, scopeID int64, limit int, fn func(Identity) error) error

	// ChangeRights applies rights to the referenced participant in the
	// scope.
	ChangeRights(ctx context.Context, scopeID int64, ref PeerRef, rights MemberRights) error

	// PurgeHistory removes the referenced participant's prior messages
	// from the scope.
	PurgeHistory(ctx context.Context, scopeID int64, ref PeerRef) error
}

// IdentityDirectory is the port to the identity resolution backend.
type IdentityDirectory interface {
	// ResolveHandle resolves an @username handle, or a numeric id the
	// backend already knows, to a full identity. A bare numeric id the
	// backend has never seen fails here and is handed to the racing
	// resolver instead.
	ResolveHandle(ctx context.Context, handleOrID string) (Identity, error)
}
