package domain

import (
	"fmt"
	"strings"
	"time"
)

// Scope is one collaborative space (group or channel) the service account
// moderates. Scopes are produced by the roster enumeration and are immutable
// once cached; identity is the ID.
type Scope struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Identity is the resolvable representation of a moderation target. A target
// may be a natural person or a channel-style broadcast persona posting under
// the same numeric id space; Broadcast distinguishes the two. AccessHash is
// the transport-level credential needed to address the peer directly and may
// be zero when the identity came from a source that does not carry it.
type Identity struct {
	ID         int64  `json:"id"`
	AccessHash int64  `json:"-"`
	Broadcast  bool   `json:"broadcast"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Title      string `json:"title,omitempty"`
	Username   string `json:"username,omitempty"`
}

// DisplayName renders the identity for operator-facing output.
func (i Identity) DisplayName() string {
	if i.Broadcast {
		title := i.Title
		if title == "" {
			title = fmt.Sprintf("%d", i.ID)
		}
		if i.Username != "" {
			title += " (@" + i.Username + ")"
		}
		return "channel: " + title
	}
	var b strings.Builder
	if i.FirstName != "" {
		b.WriteString(i.FirstName)
		if i.LastName != "" {
			b.WriteString(" ")
			b.WriteString(i.LastName)
		}
	} else {
		fmt.Fprintf(&b, "%d", i.ID)
	}
	if i.Username != "" {
		fmt.Fprintf(&b, " (@%s)", i.Username)
	}
	return b.String()
}

// MembershipInfo is the result of a membership lookup for one (scope, id)
// pair. CanRestrict reports whether the queried participant holds rights to
// ban others (used when probing the service account's own role).
// ChannelPeerID is non-zero when the participant is a broadcast persona and
// carries the underlying channel id to address it by.
type MembershipInfo struct {
	CanRestrict   bool
	ChannelPeerID int64
	// Identity is the matched participant when the remote response
	// enumerated it; nil when the lookup only confirmed membership.
	Identity *Identity
}

// PeerRefKind selects how a PeerRef addresses the target on the wire.
type PeerRefKind int

const (
	// PeerRefID addresses the target by bare numeric id.
	PeerRefID PeerRefKind = iota
	// PeerRefIdentity addresses the target through a fully resolved identity.
	PeerRefIdentity
	// PeerRefChannel addresses a broadcast persona by its channel id.
	PeerRefChannel
	// PeerRefRaw constructs a minimal input peer from id plus access hash.
	PeerRefRaw
)

// PeerRef is an addressing reference for one moderation target. The executor
// builds successive refs of different kinds while walking its fallback chain;
// the roster adapter translates each kind into the corresponding wire form.
type PeerRef struct {
	Kind     PeerRefKind
	ID       int64
	Identity *Identity
}

func (r PeerRef) String() string {
	switch r.Kind {
	case PeerRefIdentity:
		return fmt.Sprintf("identity(%d)", r.ID)
	case PeerRefChannel:
		return fmt.Sprintf("channel(%d)", r.ID)
	case PeerRefRaw:
		return fmt.Sprintf("raw(%d)", r.ID)
	default:
		return fmt.Sprintf("id(%d)", r.ID)
	}
}

// MemberRights is the set of restrictions applied to a participant in one
// scope. A set flag revokes the corresponding capability. ViewMessages set
// means full exclusion. UntilDate zero means the restriction is permanent.
type MemberRights struct {
	ViewMessages bool
	SendMessages bool
	SendMedia    bool
	SendStickers bool
	SendGIFs     bool
	SendGames    bool
	SendInline   bool
	EmbedLinks   bool
	UntilDate    time.Time
}

// BatchOutcome aggregates one dispatch across many scopes. FailedScopeTitles
// follows completion order within each chunk, not input order, and is
// truncated by the HTTP layer, not here.
type BatchOutcome struct {
	Succeeded         int      `json:"succeeded"`
	Failed            int      `json:"failed"`
	FailedScopeTitles []string `json:"failed_scope_titles"`
}
