package domain

import "time"

// Action names one fleet-wide moderation operation.
type Action string

const (
	ActionExclude Action = "exclude" // permanent ban, view access revoked
	ActionRestore Action = "restore" // lift all restrictions
	ActionSilence Action = "silence" // revoke send rights for a duration
	ActionExpel   Action = "expel"   // short-lived view ban the platform auto-lifts
)

const (
	// DefaultSilenceDuration applies when a silence request carries no
	// duration.
	DefaultSilenceDuration = 60 * time.Minute
	// MaxSilenceDuration caps operator-supplied silence durations.
	MaxSilenceDuration = 24 * time.Hour
	// expelBanWindow is short enough that the platform treats the ban as a
	// kick and lifts it on its own.
	expelBanWindow = 60 * time.Second
)

// ExcludeRights revokes everything, permanently. ViewMessages set marks this
// as a full exclusion, which additionally triggers the history purge path in
// the executor.
func ExcludeRights() MemberRights {
	return MemberRights{
		ViewMessages: true,
		SendMessages: true,
		SendMedia:    true,
		SendStickers: true,
		SendGIFs:     true,
		SendGames:    true,
		SendInline:   true,
		EmbedLinks:   true,
	}
}

// RestoreRights lifts every restriction.
func RestoreRights() MemberRights {
	return MemberRights{}
}

// SilenceRights revokes send capabilities for d, clamped to
// [DefaultSilenceDuration when zero, MaxSilenceDuration].
func SilenceRights(now time.Time, d time.Duration) MemberRights {
	if d <= 0 {
		d = DefaultSilenceDuration
	}
	if d > MaxSilenceDuration {
		d = MaxSilenceDuration
	}
	return MemberRights{
		SendMessages: true,
		SendMedia:    true,
		SendStickers: true,
		SendGIFs:     true,
		SendGames:    true,
		SendInline:   true,
		EmbedLinks:   true,
		UntilDate:    now.Add(d),
	}
}

// UnsilenceRights lifts send restrictions; identical to RestoreRights but
// kept as its own constructor so call sites read as what they do.
func UnsilenceRights() MemberRights {
	return MemberRights{}
}

// ExpelRights is a view ban with an expiry inside the platform's auto-lift
// window, so the target is removed but may rejoin.
func ExpelRights(now time.Time) MemberRights {
	return MemberRights{
		ViewMessages: true,
		SendMessages: true,
		UntilDate:    now.Add(expelBanWindow),
	}
}

// FullExclusion reports whether r revokes view access permanently. Expel
// also revokes view access but carries an expiry, so it does not count.
func (r MemberRights) FullExclusion() bool {
	return r.ViewMessages && r.UntilDate.IsZero()
}

// RightsFor maps an action to its rights set. Silence uses d as described in
// SilenceRights.
func RightsFor(action Action, now time.Time, d time.Duration) MemberRights {
	switch action {
	case ActionExclude:
		return ExcludeRights()
	case ActionSilence:
		return SilenceRights(now, d)
	case ActionExpel:
		return ExpelRights(now)
	default:
		return RestoreRights()
	}
}
