package domain

import (
	"context"
	"time"
)

// ModerationAuditEvent records one fleet dispatch for the audit stream.
type ModerationAuditEvent struct {
	OperationID       string    `json:"operation_id"`
	Action            Action    `json:"action"`
	TargetID          int64     `json:"target_id"`
	TargetDisplay     string    `json:"target_display"`
	Reason            string    `json:"reason,omitempty"`
	Succeeded         int       `json:"succeeded"`
	Failed            int       `json:"failed"`
	FailedScopeTitles []string  `json:"failed_scope_titles,omitempty"`
	DispatchedAt      time.Time `json:"dispatched_at"`
}

// AuditPublisher emits moderation audit events to an external stream.
// Publishing is best-effort: implementations log failures and never block a
// dispatch result on delivery.
type AuditPublisher interface {
	PublishModerationEvent(ctx context.Context, event ModerationAuditEvent) error
}
