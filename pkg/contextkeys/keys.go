package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// OperationIDKey is the context key for the id stamped on one fleet
	// dispatch or resolve operation, used to correlate logs and audit events.
	OperationIDKey contextKey = "operation_id"

	// TargetIDKey is the context key for the numeric id of the moderation
	// target the current operation acts on.
	TargetIDKey contextKey = "target_id"

	// ActionKey is the context key for the moderation action name.
	ActionKey contextKey = "action"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
