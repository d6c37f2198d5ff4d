// Package log provides structured logging utilities built on zerolog.
package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldVoteID        = "vote_id"
	FieldVersion       = "version"
	FieldOption        = "option"
	FieldTaskID        = "task_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
