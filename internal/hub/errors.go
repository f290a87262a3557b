package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrUnknownEvent      = errors.New("unknown event type")
)

// Error codes carried in the error event
const (
	CodeUnauthorized     = "unauthorized"
	CodeMalformedPayload = "malformed_payload"
	CodeNotInRoom        = "not_in_room"
	CodeRateLimited      = "rate_limited"
	CodeUnknownEvent     = "unknown_event"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal_error"
)
