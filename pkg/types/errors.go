package types

import "errors"

// Validation errors surfaced to clients as malformed-payload notices
var (
	ErrInvalidRole      = errors.New("role must be 'interviewer' or 'interviewee'")
	ErrEmptyChatMessage = errors.New("chat message cannot be empty")
	ErrContentTooLarge  = errors.New("message content exceeds 64KB limit")
)
