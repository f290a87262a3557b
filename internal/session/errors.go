package session

import "errors"

// Session gateway error types
var (
	ErrGatewayStopped = errors.New("session gateway is shut down")
)

// Client-facing notice texts
const (
	msgRoomIDRequired   = "Room ID is required"
	msgInvalidRole      = "Role must be 'interviewer' or 'interviewee'"
	msgInterviewerOnly  = "Only the interviewer can end the session"
	reasonEndedByHost   = "Interview ended by interviewer"
	reasonSessionExpiry = "Interview session expired"
	reasonShutdown      = "Server is shutting down"
)
