package types

import (
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
var roomIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// MaxChatMessageBytes bounds a single chat line.
const MaxChatMessageBytes = 65536

// IsValidRoomID checks if a room ID meets format requirements.
// Generated ids are 6 uppercase alphanumerics; ids chosen by an interviewer
// tool may be anything in [A-Za-z0-9_-] up to 64 characters.
func IsValidRoomID(roomID string) bool {
	if len(roomID) < 1 || len(roomID) > 64 {
		return false
	}
	return roomIDRegex.MatchString(roomID)
}

// ParseRole converts a wire role string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleInterviewer, RoleInterviewee:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// ValidateChatText checks a chat line before it reaches the log.
func ValidateChatText(text string) error {
	if text == "" {
		return ErrEmptyChatMessage
	}
	if len(text) > MaxChatMessageBytes {
		return ErrContentTooLarge
	}
	return nil
}
