package interfaces

import "errors"

// Common errors shared by the gateway, router and hub
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNotInRoom        = errors.New("connection is not a participant of this room")
	ErrRecordNotFound   = errors.New("archive record not found")
)

// Notice wraps an error with the text shown to the requesting client.
type Notice struct {
	Err     error
	Message string
}

func (n *Notice) Error() string {
	return n.Message
}

func (n *Notice) Unwrap() error {
	return n.Err
}

// NewNotice returns err annotated with a client-facing message.
func NewNotice(err error, message string) error {
	return &Notice{Err: err, Message: message}
}
