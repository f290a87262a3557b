package room

import "errors"

// Store errors
var (
	ErrDuplicateRoom = errors.New("room already exists")
	ErrIDExhausted   = errors.New("could not generate a unique room id")
)
