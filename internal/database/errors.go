package database

import "errors"

var (
	ErrManagerClosed   = errors.New("database manager is closed")
	ErrWriteTimeout    = errors.New("write operation timeout")
	ErrWriteQueueFull  = errors.New("archive write queue is full")
	ErrInvalidRecordID = errors.New("room id is required")
)
