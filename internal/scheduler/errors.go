package scheduler

import "errors"

var (
	ErrReaperAlreadyRunning = errors.New("reaper is already running")
	ErrReaperNotRunning     = errors.New("reaper is not running")
)
