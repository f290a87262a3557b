package router

import "errors"

// Router-specific errors
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidEditor     = errors.New("invalid active editor")
)
