package ratelimit

import "errors"

// Sentinel errors for Limiter operations.
var (
	// ErrUnknownPolicy indicates Check was called with a Policy outside the
	// closed enum defined in policy.go.
	ErrUnknownPolicy = errors.New("unknown rate limit policy")
)
