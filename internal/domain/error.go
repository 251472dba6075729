package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrValidation        = errors.New("validation failed")
	ErrProviderFailure   = errors.New("model provider call failed")
	ErrPersistence       = errors.New("persistence failure")

	// Tool registry errors
	ErrToolNotFound     = errors.New("tool not found")
	ErrToolDisabled     = errors.New("tool disabled")
	ErrPermissionDenied = errors.New("permission denied")

	// Queue errors
	ErrQueueSaturated = errors.New("worker queue full")
	ErrJobNotFound    = errors.New("job not found")

	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)

// Terminal reports whether err can never succeed on retry. The task queue
// uses this to short-circuit the retry loop: validation problems, missing
// entities, cross-tenant access and rate-limit denials are failed on the
// first attempt regardless of max_retries.
func Terminal(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAccessDenied),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrInvalidTransition):
		return true
	}
	return false
}
