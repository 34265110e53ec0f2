package messaging

import (
	"errors"

	"stagecall/internal/types"
)

// IsRetryable reports whether a delivery failure is transient. The dispatch
// loop consumes this to choose between the retrying and failed statuses:
// provider unavailability and rate limiting are retried, rejection of the
// message itself is not.
func IsRetryable(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		// Unclassified errors (network-level, unexpected) get the retry
		// budget rather than burning the job.
		return true
	}
	switch appErr.Code {
	case types.ErrCodeUpstreamMessaging, types.ErrCodeUpstreamRateLimit:
		return true
	case types.ErrCodeUpstreamRejected:
		return false
	default:
		return false
	}
}
