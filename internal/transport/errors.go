package transport

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError reports that the platform refused the request and told
// us how long to wait before trying again.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// PermanentError marks a request the platform rejected outright
// (bad recipient, malformed markup, blocked bot). Retrying cannot help.
type PermanentError struct {
	Code int
	Msg  string
}

func (e *PermanentError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("permanent: %s (code=%d)", e.Msg, e.Code)
	}
	return "permanent: " + e.Msg
}

// AsRateLimited unwraps err to a *RateLimitedError, if any.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err is worth retrying with backoff.
// Everything that is neither a rate-limit signal nor a permanent
// rejection is assumed to be a transport blip.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := AsRateLimited(err); ok {
		return false
	}
	return !IsPermanent(err)
}
