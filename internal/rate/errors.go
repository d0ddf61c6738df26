package rate

import "errors"

// ErrRateLimited is returned when an attempt budget is exhausted.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps backend failures so callers can distinguish an
// enforced limit from an unreachable limiter.
var ErrRedisUnavailable = errors.New("rate limiter backend unavailable")
