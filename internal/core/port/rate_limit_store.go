package port

import (
	"context"
	"time"
)

// RateLimitStore tracks timestamped attempts inside a sliding window.
// Used to throttle passcode issuance per principal.
type RateLimitStore interface {
	RecordAttempt(ctx context.Context, key string, at time.Time) error
	CountAttempts(ctx context.Context, key string, window time.Duration, reference time.Time) (int, error)
	TrimWindow(ctx context.Context, key string, window time.Duration, reference time.Time) error
	OldestAttempt(ctx context.Context, key string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
