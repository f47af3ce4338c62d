package port

import (
	"context"
	"time"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
)

// SecurityStateRepository persists per-principal lockout and suspension state.
// Mutations are single-statement updates so concurrent attempts against the
// same principal serialize on the row.
type SecurityStateRepository interface {
	Get(ctx context.Context, principalID string) (*domain.SecurityState, error)
	// RecordFailure atomically increments the failure counter. When the
	// counter reaches threshold it sets locked_until = now + lockFor and
	// resets the counter to zero. Returns the post-update state.
	RecordFailure(ctx context.Context, principalID string, threshold int, lockFor time.Duration, now time.Time) (*domain.SecurityState, error)
	// RecordSuccess resets the counter and clears any timed lock.
	RecordSuccess(ctx context.Context, principalID string, now time.Time) error
	Suspend(ctx context.Context, principalID string, reason string, until *time.Time, now time.Time) error
	Unsuspend(ctx context.Context, principalID string, now time.Time) error
	Lock(ctx context.Context, principalID string, until time.Time, now time.Time) error
	// Unlock clears the lock and resets the failure counter so a freshly
	// unlocked account does not re-lock on its first mistake.
	Unlock(ctx context.Context, principalID string, now time.Time) error
}
