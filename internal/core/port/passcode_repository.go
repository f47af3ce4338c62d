package port

import (
	"context"
	"time"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
)

// PasscodeRepository is the transactional ledger for one-time passcodes.
type PasscodeRepository interface {
	// IssueSuperseding marks every unused passcode for the same
	// (principal, purpose) as used and inserts the new record, all within a
	// single transaction. A concurrent Consume sees either the old state or
	// the new one, never a half-superseded ledger.
	IssueSuperseding(ctx context.Context, passcode domain.Passcode) error
	// GetLatestUnused returns the most recently issued unused passcode for
	// the principal, expired or not; expiry is the caller's decision.
	GetLatestUnused(ctx context.Context, principalID string) (*domain.Passcode, error)
	// Consume flips used to true iff it is still false. Returns
	// repository.ErrNotFound when the row is missing or already consumed, so
	// exactly one of several concurrent callers wins.
	Consume(ctx context.Context, id string) error
	// DeleteExpired removes passcodes whose expiry predates the cutoff.
	// Storage hygiene only; validation never relies on it.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
