package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/repository"
)

const (
	defaultLockThreshold = 5
	defaultLockDuration  = 15 * time.Minute

	defaultSuspensionReason = "suspended by an administrator"
)

// AccountSecurityService tracks failed attempts, timed locks and
// administrative suspensions per principal. Suspension always wins over a
// lock; both expire lazily, on read, never via a background job.
type AccountSecurityService struct {
	states        port.SecurityStateRepository
	events        port.EventPublisher
	logger        *zap.Logger
	now           func() time.Time
	lockThreshold int
	lockDuration  time.Duration
}

// NewAccountSecurityService constructs an AccountSecurityService.
func NewAccountSecurityService(states port.SecurityStateRepository, events port.EventPublisher, lockThreshold int, lockDuration time.Duration, logger *zap.Logger) *AccountSecurityService {
	if lockThreshold <= 0 {
		lockThreshold = defaultLockThreshold
	}
	if lockDuration <= 0 {
		lockDuration = defaultLockDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AccountSecurityService{
		states:        states,
		events:        events,
		logger:        logger,
		now:           time.Now,
		lockThreshold: lockThreshold,
		lockDuration:  lockDuration,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AccountSecurityService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CanAttemptLogin reports whether the principal may attempt to log in.
// Suspension is checked first and surfaces an AccountSuspendedError carrying
// the admin-supplied reason, defaulted to a generic message when none was
// recorded; a standing lock surfaces ErrAccountLocked. A principal without a
// security state row is unrestricted.
func (s *AccountSecurityService) CanAttemptLogin(ctx context.Context, principalID string) error {
	state, err := s.states.Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load security state: %w", err)
	}

	now := s.now().UTC()
	if state.IsSuspended(now) {
		reason := defaultSuspensionReason
		if state.SuspensionReason != nil && *state.SuspensionReason != "" {
			reason = *state.SuspensionReason
		}
		return &AccountSuspendedError{Reason: reason, Until: state.SuspendedUntil}
	}
	if state.IsLocked(now) {
		return ErrAccountLocked
	}

	return nil
}

// RecordFailure counts a failed attempt. The increment and the threshold
// check happen in a single storage statement; when this particular failure
// is the one that reaches the threshold, the account is locked, the counter
// resets and an event is published.
func (s *AccountSecurityService) RecordFailure(ctx context.Context, principalID string) (*domain.SecurityState, error) {
	now := s.now().UTC()

	state, err := s.states.RecordFailure(ctx, principalID, s.lockThreshold, s.lockDuration, now)
	if err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}

	if state.FailedAttempts == 0 && state.LockedUntil != nil && state.LockedUntil.After(now) {
		s.logger.Warn("account locked after repeated failures",
			zap.String("principal_id", principalID),
			zap.Time("locked_until", *state.LockedUntil),
		)
		s.publishLocked(ctx, principalID, *state.LockedUntil, false, now)
	}

	return state, nil
}

// RecordSuccess clears the failure counter and any timed lock.
func (s *AccountSecurityService) RecordSuccess(ctx context.Context, principalID string) error {
	if err := s.states.RecordSuccess(ctx, principalID, s.now().UTC()); err != nil {
		return fmt.Errorf("record successful attempt: %w", err)
	}
	return nil
}

// Suspend places an administrative suspension. A nil until suspends
// indefinitely. Suspending an already suspended principal refreshes the
// reason and horizon rather than failing.
func (s *AccountSecurityService) Suspend(ctx context.Context, principalID string, reason string, until *time.Time) error {
	now := s.now().UTC()
	if err := s.states.Suspend(ctx, principalID, reason, until, now); err != nil {
		return fmt.Errorf("suspend principal: %w", err)
	}

	if s.events != nil {
		event := domain.AccountSuspendedEvent{
			EventID:        uuid.NewString(),
			PrincipalID:    principalID,
			Reason:         reason,
			SuspendedUntil: until,
			At:             now,
		}
		if err := s.events.PublishAccountSuspended(ctx, event); err != nil {
			s.logger.Warn("publish account suspended event failed", zap.Error(err))
		}
	}

	return nil
}

// Unsuspend lifts a suspension. Lifting a principal that is not suspended is
// a no-op.
func (s *AccountSecurityService) Unsuspend(ctx context.Context, principalID string) error {
	now := s.now().UTC()
	if err := s.states.Unsuspend(ctx, principalID, now); err != nil {
		return fmt.Errorf("unsuspend principal: %w", err)
	}

	if s.events != nil {
		event := domain.AccountSuspendedEvent{
			EventID:     uuid.NewString(),
			PrincipalID: principalID,
			Lifted:      true,
			At:          now,
		}
		if err := s.events.PublishAccountSuspended(ctx, event); err != nil {
			s.logger.Warn("publish account unsuspended event failed", zap.Error(err))
		}
	}

	return nil
}

// Lock places an administrative timed lock regardless of the failure counter.
func (s *AccountSecurityService) Lock(ctx context.Context, principalID string, until time.Time) error {
	now := s.now().UTC()
	if err := s.states.Lock(ctx, principalID, until, now); err != nil {
		return fmt.Errorf("lock principal: %w", err)
	}

	s.publishLocked(ctx, principalID, until, true, now)
	return nil
}

// Unlock clears the lock and resets the failure counter, so a freshly
// unlocked account starts from a clean slate.
func (s *AccountSecurityService) Unlock(ctx context.Context, principalID string) error {
	if err := s.states.Unlock(ctx, principalID, s.now().UTC()); err != nil {
		return fmt.Errorf("unlock principal: %w", err)
	}
	return nil
}

func (s *AccountSecurityService) publishLocked(ctx context.Context, principalID string, until time.Time, byAdmin bool, now time.Time) {
	if s.events == nil {
		return
	}
	event := domain.AccountLockedEvent{
		EventID:     uuid.NewString(),
		PrincipalID: principalID,
		LockedUntil: until,
		ByAdmin:     byAdmin,
		At:          now,
	}
	if err := s.events.PublishAccountLocked(ctx, event); err != nil {
		s.logger.Warn("publish account locked event failed", zap.Error(err))
	}
}
