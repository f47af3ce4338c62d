package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newSecurityFixture(t *testing.T) (*AccountSecurityService, *securityStateRepoMock, *publisherMock, time.Time) {
	t.Helper()

	states := newSecurityStateRepoMock()
	events := &publisherMock{}
	fixed := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

	svc := NewAccountSecurityService(states, events, 3, 15*time.Minute, zap.NewNop())
	svc.WithClock(func() time.Time { return fixed })

	return svc, states, events, fixed
}

func TestCanAttemptLoginWithoutState(t *testing.T) {
	svc, _, _, _ := newSecurityFixture(t)

	if err := svc.CanAttemptLogin(context.Background(), "p-1"); err != nil {
		t.Fatalf("expected a clean principal to pass, got %v", err)
	}
}

func TestRecordFailureLocksAtThreshold(t *testing.T) {
	svc, _, events, fixed := newSecurityFixture(t)

	for i := 0; i < 2; i++ {
		state, err := svc.RecordFailure(context.Background(), "p-1")
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i+1, err)
		}
		if state.LockedUntil != nil {
			t.Fatalf("attempt %d: expected no lock yet", i+1)
		}
		if state.FailedAttempts != i+1 {
			t.Fatalf("attempt %d: expected counter %d, got %d", i+1, i+1, state.FailedAttempts)
		}
	}

	state, err := svc.RecordFailure(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if state.LockedUntil == nil || !state.LockedUntil.Equal(fixed.Add(15*time.Minute)) {
		t.Fatalf("expected lock until %v, got %v", fixed.Add(15*time.Minute), state.LockedUntil)
	}
	if state.FailedAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", state.FailedAttempts)
	}
	if len(events.locked) != 1 {
		t.Fatalf("expected 1 locked event, got %d", len(events.locked))
	}
	if events.locked[0].ByAdmin {
		t.Fatal("expected a threshold lock, not an administrative one")
	}

	if err := svc.CanAttemptLogin(context.Background(), "p-1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestRecordFailureThresholdOneLocksImmediately(t *testing.T) {
	states := newSecurityStateRepoMock()
	events := &publisherMock{}
	fixed := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

	svc := NewAccountSecurityService(states, events, 1, 15*time.Minute, zap.NewNop())
	svc.WithClock(func() time.Time { return fixed })

	state, err := svc.RecordFailure(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if state.LockedUntil == nil || !state.LockedUntil.Equal(fixed.Add(15*time.Minute)) {
		t.Fatalf("expected the first failure to lock, got %v", state.LockedUntil)
	}
	if state.FailedAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", state.FailedAttempts)
	}
	if len(events.locked) != 1 {
		t.Fatalf("expected 1 locked event, got %d", len(events.locked))
	}
}

func TestLockExpiryIsLazy(t *testing.T) {
	svc, states, _, fixed := newSecurityFixture(t)

	expired := fixed.Add(-time.Second)
	if err := states.Lock(context.Background(), "p-1", expired, fixed.Add(-time.Hour)); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := svc.CanAttemptLogin(context.Background(), "p-1"); err != nil {
		t.Fatalf("expected expired lock to pass, got %v", err)
	}
}

func TestSuspendCheckedBeforeLock(t *testing.T) {
	svc, _, _, fixed := newSecurityFixture(t)

	if err := svc.Lock(context.Background(), "p-1", fixed.Add(time.Hour)); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := svc.Suspend(context.Background(), "p-1", "fraud review", nil); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	if err := svc.CanAttemptLogin(context.Background(), "p-1"); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestCanAttemptLoginCarriesSuspensionReason(t *testing.T) {
	svc, _, _, _ := newSecurityFixture(t)

	if err := svc.Suspend(context.Background(), "p-1", "fraud review", nil); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	var suspErr *AccountSuspendedError
	if err := svc.CanAttemptLogin(context.Background(), "p-1"); !errors.As(err, &suspErr) {
		t.Fatalf("expected an AccountSuspendedError, got %v", err)
	}
	if suspErr.Reason != "fraud review" {
		t.Fatalf("expected the stored reason, got %q", suspErr.Reason)
	}
}

func TestCanAttemptLoginDefaultsSuspensionReason(t *testing.T) {
	svc, _, _, _ := newSecurityFixture(t)

	if err := svc.Suspend(context.Background(), "p-1", "", nil); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	var suspErr *AccountSuspendedError
	if err := svc.CanAttemptLogin(context.Background(), "p-1"); !errors.As(err, &suspErr) {
		t.Fatalf("expected an AccountSuspendedError, got %v", err)
	}
	if suspErr.Reason != defaultSuspensionReason {
		t.Fatalf("expected the generic reason, got %q", suspErr.Reason)
	}
}

func TestSuspendWithExpiry(t *testing.T) {
	svc, _, events, fixed := newSecurityFixture(t)

	until := fixed.Add(time.Minute)
	if err := svc.Suspend(context.Background(), "p-1", "cooldown", &until); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if err := svc.CanAttemptLogin(context.Background(), "p-1"); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}

	// Re-suspending refreshes the horizon instead of failing.
	later := fixed.Add(2 * time.Hour)
	if err := svc.Suspend(context.Background(), "p-1", "extended", &later); err != nil {
		t.Fatalf("second Suspend: %v", err)
	}
	if len(events.suspended) != 2 {
		t.Fatalf("expected 2 suspended events, got %d", len(events.suspended))
	}

	svc.WithClock(func() time.Time { return fixed.Add(3 * time.Hour) })
	if err := svc.CanAttemptLogin(context.Background(), "p-1"); err != nil {
		t.Fatalf("expected timed suspension to expire lazily, got %v", err)
	}
}

func TestUnsuspendLiftsAndPublishes(t *testing.T) {
	svc, _, events, _ := newSecurityFixture(t)

	if err := svc.Suspend(context.Background(), "p-1", "fraud review", nil); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if err := svc.Unsuspend(context.Background(), "p-1"); err != nil {
		t.Fatalf("Unsuspend: %v", err)
	}

	if err := svc.CanAttemptLogin(context.Background(), "p-1"); err != nil {
		t.Fatalf("expected lifted suspension to pass, got %v", err)
	}

	if len(events.suspended) != 2 {
		t.Fatalf("expected 2 suspension events, got %d", len(events.suspended))
	}
	if !events.suspended[1].Lifted {
		t.Fatal("expected the second event to record the lift")
	}
}

func TestUnsuspendIsIdempotent(t *testing.T) {
	svc, _, _, _ := newSecurityFixture(t)

	if err := svc.Unsuspend(context.Background(), "p-1"); err != nil {
		t.Fatalf("expected unsuspending a clean principal to be a no-op, got %v", err)
	}
}

func TestAdminLockPublishesAndBlocks(t *testing.T) {
	svc, _, events, fixed := newSecurityFixture(t)

	until := fixed.Add(time.Hour)
	if err := svc.Lock(context.Background(), "p-1", until); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := svc.CanAttemptLogin(context.Background(), "p-1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if len(events.locked) != 1 || !events.locked[0].ByAdmin {
		t.Fatal("expected an administrative locked event")
	}
}

func TestUnlockResetsCounter(t *testing.T) {
	svc, states, _, _ := newSecurityFixture(t)

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordFailure(context.Background(), "p-1"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if err := svc.CanAttemptLogin(context.Background(), "p-1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock after threshold, got %v", err)
	}

	if err := svc.Unlock(context.Background(), "p-1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	state, err := states.Get(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	if state.FailedAttempts != 0 || state.LockedUntil != nil {
		t.Fatalf("expected a clean state after unlock, got %+v", state)
	}

	// The next single failure must not re-lock immediately.
	fresh, err := svc.RecordFailure(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if fresh.LockedUntil != nil {
		t.Fatal("expected no immediate re-lock after unlock")
	}
}

func TestRecordSuccessClearsState(t *testing.T) {
	svc, states, _, _ := newSecurityFixture(t)

	if _, err := svc.RecordFailure(context.Background(), "p-1"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := svc.RecordSuccess(context.Background(), "p-1"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	state, err := states.Get(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	if state.FailedAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", state.FailedAttempts)
	}
}
