package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/config"
)

func newPasscodeFixture(t *testing.T, principals ...domain.Principal) (*PasscodeService, *passcodeRepoMock, *rateLimitStoreMock, *publisherMock, *notifierMock, time.Time) {
	t.Helper()

	cfg := &config.AppConfig{
		Security: config.SecuritySettings{OTPLength: 6},
		RateLimit: config.RateLimitSettings{
			WindowDuration:   time.Hour,
			IssueMaxAttempts: 3,
		},
	}

	passcodes := newPasscodeRepoMock()
	limits := newRateLimitStoreMock()
	events := &publisherMock{}
	notifier := &notifierMock{}

	fixed := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

	svc := NewPasscodeService(cfg, passcodes, newPrincipalRepoMock(principals...), limits, events, notifier, nil, zap.NewNop())
	svc.WithClock(func() time.Time { return fixed })

	return svc, passcodes, limits, events, notifier, fixed
}

func TestIssueGeneratesAndDeliversCode(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, events, notifier, fixed := newPasscodeFixture(t, principal)

	result, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeSetup, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if len(result.Code) != 6 {
		t.Fatalf("expected a 6 digit code, got %q", result.Code)
	}
	if want := fixed.Add(24 * time.Hour); !result.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, result.ExpiresAt)
	}

	if len(notifier.deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(notifier.deliveries))
	}
	if notifier.deliveries[0].Code != result.Code {
		t.Fatal("expected the notifier to receive the plaintext code")
	}

	if len(events.issued) != 1 {
		t.Fatalf("expected 1 issued event, got %d", len(events.issued))
	}
	if events.issued[0].MaskedEmail == principal.Email {
		t.Fatal("expected the event email to be masked")
	}
}

func TestIssueSupersedesPriorCode(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, _, _, _ := newPasscodeFixture(t, principal)

	first, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute)
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	second, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute)
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}

	if status, _, err := svc.Validate(context.Background(), principal.ID, first.Code); err != nil || status != ValidationMismatch {
		t.Fatalf("expected superseded code to mismatch, got status %q err %v", status, err)
	}
	if status, _, err := svc.Validate(context.Background(), principal.ID, second.Code); err != nil || status != ValidationOK {
		t.Fatalf("expected the latest code to validate, got status %q err %v", status, err)
	}
}

func TestValidateNoActiveCode(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, _, _, _ := newPasscodeFixture(t, principal)

	status, _, err := svc.Validate(context.Background(), principal.ID, "123456")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if status != ValidationNoActiveCode {
		t.Fatalf("expected %q, got %q", ValidationNoActiveCode, status)
	}
}

func TestValidateSingleUse(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, _, _, _ := newPasscodeFixture(t, principal)

	result, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if status, _, err := svc.Validate(context.Background(), principal.ID, result.Code); err != nil || status != ValidationOK {
		t.Fatalf("first validation: status %q err %v", status, err)
	}
	if status, _, err := svc.Validate(context.Background(), principal.ID, result.Code); err != nil || status != ValidationNoActiveCode {
		t.Fatalf("expected consumed code to be gone, got status %q err %v", status, err)
	}
}

func TestValidateConcurrentSingleWinner(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, _, _, _ := newPasscodeFixture(t, principal)

	result, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const attempts = 8
	statuses := make([]ValidationStatus, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, _, err := svc.Validate(context.Background(), principal.ID, result.Code)
			if err != nil {
				t.Errorf("Validate: %v", err)
				return
			}
			statuses[i] = status
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, status := range statuses {
		if status == ValidationOK {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestValidateExpiredCode(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, _, _, fixed := newPasscodeFixture(t, principal)

	result, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	svc.WithClock(func() time.Time { return fixed.Add(10*time.Minute + time.Second) })

	status, _, err := svc.Validate(context.Background(), principal.ID, result.Code)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if status != ValidationExpired {
		t.Fatalf("expected %q, got %q", ValidationExpired, status)
	}
}

func TestValidateAtExpiryBoundary(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, _, _, fixed := newPasscodeFixture(t, principal)

	result, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// One tick before expiry the code still works; at the exact expiry
	// instant it does not.
	svc.WithClock(func() time.Time { return fixed.Add(10*time.Minute - time.Nanosecond) })

	status, _, err := svc.Validate(context.Background(), principal.ID, result.Code)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if status != ValidationOK {
		t.Fatalf("expected %q just before expiry, got %q", ValidationOK, status)
	}

	second, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	svc.WithClock(func() time.Time { return fixed.Add(20*time.Minute - time.Nanosecond) })

	status, _, err = svc.Validate(context.Background(), principal.ID, second.Code)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if status != ValidationExpired {
		t.Fatalf("expected %q at the expiry instant, got %q", ValidationExpired, status)
	}
}

func TestIssueRateLimited(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, _, _, _ := newPasscodeFixture(t, principal)

	for i := 0; i < 3; i++ {
		if _, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute); err != nil {
			t.Fatalf("issue %d: %v", i+1, err)
		}
	}

	_, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute)
	var limitErr *RateLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if limitErr.RetryAfter <= 0 {
		t.Fatalf("expected a positive retry hint, got %v", limitErr.RetryAfter)
	}
}

func TestIssueRateLimitIsPerPurpose(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, _, _, _ := newPasscodeFixture(t, principal)

	for i := 0; i < 3; i++ {
		if _, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute); err != nil {
			t.Fatalf("issue %d: %v", i+1, err)
		}
	}

	if _, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeSetup, 24*time.Hour); err != nil {
		t.Fatalf("expected setup issuance to have its own budget, got %v", err)
	}
}

func TestIssueUnknownPrincipal(t *testing.T) {
	svc, _, _, _, _, _ := newPasscodeFixture(t)

	_, err := svc.Issue(context.Background(), domain.KindStaffUser, "missing", domain.PurposeSetup, time.Hour)
	if !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestIssueDeliveryFailure(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, _, _, events, notifier, _ := newPasscodeFixture(t, principal)
	notifier.err = errStorageDown

	if _, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeSetup, time.Hour); err == nil {
		t.Fatal("expected delivery failure to surface")
	}
	if len(events.issued) != 0 {
		t.Fatal("expected no issued event when delivery failed")
	}
}

func TestSweepExpiredRemovesOldRows(t *testing.T) {
	principal := staffPrincipal(t, "alice", "irrelevant-password-1")
	svc, passcodes, _, _, _, fixed := newPasscodeFixture(t, principal)

	if _, err := svc.Issue(context.Background(), principal.Kind, principal.ID, domain.PurposeReset, 10*time.Minute); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	svc.WithClock(func() time.Time { return fixed.Add(48 * time.Hour) })

	deleted, err := svc.SweepExpired(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired returned error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 row removed, got %d", deleted)
	}
	if len(passcodes.records) != 0 {
		t.Fatalf("expected ledger to be empty, got %d rows", len(passcodes.records))
	}
}
