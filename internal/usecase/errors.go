package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is the uniform login failure. Unknown identifier,
	// wrong password and inactive accounts all surface this same value so
	// callers cannot enumerate accounts. Locked and suspended accounts are
	// policy rejections and carry their own errors instead.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountSuspended indicates the account is administratively suspended.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountLocked indicates a timed lock is still in force.
	ErrAccountLocked = errors.New("account locked")
	// ErrInactiveAccount indicates the account is disabled.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrPrincipalNotFound indicates the referenced principal does not exist.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPasscodeInvalid indicates the supplied passcode does not match or no
	// active one exists.
	ErrPasscodeInvalid = errors.New("passcode invalid")
	// ErrPasscodeExpired indicates the active passcode has expired.
	ErrPasscodeExpired = errors.New("passcode expired")
	// ErrNewPasswordInvalid indicates the new password failed validation rules.
	ErrNewPasswordInvalid = errors.New("new password does not meet requirements")
)

// AccountSuspendedError carries the admin-supplied suspension reason so the
// caller can show it. Unwrap keeps errors.Is(err, ErrAccountSuspended)
// working.
type AccountSuspendedError struct {
	Reason string
	Until  *time.Time
}

func (e *AccountSuspendedError) Error() string {
	return fmt.Sprintf("account suspended: %s", e.Reason)
}

func (e *AccountSuspendedError) Unwrap() error { return ErrAccountSuspended }

// RateLimitExceededError reports that issuance throttling rejected a request.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}
