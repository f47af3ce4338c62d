package domain

import "time"

// PrincipalKind distinguishes the two account populations that can log in.
type PrincipalKind string

const (
	KindStaffUser      PrincipalKind = "staff_user"
	KindExternalClient PrincipalKind = "external_client"
)

// AuthenticationOrder is the fixed resolution order for login attempts.
// Staff accounts are tried first so an external client can never shadow one.
var AuthenticationOrder = []PrincipalKind{KindStaffUser, KindExternalClient}

// Principal mirrors the persisted representation in the principals table.
// PasswordHash is empty until the first passcode-driven setup completes.
type Principal struct {
	ID           string
	Kind         PrincipalKind
	Username     string
	Email        string
	PasswordHash string
	HashScheme   string
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// SecurityState is the mutable lockout/suspension record attached 1:1 to a principal.
type SecurityState struct {
	PrincipalID      string
	FailedAttempts   int
	LockedUntil      *time.Time
	Suspended        bool
	SuspensionReason *string
	SuspendedUntil   *time.Time
	UpdatedAt        time.Time
}

// IsLocked reports whether the timed lock is still in force at now.
func (s SecurityState) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// IsSuspended reports whether the suspension applies at now.
// A suspension without an end timestamp holds until explicitly lifted.
func (s SecurityState) IsSuspended(now time.Time) bool {
	if !s.Suspended {
		return false
	}
	return s.SuspendedUntil == nil || now.Before(*s.SuspendedUntil)
}
