package domain

import "time"

// PasscodePurpose tags why a passcode was issued.
type PasscodePurpose string

const (
	PurposeSetup PasscodePurpose = "setup"
	PurposeReset PasscodePurpose = "reset"
)

// Passcode is a single-use numeric code bound to exactly one principal.
// The code itself is stored as a SHA-256 hash; the plaintext exists only in
// the issuance result handed to the notifier.
type Passcode struct {
	ID            string
	PrincipalID   string
	PrincipalKind PrincipalKind
	CodeHash      string
	Purpose       PasscodePurpose
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Used          bool
}

// IsValid reports whether the passcode can still be consumed at now.
func (p Passcode) IsValid(now time.Time) bool {
	return !p.Used && now.Before(p.ExpiresAt)
}
