package domain

import "time"

// LoginSucceededEvent represents the payload for accounts.login.succeeded messages.
type LoginSucceededEvent struct {
	EventID       string
	PrincipalID   string
	PrincipalKind PrincipalKind
	Username      string
	At            time.Time
	HashMigrated  bool
	Metadata      map[string]any
}

// LoginFailedEvent represents the payload for accounts.login.failed messages.
// PrincipalID is empty when the identifier resolved to no principal at all.
type LoginFailedEvent struct {
	EventID       string
	PrincipalID   string
	PrincipalKind PrincipalKind
	Identifier    string
	Reason        string
	At            time.Time
	Metadata      map[string]any
}

// AccountLockedEvent represents the payload for accounts.security.locked messages.
type AccountLockedEvent struct {
	EventID     string
	PrincipalID string
	LockedUntil time.Time
	ByAdmin     bool
	At          time.Time
	Metadata    map[string]any
}

// AccountSuspendedEvent represents the payload for accounts.security.suspended
// messages. Lifted is true when the event records an unsuspension.
type AccountSuspendedEvent struct {
	EventID        string
	PrincipalID    string
	Reason         string
	SuspendedUntil *time.Time
	Lifted         bool
	At             time.Time
	Metadata       map[string]any
}

// PasscodeIssuedEvent represents the payload for accounts.passcode.issued
// messages. It never carries the plaintext code; delivery goes through the
// notifier, not the event bus.
type PasscodeIssuedEvent struct {
	EventID       string
	PasscodeID    string
	PrincipalID   string
	PrincipalKind PrincipalKind
	Purpose       PasscodePurpose
	MaskedEmail   string
	ExpiresAt     time.Time
	At            time.Time
	Metadata      map[string]any
}

// PasswordChangedEvent represents the payload for accounts.password.changed messages.
type PasswordChangedEvent struct {
	EventID       string
	PrincipalID   string
	PrincipalKind PrincipalKind
	ChangedAt     time.Time
	Source        string
	Metadata      map[string]any
}

// HashMigratedEvent represents the payload for accounts.password.hash_migrated messages.
type HashMigratedEvent struct {
	EventID       string
	PrincipalID   string
	PrincipalKind PrincipalKind
	FromScheme    string
	ToScheme      string
	At            time.Time
	Metadata      map[string]any
}
