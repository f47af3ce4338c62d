package port

import (
	"context"
	"time"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
)

// PasscodeDelivery is the out-of-band delivery request handed to the notifier.
// Code is the only place the plaintext passcode ever leaves the core.
type PasscodeDelivery struct {
	PrincipalID   string
	PrincipalKind domain.PrincipalKind
	Email         string
	Purpose       domain.PasscodePurpose
	Code          string
	ExpiresAt     time.Time
}

// Notifier delivers a passcode out-of-band. Formatting and transport
// (SMTP, API mailer) are entirely its concern; the core only supplies the
// secret and who it belongs to.
type Notifier interface {
	DeliverPasscode(ctx context.Context, delivery PasscodeDelivery) error
}
