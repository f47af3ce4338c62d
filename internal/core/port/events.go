package port

import (
	"context"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
)

// EventPublisher publishes account-security domain events to the message bus.
type EventPublisher interface {
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishAccountSuspended(ctx context.Context, event domain.AccountSuspendedEvent) error
	PublishPasscodeIssued(ctx context.Context, event domain.PasscodeIssuedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishHashMigrated(ctx context.Context, event domain.HashMigratedEvent) error
}
