package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used in
// development and whenever no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, principalID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("principal_id", principalID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishLoginSucceeded logs accounts.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.logEvent("login.succeeded", event.PrincipalID, event.At, event)
	return nil
}

// PublishLoginFailed logs accounts.login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	p.logEvent("login.failed", event.PrincipalID, event.At, event)
	return nil
}

// PublishAccountLocked logs accounts.security.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent("security.locked", event.PrincipalID, event.At, event)
	return nil
}

// PublishAccountSuspended logs accounts.security.suspended events.
func (p *StubPublisher) PublishAccountSuspended(_ context.Context, event domain.AccountSuspendedEvent) error {
	p.logEvent("security.suspended", event.PrincipalID, event.At, event)
	return nil
}

// PublishPasscodeIssued logs accounts.passcode.issued events.
func (p *StubPublisher) PublishPasscodeIssued(_ context.Context, event domain.PasscodeIssuedEvent) error {
	p.logEvent("passcode.issued", event.PrincipalID, event.At, event)
	return nil
}

// PublishPasswordChanged logs accounts.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent("password.changed", event.PrincipalID, event.ChangedAt, event)
	return nil
}

// PublishHashMigrated logs accounts.password.hash_migrated events.
func (p *StubPublisher) PublishHashMigrated(_ context.Context, event domain.HashMigratedEvent) error {
	p.logEvent("password.hash_migrated", event.PrincipalID, event.At, event)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
