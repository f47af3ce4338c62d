package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	PrincipalID string            `json:"principal_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Version     string            `json:"version"`
	Payload     any               `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, principalID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:     id,
		EventType:   eventType,
		PrincipalID: principalID,
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(principalID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishLoginSucceeded publishes accounts.login.succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	return p.publish(ctx, event.EventID, "login.succeeded", event.PrincipalID, event.At, event)
}

// PublishLoginFailed publishes accounts.login.failed events.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	return p.publish(ctx, event.EventID, "login.failed", event.PrincipalID, event.At, event)
}

// PublishAccountLocked publishes accounts.security.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	return p.publish(ctx, event.EventID, "security.locked", event.PrincipalID, event.At, event)
}

// PublishAccountSuspended publishes accounts.security.suspended events.
func (p *EventPublisher) PublishAccountSuspended(ctx context.Context, event domain.AccountSuspendedEvent) error {
	return p.publish(ctx, event.EventID, "security.suspended", event.PrincipalID, event.At, event)
}

// PublishPasscodeIssued publishes accounts.passcode.issued events.
func (p *EventPublisher) PublishPasscodeIssued(ctx context.Context, event domain.PasscodeIssuedEvent) error {
	return p.publish(ctx, event.EventID, "passcode.issued", event.PrincipalID, event.At, event)
}

// PublishPasswordChanged publishes accounts.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	return p.publish(ctx, event.EventID, "password.changed", event.PrincipalID, event.ChangedAt, event)
}

// PublishHashMigrated publishes accounts.password.hash_migrated events.
func (p *EventPublisher) PublishHashMigrated(ctx context.Context, event domain.HashMigratedEvent) error {
	return p.publish(ctx, event.EventID, "password.hash_migrated", event.PrincipalID, event.At, event)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
