package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/logger"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/security"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/telemetry"
	"github.com/MOCDATA-PTY/eclick-identity/internal/repository"
)

const (
	failureReasonUnknownPrincipal = "unknown_principal"
	failureReasonInactive         = "inactive"
	failureReasonSuspended        = "suspended"
	failureReasonLocked           = "locked"
	failureReasonBadPassword      = "bad_password"

	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected"
)

// LoginService is the authentication dispatcher. It tries the principal
// kinds in their fixed order, staff users before external clients; a
// mismatch falls through to the next kind, so a client whose username
// collides with a staff account can still log in with its own password.
// Unknown identifiers, inactive accounts and wrong passwords all surface the
// same ErrInvalidCredentials. Locked and suspended accounts are policy
// rejections: they stop the attempt immediately and return their own errors
// so the caller can show a distinct message.
type LoginService struct {
	principals port.PrincipalRepository
	securitySt *AccountSecurityService
	events     port.EventPublisher
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewLoginService constructs a LoginService.
func NewLoginService(principals port.PrincipalRepository, securityState *AccountSecurityService, events port.EventPublisher, metrics *telemetry.Metrics, log *zap.Logger) *LoginService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginService{
		principals: principals,
		securitySt: securityState,
		events:     events,
		metrics:    metrics,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *LoginService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Authenticate resolves the identifier and verifies the secret. On success
// it resets the failure counter, stamps last_login and, when the stored hash
// still uses the legacy scheme, rehashes the secret with the current scheme.
// Migration is best-effort: a failure there is logged and never turns a
// successful login into a failed one.
//
// Storage failures are returned as wrapped errors distinct from
// ErrInvalidCredentials and are never counted as failed attempts.
func (s *LoginService) Authenticate(ctx context.Context, identifier, secret string) (*domain.Principal, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return nil, s.fail(ctx, nil, identifier, failureReasonUnknownPrincipal)
	}

	var (
		failedPrincipal *domain.Principal
		failureReason   = failureReasonUnknownPrincipal
	)

	for _, kind := range domain.AuthenticationOrder {
		principal, err := s.principals.FindByUsername(ctx, kind, identifier)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("lookup principal: %w", err)
		}

		result, reason, err := s.authenticatePrincipal(ctx, principal, identifier, secret)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}

		// A mismatch on this kind falls through to the next; the reason of
		// the last principal tried feeds the failure event after the loop.
		failedPrincipal, failureReason = principal, reason
	}

	return nil, s.fail(ctx, failedPrincipal, identifier, failureReason)
}

// authenticatePrincipal tries one resolved principal. A nil result with a
// nil error means the dispatcher should continue with the next kind; the
// returned reason tags why this one did not match. Policy rejections and
// storage failures come back as errors and stop the dispatch.
func (s *LoginService) authenticatePrincipal(ctx context.Context, principal *domain.Principal, identifier, secret string) (*domain.Principal, string, error) {
	if !principal.IsActive {
		return nil, failureReasonInactive, nil
	}

	if err := s.securitySt.CanAttemptLogin(ctx, principal.ID); err != nil {
		switch {
		case errors.Is(err, ErrAccountSuspended):
			return nil, "", s.reject(ctx, principal, identifier, failureReasonSuspended, err)
		case errors.Is(err, ErrAccountLocked):
			return nil, "", s.reject(ctx, principal, identifier, failureReasonLocked, err)
		default:
			return nil, "", err
		}
	}

	match, scheme, err := security.VerifyCredential(principal.PasswordHash, secret)
	if err != nil {
		if !errors.Is(err, security.ErrMalformedHash) {
			return nil, "", fmt.Errorf("verify credential: %w", err)
		}
		// Corrupted stored value: treated as a mismatch, never an outage.
		s.logger.Error("stored credential hash is malformed",
			zap.String("principal_id", principal.ID),
			zap.String("kind", string(principal.Kind)),
		)
		match = false
	}

	if !match {
		if _, recErr := s.securitySt.RecordFailure(ctx, principal.ID); recErr != nil {
			s.logger.Warn("record login failure", zap.Error(recErr))
		}
		return nil, failureReasonBadPassword, nil
	}

	now := s.now().UTC()

	if err := s.securitySt.RecordSuccess(ctx, principal.ID); err != nil {
		s.logger.Warn("reset security state after login", zap.Error(err))
	}
	if err := s.principals.RecordLogin(ctx, principal.Kind, principal.ID, now); err != nil {
		s.logger.Warn("record last login", zap.Error(err))
	}

	migrated := false
	if scheme == security.SchemeLegacy {
		migrated = s.migrateHash(ctx, principal, secret, now)
	}

	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(outcomeSuccess).Inc()
	}
	if s.events != nil {
		event := domain.LoginSucceededEvent{
			EventID:       uuid.NewString(),
			PrincipalID:   principal.ID,
			PrincipalKind: principal.Kind,
			Username:      principal.Username,
			At:            now,
			HashMigrated:  migrated,
		}
		if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
			s.logger.Warn("publish login succeeded event failed", zap.Error(err))
		}
	}

	result := *principal
	result.LastLogin = &now
	return &result, "", nil
}

// migrateHash rehashes the secret with the current scheme and persists it.
// Returns whether the stored hash was actually replaced.
func (s *LoginService) migrateHash(ctx context.Context, principal *domain.Principal, secret string, now time.Time) bool {
	rehashed, err := security.HashPassword(secret)
	if err != nil {
		s.logger.Warn("rehash credential for migration", zap.Error(err))
		return false
	}

	if err := s.principals.UpdatePasswordHash(ctx, principal.Kind, principal.ID, rehashed, string(security.SchemeArgon2id), now); err != nil {
		s.logger.Warn("persist migrated credential hash", zap.Error(err))
		return false
	}

	principal.PasswordHash = rehashed
	principal.HashScheme = string(security.SchemeArgon2id)

	s.logger.Info("credential hash migrated",
		zap.String("principal_id", principal.ID),
		zap.String("kind", string(principal.Kind)),
	)

	if s.events != nil {
		event := domain.HashMigratedEvent{
			EventID:       uuid.NewString(),
			PrincipalID:   principal.ID,
			PrincipalKind: principal.Kind,
			FromScheme:    string(security.SchemeLegacy),
			ToScheme:      string(security.SchemeArgon2id),
			At:            now,
		}
		if err := s.events.PublishHashMigrated(ctx, event); err != nil {
			s.logger.Warn("publish hash migrated event failed", zap.Error(err))
		}
	}

	return true
}

// fail records a credential failure and returns the uniform
// ErrInvalidCredentials. reject records a policy rejection (locked,
// suspended) that never increments the failure counter and passes the
// distinct policy error through to the caller.
func (s *LoginService) fail(ctx context.Context, principal *domain.Principal, identifier, reason string) error {
	return s.deny(ctx, principal, identifier, reason, outcomeFailure, ErrInvalidCredentials)
}

func (s *LoginService) reject(ctx context.Context, principal *domain.Principal, identifier, reason string, policyErr error) error {
	return s.deny(ctx, principal, identifier, reason, outcomeRejected, policyErr)
}

func (s *LoginService) deny(ctx context.Context, principal *domain.Principal, identifier, reason, outcome string, err error) error {
	if s.metrics != nil {
		s.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
	s.publishFailed(ctx, principal, identifier, reason)
	return err
}

func (s *LoginService) publishFailed(ctx context.Context, principal *domain.Principal, identifier, reason string) {
	now := s.now().UTC()

	s.logger.Info("login attempt failed",
		zap.String("identifier", logger.MaskSecret(identifier)),
		zap.String("reason", reason),
	)

	if s.events == nil {
		return
	}

	event := domain.LoginFailedEvent{
		EventID:    uuid.NewString(),
		Identifier: logger.MaskSecret(identifier),
		Reason:     reason,
		At:         now,
	}
	if principal != nil {
		event.PrincipalID = principal.ID
		event.PrincipalKind = principal.Kind
	}
	if err := s.events.PublishLoginFailed(ctx, event); err != nil {
		s.logger.Warn("publish login failed event failed", zap.Error(err))
	}
}
