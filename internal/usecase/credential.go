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
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/config"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/security"
	"github.com/MOCDATA-PTY/eclick-identity/internal/repository"
)

const (
	passwordChangeSourceSetup = "setup"
	passwordChangeSourceReset = "reset"

	defaultSetupTTL = 24 * time.Hour
	defaultResetTTL = 10 * time.Minute
)

// CredentialService drives the two flows the passcode ledger exists for:
// first-time credential setup and administrative resets. Both issue a
// purpose-bound passcode, then exchange it plus a new password for a stored
// argon2id hash.
type CredentialService struct {
	cfg        *config.AppConfig
	principals port.PrincipalRepository
	passcodes  *PasscodeService
	validator  *security.PasswordValidator
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(cfg *config.AppConfig, principals port.PrincipalRepository, passcodes *PasscodeService, validator *security.PasswordValidator, events port.EventPublisher, log *zap.Logger) *CredentialService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CredentialService{
		cfg:        cfg,
		principals: principals,
		passcodes:  passcodes,
		validator:  validator,
		events:     events,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *CredentialService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RequestSetup issues a setup passcode with the configured setup TTL.
func (s *CredentialService) RequestSetup(ctx context.Context, kind domain.PrincipalKind, principalID string) (*IssueResult, error) {
	return s.passcodes.Issue(ctx, kind, principalID, domain.PurposeSetup, s.setupTTL())
}

// RequestReset issues a reset passcode with the configured reset TTL.
func (s *CredentialService) RequestReset(ctx context.Context, kind domain.PrincipalKind, principalID string) (*IssueResult, error) {
	return s.passcodes.Issue(ctx, kind, principalID, domain.PurposeReset, s.resetTTL())
}

// CompleteSetup exchanges a setup passcode and a new password for a stored
// credential.
func (s *CredentialService) CompleteSetup(ctx context.Context, kind domain.PrincipalKind, principalID, code, newPassword string) error {
	return s.complete(ctx, kind, principalID, code, newPassword, domain.PurposeSetup, passwordChangeSourceSetup)
}

// CompleteReset exchanges a reset passcode and a new password for a stored
// credential.
func (s *CredentialService) CompleteReset(ctx context.Context, kind domain.PrincipalKind, principalID, code, newPassword string) error {
	return s.complete(ctx, kind, principalID, code, newPassword, domain.PurposeReset, passwordChangeSourceReset)
}

func (s *CredentialService) complete(ctx context.Context, kind domain.PrincipalKind, principalID, code, newPassword string, purpose domain.PasscodePurpose, source string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrPasscodeInvalid
	}
	newPassword = strings.TrimSpace(newPassword)
	if newPassword == "" {
		return fmt.Errorf("%w: password is required", ErrNewPasswordInvalid)
	}

	// Validate the password before touching the ledger, so a weak password
	// does not burn the single-use code.
	if err := s.validator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
	}

	status, passcode, err := s.passcodes.Validate(ctx, principalID, code)
	if err != nil {
		return err
	}

	switch status {
	case ValidationOK:
	case ValidationExpired:
		return ErrPasscodeExpired
	default:
		return ErrPasscodeInvalid
	}

	if passcode.Purpose != purpose {
		// Right code, wrong flow. The code is already consumed; the caller
		// has to request a fresh one for the intended purpose.
		return ErrPasscodeInvalid
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	now := s.now().UTC()
	if err := s.principals.UpdatePasswordHash(ctx, kind, principalID, hash, string(security.SchemeArgon2id), now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPrincipalNotFound
		}
		return fmt.Errorf("store new password hash: %w", err)
	}

	s.logger.Info("credential updated",
		zap.String("principal_id", principalID),
		zap.String("kind", string(kind)),
		zap.String("source", source),
	)

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:       uuid.NewString(),
			PrincipalID:   principalID,
			PrincipalKind: kind,
			ChangedAt:     now,
			Source:        source,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event failed", zap.Error(err))
		}
	}

	return nil
}

func (s *CredentialService) setupTTL() time.Duration {
	if s.cfg != nil && s.cfg.Security.SetupTTL > 0 {
		return s.cfg.Security.SetupTTL
	}
	return defaultSetupTTL
}

func (s *CredentialService) resetTTL() time.Duration {
	if s.cfg != nil && s.cfg.Security.ResetTTL > 0 {
		return s.cfg.Security.ResetTTL
	}
	return defaultResetTTL
}
