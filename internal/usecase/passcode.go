package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/config"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/logger"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/security"
	"github.com/MOCDATA-PTY/eclick-identity/internal/infra/telemetry"
	"github.com/MOCDATA-PTY/eclick-identity/internal/repository"
)

const (
	fallbackCodeLength = 6

	passcodeRateLimitScope = "passcode_issue"
)

// ValidationStatus is the outcome of a passcode validation attempt.
type ValidationStatus string

const (
	ValidationOK           ValidationStatus = "ok"
	ValidationNoActiveCode ValidationStatus = "no_active_code"
	ValidationExpired      ValidationStatus = "expired"
	ValidationMismatch     ValidationStatus = "mismatch"
)

// IssueResult carries the artifacts of a freshly issued passcode. Code is
// the plaintext; this is the only place it ever appears, the ledger stores a
// digest.
type IssueResult struct {
	PasscodeID string
	Code       string
	ExpiresAt  time.Time
}

// PasscodeService manages the one-time passcode ledger: issuance with
// supersession, validation with single-use consumption, and expired-row
// cleanup. Codes are fixed-length numeric strings from a CSPRNG, stored
// hashed.
type PasscodeService struct {
	cfg        *config.AppConfig
	passcodes  port.PasscodeRepository
	principals port.PrincipalRepository
	rateLimits port.RateLimitStore
	events     port.EventPublisher
	notifier   port.Notifier
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasscodeService constructs a PasscodeService.
func NewPasscodeService(cfg *config.AppConfig, passcodes port.PasscodeRepository, principals port.PrincipalRepository, rateLimits port.RateLimitStore, events port.EventPublisher, notifier port.Notifier, metrics *telemetry.Metrics, log *zap.Logger) *PasscodeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PasscodeService{
		cfg:        cfg,
		passcodes:  passcodes,
		principals: principals,
		rateLimits: rateLimits,
		events:     events,
		notifier:   notifier,
		metrics:    metrics,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *PasscodeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Issue generates a new passcode for the principal and purpose, valid for
// ttl from now. Any unused passcode for the same principal and purpose is
// superseded in the same transaction as the insert. The plaintext code is
// handed to the notifier and returned to the caller exactly once.
func (s *PasscodeService) Issue(ctx context.Context, kind domain.PrincipalKind, principalID string, purpose domain.PasscodePurpose, ttl time.Duration) (*IssueResult, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}

	principal, err := s.principals.GetByID(ctx, kind, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	now := s.now().UTC()

	if err := s.enforceIssueRateLimit(ctx, principalID, purpose, now); err != nil {
		return nil, err
	}

	length := fallbackCodeLength
	if s.cfg != nil && s.cfg.Security.OTPLength > 0 {
		length = s.cfg.Security.OTPLength
	}

	code, err := security.GenerateNumericCode(length)
	if err != nil {
		return nil, fmt.Errorf("generate passcode: %w", err)
	}

	passcode := domain.Passcode{
		ID:            uuid.NewString(),
		PrincipalID:   principal.ID,
		PrincipalKind: principal.Kind,
		CodeHash:      security.HashToken(code),
		Purpose:       purpose,
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
		Used:          false,
	}

	if err := s.passcodes.IssueSuperseding(ctx, passcode); err != nil {
		return nil, fmt.Errorf("store passcode: %w", err)
	}

	if s.notifier != nil {
		delivery := port.PasscodeDelivery{
			PrincipalID:   principal.ID,
			PrincipalKind: principal.Kind,
			Email:         principal.Email,
			Purpose:       purpose,
			Code:          code,
			ExpiresAt:     passcode.ExpiresAt,
		}
		if err := s.notifier.DeliverPasscode(ctx, delivery); err != nil {
			return nil, fmt.Errorf("deliver passcode: %w", err)
		}
	}

	if s.metrics != nil {
		s.metrics.PasscodesIssued.WithLabelValues(string(purpose)).Inc()
	}
	if s.events != nil {
		event := domain.PasscodeIssuedEvent{
			EventID:       uuid.NewString(),
			PasscodeID:    passcode.ID,
			PrincipalID:   principal.ID,
			PrincipalKind: principal.Kind,
			Purpose:       purpose,
			MaskedEmail:   logger.MaskEmail(principal.Email),
			ExpiresAt:     passcode.ExpiresAt,
			At:            now,
		}
		if err := s.events.PublishPasscodeIssued(ctx, event); err != nil {
			s.logger.Warn("publish passcode issued event failed", zap.Error(err))
		}
	}

	return &IssueResult{
		PasscodeID: passcode.ID,
		Code:       code,
		ExpiresAt:  passcode.ExpiresAt,
	}, nil
}

// Validate checks the supplied code against the principal's latest unused
// passcode. On a match it consumes the passcode with a conditional update,
// so of several concurrent validations exactly one returns ValidationOK and
// the rest see ValidationNoActiveCode. Expiry is decided here, lazily;
// nothing depends on expired rows having been swept.
func (s *PasscodeService) Validate(ctx context.Context, principalID, code string) (ValidationStatus, *domain.Passcode, error) {
	passcode, err := s.passcodes.GetLatestUnused(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.validationOutcome(ValidationNoActiveCode), nil, nil
		}
		return "", nil, fmt.Errorf("lookup passcode: %w", err)
	}

	now := s.now().UTC()
	if !now.Before(passcode.ExpiresAt) {
		return s.validationOutcome(ValidationExpired), nil, nil
	}

	supplied := security.HashToken(code)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(passcode.CodeHash)) != 1 {
		return s.validationOutcome(ValidationMismatch), nil, nil
	}

	if err := s.passcodes.Consume(ctx, passcode.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// A concurrent validation consumed it first.
			return s.validationOutcome(ValidationNoActiveCode), nil, nil
		}
		return "", nil, fmt.Errorf("consume passcode: %w", err)
	}

	passcode.Used = true
	return s.validationOutcome(ValidationOK), passcode, nil
}

// SweepExpired removes passcode rows that expired before now minus
// retention. Storage hygiene only; Validate never relies on it.
func (s *PasscodeService) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().UTC()
	if retention > 0 {
		cutoff = cutoff.Add(-retention)
	}

	deleted, err := s.passcodes.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired passcodes: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("expired passcodes removed", zap.Int("count", deleted))
		if s.metrics != nil {
			s.metrics.JanitorDeleted.Add(float64(deleted))
		}
	}

	return deleted, nil
}

func (s *PasscodeService) validationOutcome(status ValidationStatus) ValidationStatus {
	if s.metrics != nil {
		s.metrics.PasscodesConsumed.WithLabelValues(string(status)).Inc()
	}
	return status
}

func (s *PasscodeService) enforceIssueRateLimit(ctx context.Context, principalID string, purpose domain.PasscodePurpose, now time.Time) error {
	if s.rateLimits == nil || s.cfg == nil {
		return nil
	}

	limit := s.cfg.RateLimit.IssueMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := s.cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Hour
	}

	storageKey := fmt.Sprintf("%s:%s:%s", passcodeRateLimitScope, purpose, principalID)

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("passcode rate limit trim failed", zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("passcode rate limit count failed", zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.rateLimits.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("passcode rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: passcodeRateLimitScope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("passcode rate limit record failed", zap.Error(err))
	}

	return nil
}
