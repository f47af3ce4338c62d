package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/repository"
)

// SecurityStateRepository implements port.SecurityStateRepository over
// PostgreSQL. Counter updates are single statements, so two concurrent
// failures serialize on the row and both increments land.
type SecurityStateRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSecurityStateRepository wires a PostgreSQL-backed security state repository.
func NewSecurityStateRepository(exec pgExecutor) *SecurityStateRepository {
	repo := &SecurityStateRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Get retrieves the security state for a principal.
func (r *SecurityStateRepository) Get(ctx context.Context, principalID string) (*domain.SecurityState, error) {
	stmt, args, err := r.builder.
		Select("principal_id", "failed_attempts", "locked_until", "suspended", "suspension_reason", "suspended_until", "updated_at").
		From("accounts.security_states").
		Where(squirrel.Eq{"principal_id": principalID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select security state sql: %w", err)
	}

	return r.scanState(r.exec.QueryRow(ctx, stmt, args...))
}

// RecordFailure increments the failure counter in one statement. Reaching
// the threshold sets the timed lock and resets the counter; the RETURNING
// clause hands back the post-update state so the caller can tell whether
// this particular failure tripped the lock. The insert branch applies the
// same threshold, so a first failure against a principal with no state row
// still locks when the threshold is one.
func (r *SecurityStateRepository) RecordFailure(ctx context.Context, principalID string, threshold int, lockFor time.Duration, now time.Time) (*domain.SecurityState, error) {
	const stmt = `
		INSERT INTO accounts.security_states (principal_id, failed_attempts, locked_until, updated_at)
		VALUES ($1, CASE WHEN 1 >= $2 THEN 0 ELSE 1 END, CASE WHEN 1 >= $2 THEN $3 END, $4)
		ON CONFLICT (principal_id) DO UPDATE SET
			failed_attempts = CASE
				WHEN accounts.security_states.failed_attempts + 1 >= $2 THEN 0
				ELSE accounts.security_states.failed_attempts + 1
			END,
			locked_until = CASE
				WHEN accounts.security_states.failed_attempts + 1 >= $2 THEN $3
				ELSE accounts.security_states.locked_until
			END,
			updated_at = $4
		RETURNING principal_id, failed_attempts, locked_until, suspended, suspension_reason, suspended_until, updated_at`

	return r.scanState(r.exec.QueryRow(ctx, stmt, principalID, threshold, now.Add(lockFor), now))
}

// RecordSuccess resets the counter and clears any timed lock.
func (r *SecurityStateRepository) RecordSuccess(ctx context.Context, principalID string, now time.Time) error {
	stmt, args, err := r.builder.Update("accounts.security_states").
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Set("updated_at", now).
		Where(squirrel.Eq{"principal_id": principalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record success sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("record success: %w", err)
	}

	return nil
}

// Suspend marks the principal as administratively suspended. A nil until
// means the suspension holds until explicitly lifted. Suspending an already
// suspended principal just refreshes reason and horizon.
func (r *SecurityStateRepository) Suspend(ctx context.Context, principalID string, reason string, until *time.Time, now time.Time) error {
	const stmt = `
		INSERT INTO accounts.security_states (principal_id, failed_attempts, suspended, suspension_reason, suspended_until, updated_at)
		VALUES ($1, 0, TRUE, $2, $3, $4)
		ON CONFLICT (principal_id) DO UPDATE SET
			suspended = TRUE,
			suspension_reason = $2,
			suspended_until = $3,
			updated_at = $4`

	if _, err := r.exec.Exec(ctx, stmt, principalID, reason, until, now); err != nil {
		return fmt.Errorf("suspend principal: %w", err)
	}

	return nil
}

// Unsuspend lifts a suspension. A no-op when the principal is not suspended.
func (r *SecurityStateRepository) Unsuspend(ctx context.Context, principalID string, now time.Time) error {
	stmt, args, err := r.builder.Update("accounts.security_states").
		Set("suspended", false).
		Set("suspension_reason", nil).
		Set("suspended_until", nil).
		Set("updated_at", now).
		Where(squirrel.Eq{"principal_id": principalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unsuspend sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("unsuspend principal: %w", err)
	}

	return nil
}

// Lock places an administrative timed lock regardless of the failure counter.
func (r *SecurityStateRepository) Lock(ctx context.Context, principalID string, until time.Time, now time.Time) error {
	const stmt = `
		INSERT INTO accounts.security_states (principal_id, failed_attempts, locked_until, updated_at)
		VALUES ($1, 0, $2, $3)
		ON CONFLICT (principal_id) DO UPDATE SET
			locked_until = $2,
			updated_at = $3`

	if _, err := r.exec.Exec(ctx, stmt, principalID, until, now); err != nil {
		return fmt.Errorf("lock principal: %w", err)
	}

	return nil
}

// Unlock clears the lock and resets the failure counter.
func (r *SecurityStateRepository) Unlock(ctx context.Context, principalID string, now time.Time) error {
	stmt, args, err := r.builder.Update("accounts.security_states").
		Set("locked_until", nil).
		Set("failed_attempts", 0).
		Set("updated_at", now).
		Where(squirrel.Eq{"principal_id": principalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unlock sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("unlock principal: %w", err)
	}

	return nil
}

func (r *SecurityStateRepository) scanState(row pgx.Row) (*domain.SecurityState, error) {
	var state domain.SecurityState

	if err := row.Scan(
		&state.PrincipalID,
		&state.FailedAttempts,
		&state.LockedUntil,
		&state.Suspended,
		&state.SuspensionReason,
		&state.SuspendedUntil,
		&state.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan security state: %w", err)
	}

	return &state, nil
}

var _ port.SecurityStateRepository = (*SecurityStateRepository)(nil)
