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

const passcodeColumns = "id, principal_id, principal_kind, code_hash, purpose, issued_at, expires_at, used"

// PasscodeRepository implements port.PasscodeRepository over PostgreSQL.
// The ledger is append-only except for the used flag; consumed and
// superseded rows stay around until the janitor removes them.
type PasscodeRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPasscodeRepository wires a PostgreSQL-backed passcode repository.
func NewPasscodeRepository(exec pgExecutor) *PasscodeRepository {
	repo := &PasscodeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// IssueSuperseding invalidates every unused passcode for the same principal
// and purpose, then inserts the new record, inside one transaction.
func (r *PasscodeRepository) IssueSuperseding(ctx context.Context, passcode domain.Passcode) error {
	supersede, supersedeArgs, err := r.builder.Update("accounts.passcodes").
		Set("used", true).
		Where(squirrel.Eq{
			"principal_id": passcode.PrincipalID,
			"purpose":      passcode.Purpose,
			"used":         false,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build supersede passcodes sql: %w", err)
	}

	insert, insertArgs, err := r.builder.Insert("accounts.passcodes").
		Columns(
			"id",
			"principal_id",
			"principal_kind",
			"code_hash",
			"purpose",
			"issued_at",
			"expires_at",
			"used",
		).
		Values(
			passcode.ID,
			passcode.PrincipalID,
			passcode.PrincipalKind,
			passcode.CodeHash,
			passcode.Purpose,
			passcode.IssuedAt,
			passcode.ExpiresAt,
			passcode.Used,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert passcode sql: %w", err)
	}

	run := func(exec pgExecutor) error {
		if _, err := exec.Exec(ctx, supersede, supersedeArgs...); err != nil {
			return fmt.Errorf("supersede passcodes: %w", err)
		}
		if _, err := exec.Exec(ctx, insert, insertArgs...); err != nil {
			return fmt.Errorf("insert passcode: %w", err)
		}
		return nil
	}

	if r.pool == nil {
		// Already inside a caller-managed transaction.
		return run(r.exec)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin issue transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := run(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit issue transaction: %w", err)
	}

	return nil
}

// GetLatestUnused returns the most recently issued unused passcode for the
// principal regardless of expiry.
func (r *PasscodeRepository) GetLatestUnused(ctx context.Context, principalID string) (*domain.Passcode, error) {
	stmt, args, err := r.builder.
		Select(passcodeColumns).
		From("accounts.passcodes").
		Where(squirrel.Eq{"principal_id": principalID, "used": false}).
		OrderBy("issued_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select latest passcode sql: %w", err)
	}

	var passcode domain.Passcode
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&passcode.ID,
		&passcode.PrincipalID,
		&passcode.PrincipalKind,
		&passcode.CodeHash,
		&passcode.Purpose,
		&passcode.IssuedAt,
		&passcode.ExpiresAt,
		&passcode.Used,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan passcode: %w", err)
	}

	return &passcode, nil
}

// Consume flips the used flag iff it is still false. The used = false guard
// makes the update conditional, so only one of several concurrent callers
// sees a row affected.
func (r *PasscodeRepository) Consume(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("accounts.passcodes").
		Set("used", true).
		Where(squirrel.Eq{"id": id, "used": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume passcode sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume passcode: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteExpired removes passcodes whose expiry predates the cutoff and
// reports how many rows went away.
func (r *PasscodeRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("accounts.passcodes").
		Where(squirrel.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired passcodes sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired passcodes: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.PasscodeRepository = (*PasscodeRepository)(nil)
