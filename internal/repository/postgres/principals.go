package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
	"github.com/MOCDATA-PTY/eclick-identity/internal/core/port"
	"github.com/MOCDATA-PTY/eclick-identity/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const principalColumns = "id, kind, username, email, password_hash, hash_scheme, is_active, created_at, last_login"

// PrincipalRepository implements port.PrincipalRepository using PostgreSQL.
// Both principal kinds share one table with a kind discriminator; usernames
// are unique per kind via a composite constraint.
type PrincipalRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPrincipalRepository wires a PostgreSQL-backed principal repository.
func NewPrincipalRepository(exec pgExecutor) *PrincipalRepository {
	repo := &PrincipalRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *PrincipalRepository) WithTx(tx pgx.Tx) *PrincipalRepository {
	if tx == nil {
		return r
	}
	return &PrincipalRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new principal row.
func (r *PrincipalRepository) Create(ctx context.Context, principal domain.Principal) error {
	stmt, args, err := r.builder.Insert("accounts.principals").
		Columns(
			"id",
			"kind",
			"username",
			"email",
			"password_hash",
			"hash_scheme",
			"is_active",
			"created_at",
			"last_login",
		).
		Values(
			principal.ID,
			principal.Kind,
			principal.Username,
			principal.Email,
			principal.PasswordHash,
			principal.HashScheme,
			principal.IsActive,
			principal.CreatedAt,
			principal.LastLogin,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert principal sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert principal: %w", err)
	}

	return nil
}

// GetByID retrieves a principal by kind and identifier.
func (r *PrincipalRepository) GetByID(ctx context.Context, kind domain.PrincipalKind, id string) (*domain.Principal, error) {
	stmt, args, err := r.builder.
		Select(principalColumns).
		From("accounts.principals").
		Where(squirrel.Eq{"kind": kind, "id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal sql: %w", err)
	}

	return r.scanPrincipal(r.exec.QueryRow(ctx, stmt, args...))
}

// FindByUsername resolves the exact username within one kind. Matching is
// case-sensitive; no normalization happens here.
func (r *PrincipalRepository) FindByUsername(ctx context.Context, kind domain.PrincipalKind, username string) (*domain.Principal, error) {
	stmt, args, err := r.builder.
		Select(principalColumns).
		From("accounts.principals").
		Where(squirrel.Eq{"kind": kind, "username": username}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal by username sql: %w", err)
	}

	return r.scanPrincipal(r.exec.QueryRow(ctx, stmt, args...))
}

// UpdatePasswordHash replaces the stored hash and scheme tag for a principal.
func (r *PrincipalRepository) UpdatePasswordHash(ctx context.Context, kind domain.PrincipalKind, id string, hash string, scheme string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("accounts.principals").
		Set("password_hash", hash).
		Set("hash_scheme", scheme).
		Set("password_changed_at", changedAt).
		Where(squirrel.Eq{"kind": kind, "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password hash sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordLogin stamps the last successful login time.
func (r *PrincipalRepository) RecordLogin(ctx context.Context, kind domain.PrincipalKind, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("accounts.principals").
		Set("last_login", at).
		Where(squirrel.Eq{"kind": kind, "id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *PrincipalRepository) scanPrincipal(row pgx.Row) (*domain.Principal, error) {
	var (
		principal domain.Principal
		email     sql.NullString
		lastLogin *time.Time
	)

	if err := row.Scan(
		&principal.ID,
		&principal.Kind,
		&principal.Username,
		&email,
		&principal.PasswordHash,
		&principal.HashScheme,
		&principal.IsActive,
		&principal.CreatedAt,
		&lastLogin,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}

	if email.Valid {
		principal.Email = email.String
	}
	principal.LastLogin = lastLogin

	return &principal, nil
}

var _ port.PrincipalRepository = (*PrincipalRepository)(nil)
