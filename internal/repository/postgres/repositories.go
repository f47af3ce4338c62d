package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories groups the PostgreSQL-backed repositories sharing one pool.
type Repositories struct {
	pool           *pgxpool.Pool
	Principals     *PrincipalRepository
	Passcodes      *PasscodeRepository
	SecurityStates *SecurityStateRepository
}

// NewRepositories wires all repositories on top of a shared pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		pool:           pool,
		Principals:     NewPrincipalRepository(pool),
		Passcodes:      NewPasscodeRepository(pool),
		SecurityStates: NewSecurityStateRepository(pool),
	}
}

// WithTx runs fn with repositories bound to a single transaction, committing
// on nil and rolling back otherwise.
func (r *Repositories) WithTx(ctx context.Context, fn func(tx *Repositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	scoped := &Repositories{
		Principals:     r.Principals.WithTx(tx),
		Passcodes:      NewPasscodeRepository(tx),
		SecurityStates: NewSecurityStateRepository(tx),
	}

	if err := fn(scoped); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
