package port

import (
	"context"
	"time"

	"github.com/MOCDATA-PTY/eclick-identity/internal/core/domain"
)

// PrincipalRepository exposes persistence behavior for principals of both kinds.
// Lookups return repository.ErrNotFound instead of using absence as control flow.
type PrincipalRepository interface {
	Create(ctx context.Context, principal domain.Principal) error
	GetByID(ctx context.Context, kind domain.PrincipalKind, id string) (*domain.Principal, error)
	// FindByUsername resolves the exact username within one kind. Usernames
	// are unique per kind, not across kinds.
	FindByUsername(ctx context.Context, kind domain.PrincipalKind, username string) (*domain.Principal, error)
	UpdatePasswordHash(ctx context.Context, kind domain.PrincipalKind, id string, hash string, scheme string, changedAt time.Time) error
	RecordLogin(ctx context.Context, kind domain.PrincipalKind, id string, at time.Time) error
}
