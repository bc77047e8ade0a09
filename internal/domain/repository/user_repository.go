package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when the unique email constraint rejects a write.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository defines the credential store operations.
// Email uniqueness is enforced by the store itself, not by callers.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	MarkVerified(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id string, in entity.ProfileUpdate) (*entity.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]entity.User, error)
}

// Store groups the repositories that share one transactional boundary.
//
// WithinTx runs fn against a Store bound to a single transaction; the
// transaction commits when fn returns nil and rolls back otherwise.
// Calling WithinTx on a Store already bound to a transaction reuses it.
type Store interface {
	Users() UserRepository
	Tokens() TokenRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
