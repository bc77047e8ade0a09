package repository

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
)

var (
	// ErrTokenCollision means another token of the same purpose already holds the value.
	ErrTokenCollision = errors.New("token value collision")
	// ErrTokenExists means the user already owns a token for the purpose.
	ErrTokenExists = errors.New("token already exists for user")
)

// TokenRepository persists single-use tokens.
//
// Consume* methods delete and return the matching live token in one
// statement, so two callers racing on the same value cannot both succeed.
type TokenRepository interface {
	Create(ctx context.Context, t *entity.Token) error
	GetByValue(ctx context.Context, purpose entity.TokenPurpose, value string) (*entity.Token, error)
	GetByUser(ctx context.Context, userID string, purpose entity.TokenPurpose) (*entity.Token, error)
	// UpsertForUser replaces any token the user holds for t.Purpose.
	UpsertForUser(ctx context.Context, t *entity.Token) error
	// EnsureForUser inserts t unless the user already holds a live token for
	// t.Purpose, in which case the live token is returned with created=false.
	EnsureForUser(ctx context.Context, t *entity.Token, now time.Time) (tok *entity.Token, created bool, err error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	ConsumeForUser(ctx context.Context, userID string, purpose entity.TokenPurpose, value string, now time.Time) (*entity.Token, error)
	ConsumeByValue(ctx context.Context, purpose entity.TokenPurpose, value string, now time.Time) (*entity.Token, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
