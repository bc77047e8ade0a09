package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/pixsearch-identity/internal/domain/repository"
)

const (
	codeUniqueViolation        = "23505"
	codeInvalidTextRepresent   = "22P02"
	constraintUsersEmail       = "users_email_unique"
	constraintTokenUserPurpose = "tokens_user_purpose_unique"
	constraintTokenValue       = "tokens_purpose_value_unique"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store binds the user and token repositories to a pool or to a single transaction.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
	inTx bool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Users() repository.UserRepository { return NewUserRepository(s.db) }

func (s *Store) Tokens() repository.TokenRepository { return NewTokenRepository(s.db) }

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, db: tx, inTx: true})
	})
}

// mapError translates constraint violations into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintUsersEmail:
			return repository.ErrDuplicateEmail
		case constraintTokenValue:
			return repository.ErrTokenCollision
		case constraintTokenUserPurpose:
			return repository.ErrTokenExists
		}
	case codeInvalidTextRepresent:
		// malformed uuid coming from a URL path can never match a row
		return repository.ErrNotFound
	}
	return err
}

var _ repository.Store = (*Store)(nil)
