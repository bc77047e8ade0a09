package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
	"github.com/oksasatya/pixsearch-identity/internal/domain/repository"
)

const tokenColumns = `id, user_id, purpose, value, created_at, expires_at`

type TokenRepository struct {
	db DBTX
}

func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

func scanToken(row pgx.Row) (*entity.Token, error) {
	t := &entity.Token{}
	var purpose string
	if err := row.Scan(&t.ID, &t.UserID, &purpose, &t.Value, &t.CreatedAt, &t.ExpiresAt); err != nil {
		return nil, mapError(err)
	}
	t.Purpose = entity.TokenPurpose(purpose)
	return t, nil
}

func prepareToken(t *entity.Token) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
}

func (r *TokenRepository) Create(ctx context.Context, t *entity.Token) error {
	prepareToken(t)
	_, err := r.db.Exec(ctx, `
		INSERT INTO tokens (id, user_id, purpose, value, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.UserID, string(t.Purpose), t.Value, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", mapError(err))
	}
	return nil
}

func (r *TokenRepository) GetByValue(ctx context.Context, purpose entity.TokenPurpose, value string) (*entity.Token, error) {
	return scanToken(r.db.QueryRow(ctx, `
		SELECT `+tokenColumns+` FROM tokens WHERE purpose = $1 AND value = $2
	`, string(purpose), value))
}

func (r *TokenRepository) GetByUser(ctx context.Context, userID string, purpose entity.TokenPurpose) (*entity.Token, error) {
	return scanToken(r.db.QueryRow(ctx, `
		SELECT `+tokenColumns+` FROM tokens WHERE user_id = $1 AND purpose = $2
	`, userID, string(purpose)))
}

func (r *TokenRepository) UpsertForUser(ctx context.Context, t *entity.Token) error {
	prepareToken(t)
	_, err := r.db.Exec(ctx, `
		INSERT INTO tokens (id, user_id, purpose, value, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT tokens_user_purpose_unique DO UPDATE
		SET id = EXCLUDED.id, value = EXCLUDED.value, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
	`, t.ID, t.UserID, string(t.Purpose), t.Value, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert token: %w", mapError(err))
	}
	return nil
}

func (r *TokenRepository) EnsureForUser(ctx context.Context, t *entity.Token, now time.Time) (*entity.Token, bool, error) {
	prepareToken(t)
	// the conditional update only fires for a stale token; a live one is left alone
	got, err := scanToken(r.db.QueryRow(ctx, `
		INSERT INTO tokens (id, user_id, purpose, value, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT tokens_user_purpose_unique DO UPDATE
		SET id = EXCLUDED.id, value = EXCLUDED.value, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE tokens.expires_at <= $7
		RETURNING `+tokenColumns,
		t.ID, t.UserID, string(t.Purpose), t.Value, t.CreatedAt, t.ExpiresAt, now))
	if err == nil {
		return got, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("ensure token: %w", err)
	}
	live, err := r.GetByUser(ctx, t.UserID, t.Purpose)
	if err != nil {
		return nil, false, err
	}
	return live, false, nil
}

func (r *TokenRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1`, userID)
	return mapError(err)
}

func (r *TokenRepository) ConsumeForUser(ctx context.Context, userID string, purpose entity.TokenPurpose, value string, now time.Time) (*entity.Token, error) {
	return scanToken(r.db.QueryRow(ctx, `
		DELETE FROM tokens
		WHERE user_id = $1 AND purpose = $2 AND value = $3 AND expires_at > $4
		RETURNING `+tokenColumns,
		userID, string(purpose), value, now))
}

func (r *TokenRepository) ConsumeByValue(ctx context.Context, purpose entity.TokenPurpose, value string, now time.Time) (*entity.Token, error) {
	return scanToken(r.db.QueryRow(ctx, `
		DELETE FROM tokens
		WHERE purpose = $1 AND value = $2 AND expires_at > $3
		RETURNING `+tokenColumns,
		string(purpose), value, now))
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

var _ repository.TokenRepository = (*TokenRepository)(nil)
