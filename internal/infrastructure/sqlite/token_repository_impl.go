package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

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

func scanToken(row scanner) (*entity.Token, error) {
	t := &entity.Token{}
	var purpose string
	var createdAt, expiresAt int64
	if err := row.Scan(&t.ID, &t.UserID, &purpose, &t.Value, &createdAt, &expiresAt); err != nil {
		return nil, mapError(err)
	}
	t.Purpose = entity.TokenPurpose(purpose)
	t.CreatedAt = fromMillis(createdAt)
	t.ExpiresAt = fromMillis(expiresAt)
	return t, nil
}

func prepareToken(t *entity.Token) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.CreatedAt = fromMillis(toMillis(t.CreatedAt))
	t.ExpiresAt = fromMillis(toMillis(t.ExpiresAt))
}

func (r *TokenRepository) Create(ctx context.Context, t *entity.Token) error {
	prepareToken(t)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (id, user_id, purpose, value, created_at, expires_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6)
	`, t.ID, t.UserID, string(t.Purpose), t.Value, toMillis(t.CreatedAt), toMillis(t.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert token: %w", mapError(err))
	}
	return nil
}

func (r *TokenRepository) GetByValue(ctx context.Context, purpose entity.TokenPurpose, value string) (*entity.Token, error) {
	return scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE purpose = ?1 AND value = ?2`, string(purpose), value))
}

func (r *TokenRepository) GetByUser(ctx context.Context, userID string, purpose entity.TokenPurpose) (*entity.Token, error) {
	return scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE user_id = ?1 AND purpose = ?2`, userID, string(purpose)))
}

func (r *TokenRepository) UpsertForUser(ctx context.Context, t *entity.Token) error {
	prepareToken(t)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (id, user_id, purpose, value, created_at, expires_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET id = excluded.id, value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at
	`, t.ID, t.UserID, string(t.Purpose), t.Value, toMillis(t.CreatedAt), toMillis(t.ExpiresAt))
	if err != nil {
		return fmt.Errorf("upsert token: %w", mapError(err))
	}
	return nil
}

func (r *TokenRepository) EnsureForUser(ctx context.Context, t *entity.Token, now time.Time) (*entity.Token, bool, error) {
	prepareToken(t)
	got, err := scanToken(r.db.QueryRowContext(ctx, `
		INSERT INTO tokens (id, user_id, purpose, value, created_at, expires_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET id = excluded.id, value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at
		WHERE tokens.expires_at <= ?7
		RETURNING `+tokenColumns,
		t.ID, t.UserID, string(t.Purpose), t.Value, toMillis(t.CreatedAt), toMillis(t.ExpiresAt), toMillis(now)))
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?1`, id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE user_id = ?1`, userID)
	return mapError(err)
}

func (r *TokenRepository) ConsumeForUser(ctx context.Context, userID string, purpose entity.TokenPurpose, value string, now time.Time) (*entity.Token, error) {
	return scanToken(r.db.QueryRowContext(ctx, `
		DELETE FROM tokens
		WHERE user_id = ?1 AND purpose = ?2 AND value = ?3 AND expires_at > ?4
		RETURNING `+tokenColumns,
		userID, string(purpose), value, toMillis(now)))
}

func (r *TokenRepository) ConsumeByValue(ctx context.Context, purpose entity.TokenPurpose, value string, now time.Time) (*entity.Token, error) {
	return scanToken(r.db.QueryRowContext(ctx, `
		DELETE FROM tokens
		WHERE purpose = ?1 AND value = ?2 AND expires_at > ?3
		RETURNING `+tokenColumns,
		string(purpose), value, toMillis(now)))
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= ?1`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ repository.TokenRepository = (*TokenRepository)(nil)
