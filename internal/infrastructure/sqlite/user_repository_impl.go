package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
	"github.com/oksasatya/pixsearch-identity/internal/domain/repository"
)

const userColumns = `id, first_name, last_name, email, password_hash, verified, profile_image_ref, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row scanner) (*entity.User, error) {
	u := &entity.User{}
	var createdAt, updatedAt int64
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.Verified, &u.ProfileImageRef, &createdAt, &updatedAt); err != nil {
		return nil, mapError(err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := fromMillis(toMillis(time.Now()))
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email, password_hash, verified, profile_image_ref, created_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)
	`, u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Verified, u.ProfileImageRef,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", mapError(err))
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?1`, email))
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = ?1, updated_at = ?2 WHERE id = ?3`,
		hash, toMillis(time.Now()), id)
}

func (r *UserRepository) MarkVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET verified = 1, updated_at = ?1 WHERE id = ?2`,
		toMillis(time.Now()), id)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, in entity.ProfileUpdate) (*entity.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET first_name = ?1, last_name = ?2, email = ?3, updated_at = ?4
		WHERE id = ?5
		RETURNING `+userColumns,
		in.FirstName, in.LastName, in.Email, toMillis(time.Now()), id))
}

// Delete removes the user; owned tokens are removed by the foreign key cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = ?1`, id)
}

func (r *UserRepository) List(ctx context.Context) ([]entity.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []entity.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

var _ repository.UserRepository = (*UserRepository)(nil)
