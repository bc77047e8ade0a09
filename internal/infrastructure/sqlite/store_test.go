package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
	"github.com/oksasatya/pixsearch-identity/internal/domain/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createUser(t *testing.T, store *Store, email string) *entity.User {
	t.Helper()
	u := &entity.User{FirstName: "Ada", LastName: "Lovelace", Email: email, PasswordHash: "hash"}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestUserCreateAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := createUser(t, store, "ada@example.com")
	require.NotEmpty(t, u.ID)
	require.False(t, u.Verified)

	byEmail, err := store.Users().GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)
	require.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, byID.Email)
	require.Equal(t, u.CreatedAt, byID.CreatedAt)

	_, err = store.Users().GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	createUser(t, store, "dup@example.com")

	err := store.Users().Create(context.Background(), &entity.User{Email: "dup@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestUserCreateConcurrentSameEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Users().Create(ctx, &entity.User{Email: "race@example.com", PasswordHash: "x"})
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrDuplicateEmail):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, n-1, dup)
}

func TestUserMutations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, store, "mut@example.com")

	require.NoError(t, store.Users().MarkVerified(ctx, u.ID))
	require.NoError(t, store.Users().UpdatePassword(ctx, u.ID, "new-hash"))

	got, err := store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)
	require.Equal(t, "new-hash", got.PasswordHash)

	updated, err := store.Users().UpdateProfile(ctx, u.ID, entity.ProfileUpdate{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "Grace", updated.FirstName)
	require.Equal(t, "grace@example.com", updated.Email)
	require.True(t, updated.Verified)

	_, err = store.Users().UpdateProfile(ctx, "missing", entity.ProfileUpdate{Email: "x@example.com"})
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.ErrorIs(t, store.Users().MarkVerified(ctx, "missing"), repository.ErrNotFound)
	require.ErrorIs(t, store.Users().UpdatePassword(ctx, "missing", "h"), repository.ErrNotFound)
}

func TestUserUpdateProfileDuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	createUser(t, store, "one@example.com")
	two := createUser(t, store, "two@example.com")

	_, err := store.Users().UpdateProfile(context.Background(), two.ID, entity.ProfileUpdate{Email: "one@example.com"})
	require.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestUserListAndDeleteCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, store, "a@example.com")
	createUser(t, store, "b@example.com")

	tok := &entity.Token{UserID: a.ID, Purpose: entity.PurposeVerify, Value: "v-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Tokens().Create(ctx, tok))

	users, err := store.Users().List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	require.NoError(t, store.Users().Delete(ctx, a.ID))
	require.ErrorIs(t, store.Users().Delete(ctx, a.ID), repository.ErrNotFound)

	_, err = store.Tokens().GetByValue(ctx, entity.PurposeVerify, "v-1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokenUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, store, "a@example.com")
	b := createUser(t, store, "b@example.com")
	exp := time.Now().Add(time.Hour)

	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{UserID: a.ID, Purpose: entity.PurposeReset, Value: "123456", ExpiresAt: exp}))

	err := store.Tokens().Create(ctx, &entity.Token{UserID: a.ID, Purpose: entity.PurposeReset, Value: "654321", ExpiresAt: exp})
	require.ErrorIs(t, err, repository.ErrTokenExists)

	err = store.Tokens().Create(ctx, &entity.Token{UserID: b.ID, Purpose: entity.PurposeReset, Value: "123456", ExpiresAt: exp})
	require.ErrorIs(t, err, repository.ErrTokenCollision)

	err = store.Tokens().UpsertForUser(ctx, &entity.Token{UserID: b.ID, Purpose: entity.PurposeReset, Value: "123456", ExpiresAt: exp})
	require.ErrorIs(t, err, repository.ErrTokenCollision)

	// same value under another purpose is fine
	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{UserID: b.ID, Purpose: entity.PurposeVerify, Value: "123456", ExpiresAt: exp}))
}

func TestTokenUpsertReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, store, "up@example.com")
	exp := time.Now().Add(time.Hour)

	require.NoError(t, store.Tokens().UpsertForUser(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeReset, Value: "111111", ExpiresAt: exp}))
	require.NoError(t, store.Tokens().UpsertForUser(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeReset, Value: "222222", ExpiresAt: exp}))

	_, err := store.Tokens().GetByValue(ctx, entity.PurposeReset, "111111")
	require.ErrorIs(t, err, repository.ErrNotFound)

	live, err := store.Tokens().GetByUser(ctx, u.ID, entity.PurposeReset)
	require.NoError(t, err)
	require.Equal(t, "222222", live.Value)
}

func TestTokenConsumeOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, store, "c@example.com")
	now := time.Now()

	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeVerify, Value: "abc", ExpiresAt: now.Add(time.Hour)}))

	_, err := store.Tokens().ConsumeForUser(ctx, u.ID, entity.PurposeVerify, "wrong", now)
	require.ErrorIs(t, err, repository.ErrNotFound)

	got, err := store.Tokens().ConsumeForUser(ctx, u.ID, entity.PurposeVerify, "abc", now)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)

	_, err = store.Tokens().ConsumeForUser(ctx, u.ID, entity.PurposeVerify, "abc", now)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokenConsumeConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, store, "race@example.com")
	now := time.Now()
	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeReset, Value: "999999", ExpiresAt: now.Add(time.Hour)}))

	const n = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Tokens().ConsumeByValue(ctx, entity.PurposeReset, "999999", now); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestTokenConsumeRejectsExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, store, "old@example.com")
	now := time.Now()
	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeReset, Value: "000001", ExpiresAt: now.Add(-time.Minute)}))

	_, err := store.Tokens().ConsumeByValue(ctx, entity.PurposeReset, "000001", now)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTokenEnsureForUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, store, "ensure@example.com")
	now := time.Now()

	first, created, err := store.Tokens().EnsureForUser(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeVerify, Value: "first", ExpiresAt: now.Add(time.Hour)}, now)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "first", first.Value)

	again, created, err := store.Tokens().EnsureForUser(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeVerify, Value: "second", ExpiresAt: now.Add(time.Hour)}, now)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "first", again.Value)

	later := now.Add(2 * time.Hour)
	fresh, created, err := store.Tokens().EnsureForUser(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeVerify, Value: "third", ExpiresAt: later.Add(time.Hour)}, later)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "third", fresh.Value)
}

func TestTokenDeleteExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, store, "gc@example.com")
	now := time.Now()

	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeVerify, Value: "stale", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeReset, Value: "live", ExpiresAt: now.Add(time.Hour)}))

	n, err := store.Tokens().DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = store.Tokens().GetByValue(ctx, entity.PurposeReset, "live")
	require.NoError(t, err)
}

func TestWithinTxRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx repository.Store) error {
		u := &entity.User{Email: "tx@example.com", PasswordHash: "x"}
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		if err := tx.Tokens().Create(ctx, &entity.Token{UserID: u.ID, Purpose: entity.PurposeVerify, Value: "t", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Users().GetByEmail(ctx, "tx@example.com")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithinTxCommits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx repository.Store) error {
		return tx.WithinTx(ctx, func(inner repository.Store) error {
			return inner.Users().Create(ctx, &entity.User{Email: "ok@example.com", PasswordHash: "x"})
		})
	})
	require.NoError(t, err)

	_, err = store.Users().GetByEmail(ctx, "ok@example.com")
	require.NoError(t, err)
}
