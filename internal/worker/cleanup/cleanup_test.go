package cleanup

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/pixsearch-identity/internal/domain/entity"
	"github.com/oksasatya/pixsearch-identity/internal/infrastructure/sqlite"
)

type stubPurger struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (s *stubPurger) DeleteExpired(context.Context, time.Time) (int64, error) {
	s.calls.Add(1)
	return s.n, s.err
}

type countObserver struct{ total int64 }

func (o *countObserver) Purged(n int64) { o.total += n }

func TestRunOnceLogsAndCounts(t *testing.T) {
	logger, hook := test.NewNullLogger()
	obs := &countObserver{}
	job := NewJob(&stubPurger{n: 4}, logger, time.Minute).WithObserver(obs)

	n, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.EqualValues(t, 4, obs.total)
	require.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	require.EqualValues(t, 4, hook.LastEntry().Data["deleted_count"])
}

func TestRunOnceError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	job := NewJob(&stubPurger{err: errors.New("db gone")}, logger, time.Minute)

	_, err := job.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestRunStopsWithContext(t *testing.T) {
	p := &stubPurger{}
	job := NewJob(p, nil, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunOnceAgainstStore(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "cleanup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	u := &entity.User{FirstName: "A", LastName: "B", Email: "a@example.com", PasswordHash: "x"}
	require.NoError(t, store.Users().Create(ctx, u))
	now := time.Now()
	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{
		UserID: u.ID, Purpose: entity.PurposeVerify, Value: "old", ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.Tokens().Create(ctx, &entity.Token{
		UserID: u.ID, Purpose: entity.PurposeReset, Value: "123456", ExpiresAt: now.Add(time.Hour),
	}))

	n, err := NewJob(store.Tokens(), nil, time.Hour).RunOnce(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = store.Tokens().GetByUser(ctx, u.ID, entity.PurposeReset)
	require.NoError(t, err)
}
