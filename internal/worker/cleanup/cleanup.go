// Package cleanup periodically removes expired verification and reset tokens.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
)

// Purger deletes tokens that expired at or before now.
type Purger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Observer receives the number of tokens removed per sweep.
type Observer interface {
	Purged(n int64)
}

type Job struct {
	tokens   Purger
	logger   logrus.FieldLogger
	observer Observer
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewJob(tokens Purger, logger logrus.FieldLogger, interval time.Duration) *Job {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Job{
		tokens:   tokens,
		logger:   logger,
		interval: interval,
		timeout:  30 * time.Second,
		now:      time.Now,
	}
}

// WithObserver attaches a sweep counter.
func (j *Job) WithObserver(o Observer) *Job {
	j.observer = o
	return j
}

// RunOnce performs a single sweep. Running it with nothing to delete is not an error.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	c, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	n, err := j.tokens.DeleteExpired(c, j.now().UTC())
	if err != nil {
		helpers.LogError(j.logger, "token cleanup failed", err, nil)
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	if j.observer != nil {
		j.observer.Purged(n)
	}
	j.logger.WithFields(logrus.Fields{
		"deleted_count": n,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("token cleanup finished")
	return n, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (j *Job) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	_, _ = j.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}
