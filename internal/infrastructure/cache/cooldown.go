package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown hands out keys at most once per ttl using SET NX.
type Cooldown struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewCooldown(rdb redis.UniversalClient, prefix string) *Cooldown {
	return &Cooldown{rdb: rdb, prefix: prefix}
}

// Acquire reports whether key was free and is now held for ttl.
func (c *Cooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, c.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release drops a held key before its ttl runs out.
func (c *Cooldown) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.prefix+key).Err()
}
