package notify

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"
)

// DefaultSendTTL is how long an identical message to the same destination
// is suppressed.
const DefaultSendTTL = 30 * time.Second

// SendCache suppresses identical sends within a short window. Reserve
// reports whether the caller may send; Release gives a reservation back
// after a failed delivery so a retry is not swallowed.
type SendCache interface {
	Reserve(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// SendKey derives the cache key for one destination and formatted text.
func SendKey(dest Destination, text string) string {
	h := xxhash.NewS64(0)
	_, _ = h.Write([]byte(dest.String()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	return dest.String() + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is a process-local SendCache.
type MemoryCache struct {
	ttl     time.Duration
	now     func() time.Time
	entries *xsync.Map[string, time.Time]
}

// NewMemoryCache returns a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultSendTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: xsync.NewMap[string, time.Time]()}
}

// WithClock replaces the wall clock, for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Reserve(_ context.Context, key string) (bool, error) {
	now := c.now()
	c.sweep(now)

	reserved := false
	c.entries.Compute(key, func(expires time.Time, loaded bool) (time.Time, xsync.ComputeOp) {
		if loaded && now.Before(expires) {
			return expires, xsync.CancelOp
		}
		reserved = true
		return now.Add(c.ttl), xsync.UpdateOp
	})
	return reserved, nil
}

func (c *MemoryCache) Release(_ context.Context, key string) error {
	c.entries.Delete(key)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	c.sweep(c.now())
	return c.entries.Size()
}

func (c *MemoryCache) sweep(now time.Time) {
	c.entries.Range(func(key string, expires time.Time) bool {
		if !now.Before(expires) {
			c.entries.Compute(key, func(current time.Time, loaded bool) (time.Time, xsync.ComputeOp) {
				if loaded && !now.Before(current) {
					return current, xsync.DeleteOp
				}
				return current, xsync.CancelOp
			})
		}
		return true
	})
}

// RedisCache shares the suppression window across processes.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache stores reservations under prefix with SET NX EX.
func NewRedisCache(rdb *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultSendTTL
	}
	if prefix == "" {
		prefix = "dao-monitor:sent:"
	}
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) Reserve(ctx context.Context, key string) (bool, error) {
	return c.rdb.SetNX(ctx, c.prefix+key, 1, c.ttl).Result()
}

func (c *RedisCache) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.prefix+key).Err()
}
