package devbackend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blocklist remembers revoked token ids until the token would have expired
// anyway.
type Blocklist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

type memoryBlocklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryBlocklist(now func() time.Time) Blocklist {
	if now == nil {
		now = time.Now
	}
	return &memoryBlocklist{entries: map[string]time.Time{}, now: now}
}

func (b *memoryBlocklist) Revoke(_ context.Context, jti string, until time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[jti] = until
	return nil
}

func (b *memoryBlocklist) Revoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.entries[jti]
	if !ok {
		return false, nil
	}
	if b.now().After(until) {
		delete(b.entries, jti)
		return false, nil
	}
	return true, nil
}

type redisBlocklist struct {
	redis *redis.Client
	now   func() time.Time
}

func NewRedisBlocklist(client *redis.Client, now func() time.Time) Blocklist {
	if now == nil {
		now = time.Now
	}
	return &redisBlocklist{redis: client, now: now}
}

func (b *redisBlocklist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	return b.redis.Set(ctx, blocklistKey(jti), "1", ttl).Err()
}

func (b *redisBlocklist) Revoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.redis.Exists(ctx, blocklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func blocklistKey(jti string) string {
	return fmt.Sprintf("token_blocklist:%s", jti)
}
