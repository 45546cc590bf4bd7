// Package cache mirrors the last known user for display, the way the web
// client keeps "currentUser" in local storage. Nothing here is an authority:
// the session store never reads it back.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"deptportal/portal/internal/model"
)

const DefaultKey = "currentUser"

type UserCache interface {
	Save(ctx context.Context, user model.User) error
	Load(ctx context.Context) (model.User, bool, error)
	Clear(ctx context.Context) error
}

type RedisCache struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

func NewRedisCache(client *redis.Client, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = DefaultKey
	}
	return &RedisCache{redis: client, key: key, ttl: ttl}
}

func (c *RedisCache) Save(ctx context.Context, user model.User) error {
	if c.redis == nil {
		return errors.New("redis_not_configured")
	}
	data, err := model.EncodeUser(user)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, redisKey(c.key), data, c.ttl).Err()
}

func (c *RedisCache) Load(ctx context.Context) (model.User, bool, error) {
	if c.redis == nil {
		return nil, false, errors.New("redis_not_configured")
	}
	value, err := c.redis.Get(ctx, redisKey(c.key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	user, err := model.DecodeUser(value)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	if c.redis == nil {
		return errors.New("redis_not_configured")
	}
	return c.redis.Del(ctx, redisKey(c.key)).Err()
}

func redisKey(key string) string {
	return fmt.Sprintf("portal:%s", key)
}

type MemoryCache struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Save(_ context.Context, user model.User) error {
	data, err := model.EncodeUser(user)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	return nil
}

func (c *MemoryCache) Load(_ context.Context) (model.User, bool, error) {
	c.mu.Lock()
	data := c.data
	c.mu.Unlock()
	if data == nil {
		return nil, false, nil
	}
	user, err := model.DecodeUser(data)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	return nil
}

// FileCache keeps the mirror in a local file so separate CLI runs see it
// without Redis. Entries older than ttl read as absent.
type FileCache struct {
	path string
	ttl  time.Duration
	now  func() time.Time
}

type fileEntry struct {
	SavedAt time.Time       `json:"saved_at"`
	User    json.RawMessage `json:"user"`
}

func NewFileCache(path string, ttl time.Duration) *FileCache {
	return &FileCache{path: path, ttl: ttl, now: time.Now}
}

func (c *FileCache) Save(_ context.Context, user model.User) error {
	data, err := model.EncodeUser(user)
	if err != nil {
		return err
	}
	entry, err := json.Marshal(fileEntry{SavedAt: c.now(), User: data})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, entry, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func (c *FileCache) Load(_ context.Context) (model.User, bool, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, err
	}
	if c.ttl > 0 && c.now().Sub(entry.SavedAt) > c.ttl {
		return nil, false, nil
	}
	user, err := model.DecodeUser(entry.User)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (c *FileCache) Clear(_ context.Context) error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
