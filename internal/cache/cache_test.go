package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"deptportal/portal/internal/model"
)

func exerciseCache(t *testing.T, c UserCache) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := c.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty cache, got ok=%v err=%v", ok, err)
	}

	user := &model.TeacherUser{Identity: model.Identity{LoginID: "70000001", Name: "Ram"}, Subject: "Networks"}
	if err := c.Save(ctx, user); err != nil {
		t.Fatalf("save error: %v", err)
	}
	loaded, ok, err := c.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("expected cached user, got ok=%v err=%v", ok, err)
	}
	teacher, isTeacher := loaded.(*model.TeacherUser)
	if !isTeacher || teacher.Subject != "Networks" || teacher.Name != "Ram" {
		t.Fatalf("unexpected cached user %#v", loaded)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	if _, ok, err := c.Load(ctx); err != nil || ok {
		t.Fatalf("expected cleared cache, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemoryCache())
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCache(client, "", time.Hour)
	exerciseCache(t, c)

	if err := c.Save(context.Background(), &model.AdminUser{Identity: model.Identity{LoginID: "65000001"}}); err != nil {
		t.Fatalf("save error: %v", err)
	}
	if ttl := mr.TTL("portal:" + DefaultKey); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, ok, _ := c.Load(context.Background()); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestRedisCacheNotConfigured(t *testing.T) {
	c := NewRedisCache(nil, "", 0)
	if err := c.Save(context.Background(), nil); err == nil {
		t.Fatalf("expected error without redis")
	}
}

func TestFileCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "current_user.json")
	exerciseCache(t, NewFileCache(path, time.Hour))

	// A second instance on the same path sees what the first one saved.
	writer := NewFileCache(path, time.Hour)
	if err := writer.Save(context.Background(), &model.AdminUser{Identity: model.Identity{LoginID: "65000001"}}); err != nil {
		t.Fatalf("save error: %v", err)
	}
	reader := NewFileCache(path, time.Hour)
	if user, ok, err := reader.Load(context.Background()); err != nil || !ok || user.Profile().LoginID != "65000001" {
		t.Fatalf("expected user from another instance, got %v %v %v", user, ok, err)
	}

	reader.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok, _ := reader.Load(context.Background()); ok {
		t.Fatalf("expected stale entry to read as absent")
	}
}
