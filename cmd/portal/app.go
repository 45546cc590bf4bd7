package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"deptportal/portal/internal/cache"
	"deptportal/portal/internal/client"
	"deptportal/portal/internal/config"
	"deptportal/portal/internal/cookies"
	"deptportal/portal/internal/csrf"
	"deptportal/portal/internal/logging"
	"deptportal/portal/internal/login"
	"deptportal/portal/internal/session"
)

const (
	cookieFile = "cookies.json"
	mirrorFile = "current_user.json"
)

// app is the wiring shared by the client-side commands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	jar      http.CookieJar
	cookies  *cookies.FileStore
	client   *client.Client
	store    *session.Store
	cache    cache.UserCache
	flow     *login.Flow
	redis    *redis.Client
}

// newApp wires the client side. With persistent set, the cookie jar is loaded
// from and saved to the state directory, and the mirror falls back to a file
// when Redis is not configured, so separate CLI runs share one session.
func newApp(ctx context.Context, persistent bool) (*app, error) {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}

	jar, err := cookies.NewJar()
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, jar: jar}
	if persistent {
		a.cookies, err = cookies.NewFileStore(filepath.Join(cfg.StateDir, cookieFile), cfg.APIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("cookie store: %w", err)
		}
		if err := a.cookies.Load(jar); err != nil {
			return nil, fmt.Errorf("load cookies: %w", err)
		}
	}

	reader, err := cookies.NewReader(jar, cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("cookie reader: %w", err)
	}
	a.client = client.New(cfg, &http.Client{Jar: jar}, csrf.NewProvider(reader), logger)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.store = session.New(a.client,
		session.WithLogger(logger),
		session.WithMetrics(session.NewMetrics(a.registry)),
		session.WithInterval(cfg.RevalidateInterval),
	)

	if err := a.openCache(ctx, persistent); err != nil {
		a.store.Dispose()
		return nil, err
	}
	a.flow = login.NewFlow(a.client, a.store, a.cache, logger)
	return a, nil
}

func (a *app) openCache(ctx context.Context, persistent bool) error {
	if a.cfg.RedisAddr == "" {
		if persistent {
			a.cache = cache.NewFileCache(filepath.Join(a.cfg.StateDir, mirrorFile), a.cfg.CacheTTL)
		} else {
			a.cache = cache.NewMemoryCache()
		}
		return nil
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		_ = a.redis.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}
	a.cache = cache.NewRedisCache(a.redis, cache.DefaultKey, a.cfg.CacheTTL)
	return nil
}

// forgetSession drops the saved cookies whatever the API said, so the next
// run starts logged out.
func (a *app) forgetSession() {
	if a.cookies == nil {
		return
	}
	if err := a.cookies.Clear(); err != nil {
		a.logger.Warn("could not delete saved cookies", zap.Error(err))
	}
	a.cookies = nil
}

func (a *app) Close() {
	a.store.Dispose()
	if a.cookies != nil {
		if err := a.cookies.Save(a.jar); err != nil {
			a.logger.Warn("could not save cookies", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close error", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
