package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deptportal/portal/internal/config"
	"deptportal/portal/internal/devbackend"
	"deptportal/portal/internal/logging"
)

func devbackendCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "devbackend",
		Short: "Run the local reference backend",
		Long: `Run a local backend that speaks the portal auth API with cookie JWTs
and CSRF double-submit, seeded with one demo account per role:

  65000001 / admin123
  70000001 / teacher123
  83000001 / student123

Revoked refresh tokens are kept in Redis when REDIS_ADDR is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevBackend(addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default DEVBACKEND_ADDR)")

	return cmd
}

func runDevBackend(addr string) error {
	cfg := config.Load()
	if addr == "" {
		addr = cfg.DevBackendAddr
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var blocklist devbackend.Blocklist
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		blocklist = devbackend.NewRedisBlocklist(redisClient, nil)
	}

	server := devbackend.NewServer(cfg, devbackend.NewDirectory(devbackend.DemoAccounts()...), blocklist, devbackend.WithLogger(logger))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("devbackend listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
