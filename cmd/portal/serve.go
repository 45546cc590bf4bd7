package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	internalhttp "deptportal/portal/internal/http"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the portal shell",
		Long: `Serve the portal shell with role-guarded routes.

The shell is single-user: it stands in for one browser tab and holds one
process-wide session. Every visitor of the shell acts as that user, so it
listens on 127.0.0.1:3000 by default. Only widen PORTAL_HTTP_ADDR or --addr
on a machine nobody else can reach.

The session is checked once on start and revalidated every
PORTAL_REVALIDATE_INTERVAL until shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default PORTAL_HTTP_ADDR)")

	return cmd
}

func runServe(addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}

	a.store.Start(ctx)

	server := internalhttp.NewServer(a.store, a.flow, a.registry, a.logger)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("portal shell listening", zap.String("addr", addr), zap.String("api", a.cfg.APIBaseURL))
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
		a.logger.Warn("shutdown error", zap.Error(err))
	}
	select {
	case <-a.store.Done():
	case <-shutdownCtx.Done():
	}
	return nil
}
