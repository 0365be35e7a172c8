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

	"golang.org/x/sync/errgroup"

	"rekamed/internal/platform/config"
	"rekamed/internal/platform/health"
	"rekamed/internal/platform/logger"
	"rekamed/internal/platform/metrics"
)

// main wires configuration, backends and services, then runs the HTTP server
// and the ledger workers until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rekamed:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New(health.Version, cfg.Ledger.Backend)
	b, err := openBackends(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer b.Close(log)

	app, err := newApp(ctx, cfg, b, reg, log)
	if err != nil {
		return err
	}
	defer app.recorder.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.router(cfg, reg, b),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting rekamed",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"ledger_backend", cfg.Ledger.Backend,
		"access_log_backend", cfg.Ledger.Projection,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	app.startWorkers(gctx, g, cfg, b, reg)

	if err := g.Wait(); err != nil {
		log.Error("rekamed stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
