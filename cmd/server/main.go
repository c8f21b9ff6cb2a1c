package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"identrisk/internal/platform/config"
	"identrisk/internal/platform/httpserver"
	"identrisk/internal/platform/logger"
)

// main loads configuration, builds every client explicitly and runs the HTTP
// server next to the background workers until a signal arrives.
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New(cfg.Environment)

	if err := run(cfg, log); err != nil {
		log.Error("identrisk stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	app, err := buildApp(ctx, cfg, infra, log)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server.Addr, app.router)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting identrisk",
			"addr", cfg.Server.Addr,
			"environment", cfg.Environment,
			"events_mode", string(cfg.EventsMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, worker := range app.workers {
		g.Go(func() error {
			if err := worker(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
