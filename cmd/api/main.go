package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/throttler/internal/api"
	"github.com/you/throttler/internal/app"
	"github.com/you/throttler/internal/config"
	"github.com/you/throttler/internal/logging"
	"github.com/you/throttler/internal/storage"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, "throttler-api")
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	_ = logger.Sync()
	if err != nil {
		logger.Fatal("api", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "init")
	}
	defer a.Close()

	if cfg.MigrateOnStart {
		if err := storage.Migrate(a.DB, cfg.MigrationsDir); err != nil {
			return err
		}
	}

	gate, err := a.Gate()
	if err != nil {
		return errors.Wrap(err, "admission gate")
	}

	srv := &http.Server{
		Addr: cfg.APIAddr,
		Handler: api.NewRouter(api.Config{
			Registry: a.Store,
			Tracker:  a.Tracker,
			Usage:    a.Usage,
			Gate:     gate,
			Gatherer: a.Registry,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.APIAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
