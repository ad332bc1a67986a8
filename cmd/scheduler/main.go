package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/throttler/internal/app"
	"github.com/you/throttler/internal/config"
	"github.com/you/throttler/internal/logging"
	"github.com/you/throttler/internal/storage"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, "throttler-scheduler")
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	_ = logger.Sync()
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
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

	// One recovery loop per queue this process serves.
	g, ctx := errgroup.WithContext(ctx)
	for _, queue := range cfg.Throttling.Queues {
		sched, err := a.Scheduler(queue)
		if err != nil {
			return errors.Wrapf(err, "scheduler for %s", queue)
		}
		g.Go(func() error { return sched.Run(ctx) })
	}
	return g.Wait()
}
