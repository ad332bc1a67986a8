// Command migrate applies the schema once per deploy, before the api and
// scheduler fleets start.
package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/throttler/internal/config"
	"github.com/you/throttler/internal/logging"
	"github.com/you/throttler/internal/storage"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.AppEnv, "throttler-migrate")
	if err != nil {
		log.Fatal(err)
	}

	err = run(context.Background(), cfg)
	_ = logger.Sync()
	if err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	logger.Info("migrations applied", zap.String("dir", cfg.MigrationsDir))
}

func run(ctx context.Context, cfg config.Config) error {
	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return errors.Wrap(err, "connect postgres")
	}
	defer db.Close()
	return storage.Migrate(db, cfg.MigrationsDir)
}
