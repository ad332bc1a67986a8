package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Config struct {
	AppEnv        string            `env:"APP_ENV,notEmpty"`
	APIAddr       string            `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN   string            `env:"POSTGRES_DSN,notEmpty"`
	ShardDSNs     map[string]string `env:"SHARD_DSNS" envSeparator:"," envKeyValSeparator:"="`
	MigrationsDir string            `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	RedisAddr     string            `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string            `env:"REDIS_PASSWORD"`

	// MigrateOnStart is for single-process setups; fleets run cmd/migrate.
	MigrateOnStart bool `env:"MIGRATE_ON_START" envDefault:"false"`

	Throttling Throttling
}

// Throttling holds the knobs of the adaptive concurrency controller.
type Throttling struct {
	Enabled         bool              `env:"THROTTLING_ENABLED" envDefault:"true"`
	DisabledWorkers []string          `env:"THROTTLING_DISABLED_WORKERS" envSeparator:","`
	Queues          []string          `env:"QUEUES" envSeparator:"," envDefault:"default"`
	WorkerRoutes    map[string]string `env:"WORKER_ROUTES" envSeparator:"," envKeyValSeparator:"="`
	LeaseBackend    string            `env:"LEASE_BACKEND" envDefault:"redis"`

	AdmissionLeaseTTL time.Duration `env:"ADMISSION_LEASE_TTL" envDefault:"5s"`
	RecoveryLeaseTTL  time.Duration `env:"RECOVERY_LEASE_TTL" envDefault:"25s"`
	BucketLength      time.Duration `env:"BUCKET_LENGTH" envDefault:"60s"`
	LookupSetTTL      time.Duration `env:"LOOKUP_SET_TTL" envDefault:"30m"`
	SweepMinInterval  time.Duration `env:"SWEEP_MIN_INTERVAL" envDefault:"30s"`
	SweepMaxInterval  time.Duration `env:"SWEEP_MAX_INTERVAL" envDefault:"90s"`

	UsageWindow            time.Duration      `env:"USAGE_WINDOW" envDefault:"1m"`
	DefaultDBDurationQuota float64            `env:"DEFAULT_DB_DURATION_QUOTA" envDefault:"120"`
	DBDurationQuotas       map[string]float64 `env:"DB_DURATION_QUOTAS" envSeparator:"," envKeyValSeparator:"="`
}

func Load() Config {
	c, err := Parse()
	if err != nil {
		log.Fatal(err)
	}
	return c
}

// Parse reads the configuration from the environment and validates it.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, errors.Wrap(err, "parse env")
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	t := c.Throttling
	switch {
	case t.BucketLength <= 0:
		return errors.New("BUCKET_LENGTH must be positive")
	case t.SweepMinInterval <= 0 || t.SweepMinInterval > t.SweepMaxInterval:
		return errors.Errorf("sweep interval [%s, %s] is invalid", t.SweepMinInterval, t.SweepMaxInterval)
	case t.RecoveryLeaseTTL > t.SweepMinInterval:
		// A lease outliving the shortest sleep locks its own holder out.
		return errors.Errorf("RECOVERY_LEASE_TTL %s exceeds SWEEP_MIN_INTERVAL %s", t.RecoveryLeaseTTL, t.SweepMinInterval)
	case t.LookupSetTTL < t.SweepMaxInterval:
		return errors.New("LOOKUP_SET_TTL must outlive SWEEP_MAX_INTERVAL")
	case t.LeaseBackend != "redis" && t.LeaseBackend != "postgres":
		return errors.Errorf("unknown LEASE_BACKEND %q", t.LeaseBackend)
	}
	return nil
}
