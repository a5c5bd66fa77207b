package db

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
}

// Migrate applies all pending schema migrations using a short-lived database/sql handle.
func Migrate(ctx context.Context, dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(logrus.StandardLogger())
	if err = goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err = goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrateWithRetry retries Migrate with exponential backoff. The database is usually
// still starting when the service comes up together with it.
func MigrateWithRetry(ctx context.Context, dsn string, policy RetryPolicy) error {
	expBackoff := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expBackoff.InitialInterval = policy.InitialInterval
	}
	expBackoff.MaxElapsedTime = 0

	var b backoff.BackOff = expBackoff
	if policy.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(policy.MaxRetries))
	}

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return Migrate(ctx, dsn)
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logrus.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "retry_in": next}).Warn("Database migration failed, retrying")
		},
	)
}
