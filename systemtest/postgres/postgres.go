// Package postgres starts a throwaway Postgres for the fleet system
// tests.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image      = "postgres:17-alpine"
	dbUser     = "fleet"
	dbPassword = "fleet"
	dbName     = "fleet"
)

// Start launches a disposable coordinator database and returns the
// container together with a connection URL ready for migrations.
func Start(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	container, err := postgres.Run(ctx,
		image,
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.WithDatabase(dbName),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start Postgres container: %w", err)
	}

	state, err := container.State(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container state: %w", err)
	}
	if !state.Running {
		return nil, "", fmt.Errorf("postgres container is not running")
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("failed to build connection string: %w", err)
	}

	return container, url, nil
}

func Terminate(ctx context.Context, container *postgres.PostgresContainer) error {
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate Postgres container: %w", err)
	}
	return nil
}
