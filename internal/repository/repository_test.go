package repository_test

import (
	"context"
	"fmt"

	"github.com/nikolayk812/storefront-checkout/internal/repository"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const migrationsDir = "../migrations"

func startPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:17.6-alpine3.22",
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("postgres.Run: %w", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("pc.ConnectionString: %w", err)
	}

	if err := repository.Migrate(connStr, migrationsDir); err != nil {
		return nil, "", fmt.Errorf("repository.Migrate: %w", err)
	}

	return postgresContainer, connStr, nil
}

func startMongo(ctx context.Context) (*mongodb.MongoDBContainer, string, error) {
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		return nil, "", fmt.Errorf("mongodb.Run: %w", err)
	}

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("mc.ConnectionString: %w", err)
	}

	return mongoContainer, uri, nil
}
