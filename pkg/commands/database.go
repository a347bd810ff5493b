package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/backoffice/pkg/configuration"
)

// GetDatabasePool connects to the configured database.
func GetDatabasePool(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, configuration.Use().Database.Opts)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}

func adminConnString(opts configuration.DatabaseOptions) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=disable",
		opts.Host, opts.Port, opts.User, opts.Password)
}

// CreateDatabase drops and creates an empty database named after DB_NAME.
func CreateDatabase(ctx context.Context) error {
	conf := configuration.Use()

	conn, err := pgx.Connect(ctx, adminConnString(conf.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	name := pgx.Identifier{conf.Database.Name}.Sanitize()
	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+name); err != nil {
		return fmt.Errorf("failed to drop existing database: %w", err)
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	conf.Logger().WithField("database", conf.Database.Name).Info("Created database")
	return nil
}

// DropDatabase removes the database named after DB_NAME.
func DropDatabase(ctx context.Context) error {
	conf := configuration.Use()

	conn, err := pgx.Connect(ctx, adminConnString(conf.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer func() {
		_ = conn.Close(ctx)
	}()

	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{conf.Database.Name}.Sanitize()); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}

	conf.Logger().WithField("database", conf.Database.Name).Info("Dropped database")
	return nil
}
