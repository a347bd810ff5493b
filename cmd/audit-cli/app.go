package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/backoffice/modules"
	"github.com/iota-uz/backoffice/modules/audit"
	"github.com/iota-uz/backoffice/pkg/application"
	"github.com/iota-uz/backoffice/pkg/commands"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/configuration"
	"github.com/iota-uz/backoffice/pkg/types"
)

// session is a loaded application plus a context carrying its pool.
type session struct {
	app   application.Application
	ctx   context.Context
	close func()
}

func openSession(ctx context.Context) (*session, error) {
	conf := configuration.Use()
	pool, err := commands.GetDatabasePool(ctx)
	if err != nil {
		return nil, err
	}
	closers := []func(){pool.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := audit.OptionsFromConfig(conf)
	if conf.UsesRedis() {
		client := redis.NewClient(&redis.Options{Addr: conf.RedisURL})
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		opts.Redis = client
	}

	app := application.New(&application.ApplicationOptions{
		Pool:   pool,
		Logger: conf.Logger(),
	})
	if err := modules.Load(app, modules.BuiltInModules(opts)...); err != nil {
		closeAll()
		return nil, err
	}
	return &session{app: app, ctx: withPool(ctx, pool), close: closeAll}, nil
}

func withPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return composables.WithPool(ctx, pool)
}

func parseActor(rawID, rawRole string) (types.Actor, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return types.Actor{}, fmt.Errorf("invalid --actor: %w", err)
	}
	return types.Actor{ID: id, Role: types.ParseRole(rawRole)}, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
