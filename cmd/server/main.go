package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/backoffice/internal/server"
	"github.com/iota-uz/backoffice/modules"
	"github.com/iota-uz/backoffice/modules/audit"
	"github.com/iota-uz/backoffice/pkg/application"
	"github.com/iota-uz/backoffice/pkg/authz"
	"github.com/iota-uz/backoffice/pkg/configuration"
	"github.com/iota-uz/backoffice/pkg/eventbus"
	"github.com/iota-uz/backoffice/pkg/logging"
	"github.com/iota-uz/backoffice/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	// Set up OpenTelemetry if enabled
	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	auditOptions := audit.OptionsFromConfig(conf)
	auditOptions.Authz = authz.Use()
	if conf.UsesRedis() {
		client := redis.NewClient(&redis.Options{Addr: conf.RedisURL})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to reach redis at %s: %v", conf.RedisURL, err)
		}
		auditOptions.Redis = client
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app, modules.BuiltInModules(auditOptions)...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on: %s\n", conf.SocketAddress)
		errCh <- serverInstance.Start(conf.SocketAddress)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	case <-stop:
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
		defer shutdownCancel()
		if err := serverInstance.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}
}
