package server

import (
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/backoffice/pkg/application"
	"github.com/iota-uz/backoffice/pkg/configuration"
	"github.com/iota-uz/backoffice/pkg/middleware"
	"github.com/iota-uz/backoffice/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.NewLoggerOptions(true, true, 512)
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader

	// Core middleware stack with tracing capabilities
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts), // This now creates the root span for each request

		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.CORSAllowedOrigins...),

		middleware.TracedMiddleware("database"),
		middleware.ProvidePool(options.Pool),

		middleware.TracedMiddleware("actor"),
		middleware.WithActor(conf.ActorIDHeader, conf.ActorRoleHeader),
	}

	app.RegisterMiddleware(middlewares...)

	return server.NewHTTPServer(app, server.NotFound(), server.MethodNotAllowed()), nil
}
