package composables

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/backoffice/pkg/constants"
	"github.com/iota-uz/backoffice/pkg/types"
)

var (
	ErrNoActor = errors.New("actor not found in context")
)

type Params struct {
	IP        string
	UserAgent string
	RequestID string
	Request   *http.Request
	Writer    http.ResponseWriter
}

// UseParams returns the request parameters from the context.
// If the parameters are not found, the second return value will be false.
func UseParams(ctx context.Context) (*Params, bool) {
	params, ok := ctx.Value(constants.ParamsKey).(*Params)
	return params, ok
}

// WithParams returns a new context with the request parameters.
func WithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, constants.ParamsKey, params)
}

// WithLogger returns a new context carrying the request-scoped logger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger from the context, falling back to the standard logger.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithActor returns a new context carrying the authenticated actor.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actor)
}

// UseActor returns the authenticated actor or ErrNoActor.
func UseActor(ctx context.Context) (types.Actor, error) {
	actor, ok := ctx.Value(constants.ActorKey).(types.Actor)
	if !ok || actor.IsZero() {
		return types.Actor{}, ErrNoActor
	}
	return actor, nil
}

// UseRequestID returns the request id assigned by the logging middleware.
func UseRequestID(ctx context.Context) string {
	params, ok := UseParams(ctx)
	if !ok {
		return ""
	}
	return params.RequestID
}
