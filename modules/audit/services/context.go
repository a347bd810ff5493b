package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/constants"
	"github.com/iota-uz/backoffice/pkg/types"
)

var tracer = otel.Tracer("backoffice/audit")

// Attribution is the (request id, reason) pair an audit entry is filed under.
type Attribution struct {
	RequestID string
	Reason    string
	// GrantID is uuid.Nil for direct edits.
	GrantID   uuid.UUID
	DisplayID string
}

// DirectAttribution marks an elevated edit made without a grant.
func DirectAttribution() Attribution {
	return Attribution{
		RequestID: constants.AdminDirectRequestID,
		Reason:    constants.AdminDirectReason,
	}
}

func grantAttribution(g *editgrant.EditGrant) Attribution {
	return Attribution{
		RequestID: g.ID.String(),
		Reason:    g.Reason,
		GrantID:   g.ID,
		DisplayID: g.DisplayID(),
	}
}

func (a Attribution) Direct() bool {
	return a.GrantID == uuid.Nil
}

// ContextActors resolves the caller from the request context.
type ContextActors struct{}

func (ContextActors) CurrentActor(ctx context.Context) (types.Actor, error) {
	actor, err := composables.UseActor(ctx)
	if err != nil {
		return types.Actor{}, ErrUnauthorized
	}
	return actor, nil
}

func resolveActor(ctx context.Context, actors resource.ActorProvider) (types.Actor, error) {
	actor, err := actors.CurrentActor(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, composables.ErrNoActor) {
			return types.Actor{}, ErrUnauthorized
		}
		return types.Actor{}, err
	}
	if actor.IsZero() {
		return types.Actor{}, ErrUnauthorized
	}
	return actor, nil
}

type clock func() time.Time

// utcNow truncates to the precision Postgres stores.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func startSpan(ctx context.Context, name string, ref resource.Ref) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("resource.type", string(ref.Type)),
		attribute.String("resource.id", ref.ID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
	}
	span.End()
}

func clampLimit(limit, def, maxAllowed int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxAllowed {
		return maxAllowed
	}
	return limit
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
