package services

import (
	"context"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/pkg/eventbus"
)

// ResourceChangedEvent is published after every successful mutation so cached
// views under Path can be refreshed.
type ResourceChangedEvent struct {
	Ref  resource.Ref
	Path string
}

// EditGrantStatusChangedEvent is published whenever a grant changes state.
type EditGrantStatusChangedEvent struct {
	PreviousStatus editgrant.Status
	Grant          editgrant.EditGrant
}

// BusInvalidator publishes ResourceChangedEvent on the event bus.
type BusInvalidator struct {
	bus eventbus.EventBus
}

func NewBusInvalidator(bus eventbus.EventBus) *BusInvalidator {
	return &BusInvalidator{bus: bus}
}

func (b *BusInvalidator) Invalidate(ctx context.Context, ref resource.Ref) {
	b.bus.Publish(ctx, &ResourceChangedEvent{Ref: ref, Path: ref.Type.Path()})
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, resource.Ref) {}
