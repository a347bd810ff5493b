package editgrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
)

var (
	ErrEditGrantNotFound = errors.New("edit grant not found")
	// ErrStaleTransition means the grant exists but was no longer in the expected state.
	ErrStaleTransition = errors.New("edit grant changed concurrently")
)

// PendingConflictError is returned when another requester already holds the
// pending grant for a record.
type PendingConflictError struct {
	Ref      resource.Ref
	HolderID uuid.UUID
}

func (e *PendingConflictError) Error() string {
	return fmt.Sprintf("a pending edit request for %s is held by %s", e.Ref, e.HolderID)
}

// ActiveQuery selects the requester's usable approved grants for a record.
type ActiveQuery struct {
	Ref         resource.Ref
	RequesterID uuid.UUID
	Now         time.Time
	// ApprovedSince excludes grants approved at or before this instant (TTL cut-off).
	ApprovedSince *time.Time
}

// Transition is a conditional status change applied only while the grant is in From.
type Transition struct {
	ID   uuid.UUID
	From Status
	To   Status
	// ApproverID and At are stamped for approve/reject. Moving back to pending clears them.
	ApproverID *uuid.UUID
	At         time.Time
	// RequesterID, when set, additionally requires the grant to belong to this requester.
	RequesterID *uuid.UUID
	// Metadata, when set, replaces the stored metadata.
	Metadata *fieldvalue.Object
}

type FindParams struct {
	Status       Status
	ResourceType resource.Type
	ResourceID   string
	RequesterID  *uuid.UUID
	Limit        int
	Offset       int
}

// Repository persists grants. Every mutating method is a single conditional write so
// the pending-uniqueness and single-use rules hold under concurrent callers.
type Repository interface {
	// UpsertPending inserts g as pending or refreshes reason, metadata and created_at of
	// the same requester's pending grant. Returns *PendingConflictError when held by another requester.
	UpsertPending(ctx context.Context, g *EditGrant) (*EditGrant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*EditGrant, error)
	// FindActive returns the most recently approved usable grant, or ErrEditGrantNotFound.
	FindActive(ctx context.Context, q ActiveQuery) (*EditGrant, error)
	Transition(ctx context.Context, t Transition) (*EditGrant, error)
	// ConsumeByID stamps expires_at = now if the grant is still approved and unexpired.
	// It reports false when there was nothing to consume.
	ConsumeByID(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// Consume consumes the grant FindActive would return. It returns nil when none is usable.
	Consume(ctx context.Context, q ActiveQuery) (*EditGrant, error)
	// Restore clears expires_at if it still equals consumedAt.
	Restore(ctx context.Context, id uuid.UUID, consumedAt time.Time) (bool, error)
	List(ctx context.Context, params *FindParams) ([]*EditGrant, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
