package editgrant

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return s, nil
	}
	return "", fmt.Errorf("unknown edit grant status %q", raw)
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// approved -> pending only exists to undo an approval whose draft could not be applied.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusPending
	case StatusRejected:
		return false
	}
	return false
}

const (
	MetaDraft     = "draft"
	MetaDisplayID = "display_id"
	MetaCancelled = "cancelled"
)

// EditGrant is one agent's request to edit one record, and once approved, the
// single-use permission to do so.
type EditGrant struct {
	ID           uuid.UUID
	RequesterID  uuid.UUID
	ResourceType resource.Type
	ResourceID   string
	Reason       string
	Status       Status
	ApproverID   *uuid.UUID
	ApprovedAt   *time.Time
	ExpiresAt    *time.Time
	Metadata     *fieldvalue.Object
	CreatedAt    time.Time
}

func (g *EditGrant) Ref() resource.Ref {
	return resource.Ref{Type: g.ResourceType, ID: g.ResourceID}
}

// Consumed reports whether the grant has been used (or otherwise expired) at now.
func (g *EditGrant) Consumed(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Active reports whether the grant may authorize a mutation at now. A positive ttl
// additionally bounds usability to ttl after approval.
func (g *EditGrant) Active(now time.Time, ttl time.Duration) bool {
	if g.Status != StatusApproved || g.Consumed(now) {
		return false
	}
	if ttl > 0 && g.ApprovedAt != nil && !g.ApprovedAt.Add(ttl).After(now) {
		return false
	}
	return true
}

// Draft returns the staged payload to apply on approval, if any.
func (g *EditGrant) Draft() (*fieldvalue.Object, bool, error) {
	v, ok := g.Metadata.Get(MetaDraft)
	if !ok || v.IsNull() {
		return nil, false, nil
	}
	obj, isObj := v.Object()
	if !isObj {
		return nil, true, fmt.Errorf("draft must be an object, got %s", v.Kind())
	}
	return obj, true, nil
}

func (g *EditGrant) DisplayID() string {
	v := g.Metadata.Lookup(MetaDisplayID)
	if v.IsNull() {
		return ""
	}
	return v.String()
}
