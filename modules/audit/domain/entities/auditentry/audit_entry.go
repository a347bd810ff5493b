package auditentry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
)

type Action string

const (
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionApproveEdit Action = "approve_edit"
)

func ParseAction(raw string) (Action, error) {
	a := Action(raw)
	if !a.Valid() {
		return "", fmt.Errorf("unknown audit action %q", raw)
	}
	return a, nil
}

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionApproveEdit:
		return true
	}
	return false
}

// Metadata keys written by the recorder.
const (
	MetaRequestID   = "request_id"
	MetaReason      = "reason"
	MetaDisplayID   = "display_id"
	MetaChangedKeys = "changed_keys"
	MetaPatch       = "patch"
)

// AuditEntry is an immutable record of one mutation. OldValues is nil for creates and
// NewValues is nil for deletes.
type AuditEntry struct {
	ID           uuid.UUID
	Seq          int64
	ActorID      uuid.UUID
	Action       Action
	ResourceType resource.Type
	ResourceID   string
	OldValues    *fieldvalue.Object
	NewValues    *fieldvalue.Object
	Metadata     *fieldvalue.Object
	CreatedAt    time.Time
}

func (e *AuditEntry) Ref() resource.Ref {
	return resource.Ref{Type: e.ResourceType, ID: e.ResourceID}
}

func (e *AuditEntry) metaString(key string) string {
	v := e.Metadata.Lookup(key)
	if v.IsNull() {
		return ""
	}
	return v.String()
}

func (e *AuditEntry) RequestID() string { return e.metaString(MetaRequestID) }

func (e *AuditEntry) Reason() string { return e.metaString(MetaReason) }

func (e *AuditEntry) DisplayID() string { return e.metaString(MetaDisplayID) }

// ChangedKeys returns the keys recorded at write time, if any.
func (e *AuditEntry) ChangedKeys() []string {
	items, ok := e.Metadata.Lookup(MetaChangedKeys).Items()
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.String())
	}
	return keys
}

type FindParams struct {
	ResourceType resource.Type
	ResourceID   string
	ActorID      *uuid.UUID
	Action       Action
	RequestID    string
	// DisplayID matches as a case-insensitive substring.
	DisplayID string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
	// Ascending orders by (created_at, seq) oldest first; the default is newest first.
	Ascending bool
}

// Repository is append-only: entries are never updated or deleted.
type Repository interface {
	// Create assigns ID, Seq and CreatedAt when unset.
	Create(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, params *FindParams) ([]*AuditEntry, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
