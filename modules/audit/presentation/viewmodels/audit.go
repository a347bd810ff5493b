package viewmodels

import (
	"time"

	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
)

type EditGrant struct {
	ID           string     `json:"id"`
	RequesterID  string     `json:"requester_id"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	DisplayID    string     `json:"display_id,omitempty"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"`
	ApproverID   string     `json:"approver_id,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Metadata     *fv.Object `json:"metadata,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type EditGrantList struct {
	Items []*EditGrant `json:"items"`
	Total int64        `json:"total"`
}

type ActiveGrant struct {
	Active    bool   `json:"active"`
	RequestID string `json:"request_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	DisplayID string `json:"display_id,omitempty"`
}

type AuditEntry struct {
	ID           string     `json:"id"`
	Seq          int64      `json:"seq"`
	ActorID      string     `json:"actor_id"`
	Action       string     `json:"action"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	RequestID    string     `json:"request_id,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	DisplayID    string     `json:"display_id,omitempty"`
	OldValues    *fv.Object `json:"old_values"`
	NewValues    *fv.Object `json:"new_values"`
	Metadata     *fv.Object `json:"metadata,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type AuditEntryList struct {
	Items []*AuditEntry `json:"items"`
	Total int64         `json:"total"`
}

type ItemChange struct {
	Index  int       `json:"index"`
	Kind   string    `json:"kind"`
	Old    fv.Value  `json:"old"`
	New    fv.Value  `json:"new"`
	Fields []*Change `json:"fields,omitempty"`
}

type Change struct {
	Key   string        `json:"key"`
	Old   fv.Value      `json:"old"`
	New   fv.Value      `json:"new"`
	Items []*ItemChange `json:"items,omitempty"`
}

type Session struct {
	RequestID string    `json:"request_id"`
	Reason    string    `json:"reason,omitempty"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Deleted   bool      `json:"deleted"`
	Entries   int       `json:"entries"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Changes   []*Change `json:"changes"`
}

type History struct {
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	Sessions     []*Session `json:"sessions"`
}
