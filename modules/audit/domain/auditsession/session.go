// Package auditsession folds an ordered audit trail into edit sessions and
// reconstructs the net field-level change of each session.
package auditsession

import (
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/pkg/constants"
)

// Session is a contiguous run of entries written under one grant. OldValues is the
// pre-image of the first entry and NewValues the post-image of the last one.
type Session struct {
	Entries   []*auditentry.AuditEntry
	RequestID string
	Reason    string
	ActorID   uuid.UUID
	Action    auditentry.Action
	OldValues *fieldvalue.Object
	NewValues *fieldvalue.Object
	StartedAt time.Time
	EndedAt   time.Time
}

func (s *Session) Ref() resource.Ref {
	return s.Entries[0].Ref()
}

// Deleted reports whether the session ends with the record removed.
func (s *Session) Deleted() bool {
	return s.Action == auditentry.ActionDelete
}

func (s *Session) Diff(opts Options) []Change {
	if s.Deleted() {
		return Removed(s.OldValues, opts)
	}
	return Diff(s.OldValues, s.NewValues, opts)
}

func (s *Session) add(e *auditentry.AuditEntry) {
	s.Entries = append(s.Entries, e)
	s.NewValues = e.NewValues
	s.Action = e.Action
	s.EndedAt = e.CreatedAt
}

func newSession(e *auditentry.AuditEntry) *Session {
	return &Session{
		Entries:   []*auditentry.AuditEntry{e},
		RequestID: e.RequestID(),
		Reason:    e.Reason(),
		ActorID:   e.ActorID,
		Action:    e.Action,
		OldValues: e.OldValues,
		NewValues: e.NewValues,
		StartedAt: e.CreatedAt,
		EndedAt:   e.CreatedAt,
	}
}

// Mergeable reports whether b continues the session whose last entry is a.
// Direct edits and entries without a request id always stand alone.
func Mergeable(a, b *auditentry.AuditEntry) bool {
	id := a.RequestID()
	if id == "" || id == constants.AdminDirectRequestID {
		return false
	}
	return id == b.RequestID() && a.Ref() == b.Ref()
}

// Group folds entries, ordered oldest first, into sessions in a single pass.
func Group(entries []*auditentry.AuditEntry) []*Session {
	var sessions []*Session
	var current *Session
	for _, e := range entries {
		if current != nil && Mergeable(current.Entries[len(current.Entries)-1], e) {
			current.add(e)
			continue
		}
		current = newSession(e)
		sessions = append(sessions, current)
	}
	return sessions
}
