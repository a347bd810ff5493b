package persistence

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
)

// InmemAuditLogRepository is an append-only in-memory audit log. Seq is assigned
// under the lock so ordering matches insertion.
type InmemAuditLogRepository struct {
	mu      sync.RWMutex
	entries []*auditentry.AuditEntry
	seq     int64
}

func NewInmemAuditLogRepository() *InmemAuditLogRepository {
	return &InmemAuditLogRepository{}
}

func cloneEntry(e *auditentry.AuditEntry) *auditentry.AuditEntry {
	cp := *e
	if e.OldValues != nil {
		cp.OldValues = e.OldValues.Clone()
	}
	if e.NewValues != nil {
		cp.NewValues = e.NewValues.Clone()
	}
	cp.Metadata = e.Metadata.Clone()
	return &cp
}

func (r *InmemAuditLogRepository) Create(_ context.Context, e *auditentry.AuditEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("invalid audit action %q", e.Action)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.seq++
	e.Seq = r.seq
	r.entries = append(r.entries, cloneEntry(e))
	return nil
}

func (r *InmemAuditLogRepository) filter(params *auditentry.FindParams) []*auditentry.AuditEntry {
	var out []*auditentry.AuditEntry
	for _, e := range r.entries {
		if params != nil && !matchesAudit(e, params) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesAudit(e *auditentry.AuditEntry, p *auditentry.FindParams) bool {
	switch {
	case p.ResourceType != "" && e.ResourceType != p.ResourceType:
		return false
	case p.ResourceID != "" && e.ResourceID != p.ResourceID:
		return false
	case p.ActorID != nil && e.ActorID != *p.ActorID:
		return false
	case p.Action != "" && e.Action != p.Action:
		return false
	case strings.TrimSpace(p.RequestID) != "" && e.RequestID() != strings.TrimSpace(p.RequestID):
		return false
	case p.From != nil && !p.From.IsZero() && e.CreatedAt.Before(*p.From):
		return false
	case p.To != nil && !p.To.IsZero() && e.CreatedAt.After(*p.To):
		return false
	}
	if needle := strings.TrimSpace(p.DisplayID); needle != "" {
		return strings.Contains(strings.ToLower(e.DisplayID()), strings.ToLower(needle))
	}
	return true
}

func (r *InmemAuditLogRepository) List(_ context.Context, params *auditentry.FindParams) ([]*auditentry.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := r.filter(params)
	ascending := params != nil && params.Ascending
	slices.SortFunc(rows, func(a, b *auditentry.AuditEntry) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if c == 0 {
			c = cmp.Compare(a.Seq, b.Seq)
		}
		if ascending {
			return c
		}
		return -c
	})
	if params != nil {
		rows = page(rows, params.Limit, params.Offset)
	}
	out := make([]*auditentry.AuditEntry, 0, len(rows))
	for _, e := range rows {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func (r *InmemAuditLogRepository) Count(_ context.Context, params *auditentry.FindParams) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.filter(params))), nil
}
