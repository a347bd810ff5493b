package mappers

import (
	"github.com/iota-uz/backoffice/modules/audit/domain/auditsession"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/presentation/viewmodels"
	"github.com/iota-uz/backoffice/modules/audit/services"
)

func EditGrantToViewModel(g *editgrant.EditGrant) *viewmodels.EditGrant {
	vm := &viewmodels.EditGrant{
		ID:           g.ID.String(),
		RequesterID:  g.RequesterID.String(),
		ResourceType: string(g.ResourceType),
		ResourceID:   g.ResourceID,
		DisplayID:    g.DisplayID(),
		Reason:       g.Reason,
		Status:       string(g.Status),
		ApprovedAt:   g.ApprovedAt,
		ExpiresAt:    g.ExpiresAt,
		Metadata:     g.Metadata,
		CreatedAt:    g.CreatedAt,
	}
	if g.ApproverID != nil {
		vm.ApproverID = g.ApproverID.String()
	}
	return vm
}

func EditGrantsToViewModel(grants []*editgrant.EditGrant, total int64) *viewmodels.EditGrantList {
	items := make([]*viewmodels.EditGrant, 0, len(grants))
	for _, g := range grants {
		items = append(items, EditGrantToViewModel(g))
	}
	return &viewmodels.EditGrantList{Items: items, Total: total}
}

func AttributionToViewModel(a services.Attribution, active bool) *viewmodels.ActiveGrant {
	if !active {
		return &viewmodels.ActiveGrant{}
	}
	return &viewmodels.ActiveGrant{
		Active:    true,
		RequestID: a.RequestID,
		Reason:    a.Reason,
		DisplayID: a.DisplayID,
	}
}

func AuditEntryToViewModel(e *auditentry.AuditEntry) *viewmodels.AuditEntry {
	return &viewmodels.AuditEntry{
		ID:           e.ID.String(),
		Seq:          e.Seq,
		ActorID:      e.ActorID.String(),
		Action:       string(e.Action),
		ResourceType: string(e.ResourceType),
		ResourceID:   e.ResourceID,
		RequestID:    e.RequestID(),
		Reason:       e.Reason(),
		DisplayID:    e.DisplayID(),
		OldValues:    e.OldValues,
		NewValues:    e.NewValues,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}

func AuditEntriesToViewModel(entries []*auditentry.AuditEntry, total int64) *viewmodels.AuditEntryList {
	items := make([]*viewmodels.AuditEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, AuditEntryToViewModel(e))
	}
	return &viewmodels.AuditEntryList{Items: items, Total: total}
}

func ChangesToViewModel(changes []auditsession.Change) []*viewmodels.Change {
	out := make([]*viewmodels.Change, 0, len(changes))
	for _, c := range changes {
		vm := &viewmodels.Change{Key: c.Key, Old: c.Old, New: c.New}
		for _, item := range c.Items {
			vm.Items = append(vm.Items, &viewmodels.ItemChange{
				Index:  item.Index,
				Kind:   string(item.Kind),
				Old:    item.Old,
				New:    item.New,
				Fields: ChangesToViewModel(item.Fields),
			})
		}
		out = append(out, vm)
	}
	return out
}

func HistoryToViewModel(ref resource.Ref, history []services.SessionHistory) *viewmodels.History {
	sessions := make([]*viewmodels.Session, 0, len(history))
	for _, h := range history {
		s := h.Session
		sessions = append(sessions, &viewmodels.Session{
			RequestID: s.RequestID,
			Reason:    s.Reason,
			ActorID:   s.ActorID.String(),
			Action:    string(s.Action),
			Deleted:   s.Deleted(),
			Entries:   len(s.Entries),
			StartedAt: s.StartedAt,
			EndedAt:   s.EndedAt,
			Changes:   ChangesToViewModel(h.Changes),
		})
	}
	return &viewmodels.History{
		ResourceType: string(ref.Type),
		ResourceID:   ref.ID,
		Sessions:     sessions,
	}
}
