package services

import (
	"context"

	"github.com/iota-uz/backoffice/modules/audit/domain/auditsession"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/pkg/authz"
	"github.com/iota-uz/backoffice/pkg/types"
)

const historyBatchSize = 500

// SessionHistory is one edit session and its net change.
type SessionHistory struct {
	Session *auditsession.Session
	Changes []auditsession.Change
}

// HistoryService reconstructs per-record edit history from the audit trail.
type HistoryService struct {
	repo  auditentry.Repository
	authz *authz.Service
}

func NewHistoryService(repo auditentry.Repository, authzService *authz.Service) *HistoryService {
	return &HistoryService{repo: repo, authz: authzService}
}

// History returns the sessions of ref oldest first, each with its diff. Sessions
// whose diff is empty are kept so every audit entry stays visible.
func (h *HistoryService) History(ctx context.Context, actor types.Actor, ref resource.Ref, fieldOrder []string) ([]SessionHistory, error) {
	if actor.IsZero() {
		return nil, ErrUnauthorized
	}
	if !h.authz.Can(ctx, actor.Role, authz.ObjectAudit, authz.ActionRead) {
		return nil, ErrPermissionDenied
	}
	if !ref.Type.Valid() {
		return nil, invalidPayload("unknown resource type")
	}
	entries, err := h.entries(ctx, ref)
	if err != nil {
		return nil, err
	}
	opts := auditsession.DefaultOptions().WithFieldOrder(fieldOrder)
	sessions := auditsession.Group(entries)
	out := make([]SessionHistory, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionHistory{Session: s, Changes: s.Diff(opts)})
	}
	return out, nil
}

func (h *HistoryService) entries(ctx context.Context, ref resource.Ref) ([]*auditentry.AuditEntry, error) {
	var all []*auditentry.AuditEntry
	for offset := 0; ; offset += historyBatchSize {
		batch, err := h.repo.List(ctx, &auditentry.FindParams{
			ResourceType: ref.Type,
			ResourceID:   ref.ID,
			Ascending:    true,
			Limit:        historyBatchSize,
			Offset:       offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < historyBatchSize {
			return all, nil
		}
	}
}
