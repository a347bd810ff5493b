package persistence

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
)

// InmemEditGrantRepository keeps grants in memory. A single lock makes each method
// atomic, mirroring the conditional writes of the Postgres repository.
type InmemEditGrantRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*editgrant.EditGrant
}

func NewInmemEditGrantRepository() *InmemEditGrantRepository {
	return &InmemEditGrantRepository{rows: map[uuid.UUID]*editgrant.EditGrant{}}
}

func cloneGrant(g *editgrant.EditGrant) *editgrant.EditGrant {
	cp := *g
	cp.Metadata = g.Metadata.Clone()
	if g.ApproverID != nil {
		id := *g.ApproverID
		cp.ApproverID = &id
	}
	if g.ApprovedAt != nil {
		at := *g.ApprovedAt
		cp.ApprovedAt = &at
	}
	if g.ExpiresAt != nil {
		at := *g.ExpiresAt
		cp.ExpiresAt = &at
	}
	return &cp
}

func (r *InmemEditGrantRepository) UpsertPending(_ context.Context, g *editgrant.EditGrant) (*editgrant.EditGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if row.Status != editgrant.StatusPending || row.Ref() != g.Ref() {
			continue
		}
		if row.RequesterID != g.RequesterID {
			return nil, &editgrant.PendingConflictError{Ref: g.Ref(), HolderID: row.RequesterID}
		}
		row.Reason = g.Reason
		row.Metadata = g.Metadata.Clone()
		row.CreatedAt = g.CreatedAt
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		return cloneGrant(row), nil
	}

	row := cloneGrant(g)
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	row.Status = editgrant.StatusPending
	row.ApproverID, row.ApprovedAt, row.ExpiresAt = nil, nil, nil
	r.rows[row.ID] = row
	return cloneGrant(row), nil
}

func (r *InmemEditGrantRepository) GetByID(_ context.Context, id uuid.UUID) (*editgrant.EditGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, editgrant.ErrEditGrantNotFound
	}
	return cloneGrant(row), nil
}

func (r *InmemEditGrantRepository) active(q editgrant.ActiveQuery) *editgrant.EditGrant {
	var best *editgrant.EditGrant
	for _, row := range r.rows {
		if row.RequesterID != q.RequesterID || row.Ref() != q.Ref || !row.Active(q.Now, 0) {
			continue
		}
		if q.ApprovedSince != nil && (row.ApprovedAt == nil || !row.ApprovedAt.After(*q.ApprovedSince)) {
			continue
		}
		if best == nil || newerApproval(row, best) {
			best = row
		}
	}
	return best
}

func newerApproval(a, b *editgrant.EditGrant) bool {
	switch {
	case a.ApprovedAt == nil:
		return false
	case b.ApprovedAt == nil:
		return true
	case !a.ApprovedAt.Equal(*b.ApprovedAt):
		return a.ApprovedAt.After(*b.ApprovedAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (r *InmemEditGrantRepository) FindActive(_ context.Context, q editgrant.ActiveQuery) (*editgrant.EditGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.active(q)
	if row == nil {
		return nil, editgrant.ErrEditGrantNotFound
	}
	return cloneGrant(row), nil
}

func (r *InmemEditGrantRepository) Transition(_ context.Context, t editgrant.Transition) (*editgrant.EditGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[t.ID]
	if !ok {
		return nil, editgrant.ErrEditGrantNotFound
	}
	if !t.From.CanTransition(t.To) || row.Status != t.From {
		return nil, editgrant.ErrStaleTransition
	}
	if t.RequesterID != nil && row.RequesterID != *t.RequesterID {
		return nil, editgrant.ErrStaleTransition
	}

	row.Status = t.To
	switch t.To {
	case editgrant.StatusApproved:
		at := t.At
		row.ApproverID = t.ApproverID
		row.ApprovedAt = &at
	case editgrant.StatusRejected:
		row.ApproverID = t.ApproverID
		row.ApprovedAt = nil
	case editgrant.StatusPending:
		row.ApproverID, row.ApprovedAt, row.ExpiresAt = nil, nil, nil
	}
	if t.Metadata != nil {
		row.Metadata = t.Metadata.Clone()
	}
	return cloneGrant(row), nil
}

func (r *InmemEditGrantRepository) ConsumeByID(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || !row.Active(now, 0) {
		return false, nil
	}
	row.ExpiresAt = &now
	return true, nil
}

func (r *InmemEditGrantRepository) Consume(_ context.Context, q editgrant.ActiveQuery) (*editgrant.EditGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.active(q)
	if row == nil {
		return nil, nil
	}
	now := q.Now
	row.ExpiresAt = &now
	return cloneGrant(row), nil
}

func (r *InmemEditGrantRepository) Restore(_ context.Context, id uuid.UUID, consumedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status != editgrant.StatusApproved || row.ExpiresAt == nil || !row.ExpiresAt.Equal(consumedAt) {
		return false, nil
	}
	row.ExpiresAt = nil
	return true, nil
}

func (r *InmemEditGrantRepository) filter(params *editgrant.FindParams) []*editgrant.EditGrant {
	var out []*editgrant.EditGrant
	for _, row := range r.rows {
		if params != nil {
			if params.Status != "" && row.Status != params.Status {
				continue
			}
			if params.ResourceType != "" && row.ResourceType != params.ResourceType {
				continue
			}
			if params.ResourceID != "" && row.ResourceID != params.ResourceID {
				continue
			}
			if params.RequesterID != nil && row.RequesterID != *params.RequesterID {
				continue
			}
		}
		out = append(out, row)
	}
	return out
}

func (r *InmemEditGrantRepository) List(_ context.Context, params *editgrant.FindParams) ([]*editgrant.EditGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.filter(params)
	slices.SortFunc(rows, func(a, b *editgrant.EditGrant) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	if params != nil {
		rows = page(rows, params.Limit, params.Offset)
	}
	out := make([]*editgrant.EditGrant, 0, len(rows))
	for _, row := range rows {
		out = append(out, cloneGrant(row))
	}
	return out, nil
}

func (r *InmemEditGrantRepository) Count(_ context.Context, params *editgrant.FindParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.filter(params))), nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
