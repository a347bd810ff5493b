package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/persistence/models"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/repo"
)

const editRequestsTable = "edit_requests"

// Attempts made when the conflicting pending row disappears between the upsert and the holder lookup.
const upsertAttempts = 3

var editRequestColumns = []string{
	"id",
	"requester_id",
	"resource_type",
	"resource_id",
	"reason",
	"status",
	"approver_id",
	"approved_at",
	"expires_at",
	"metadata",
	"created_at",
}

func editRequestSelect() string {
	return strings.Join(editRequestColumns, ", ")
}

type EditGrantRepository struct{}

func NewEditGrantRepository() editgrant.Repository {
	return &EditGrantRepository{}
}

func scanEditRequest(row pgx.Row) (*editgrant.EditGrant, error) {
	var m models.EditRequest
	if err := row.Scan(
		&m.ID,
		&m.RequesterID,
		&m.ResourceType,
		&m.ResourceID,
		&m.Reason,
		&m.Status,
		&m.ApproverID,
		&m.ApprovedAt,
		&m.ExpiresAt,
		&m.Metadata,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return toDomainEditGrant(&m)
}

func (r *EditGrantRepository) UpsertPending(ctx context.Context, g *editgrant.EditGrant) (*editgrant.EditGrant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.Status = editgrant.StatusPending
	row, err := toDBEditRequest(g)
	if err != nil {
		return nil, err
	}

	// The partial unique index admits one pending row per record. The conflict branch
	// only updates when the stored row belongs to the same requester.
	query := repo.Join(
		repo.Insert(editRequestsTable, []string{
			"id", "requester_id", "resource_type", "resource_id", "reason", "status", "metadata", "created_at",
		}),
		"ON CONFLICT (resource_type, resource_id) WHERE status = 'pending'",
		"DO UPDATE SET reason = EXCLUDED.reason, metadata = EXCLUDED.metadata, created_at = EXCLUDED.created_at",
		"WHERE edit_requests.requester_id = EXCLUDED.requester_id",
		"RETURNING", editRequestSelect(),
	)

	for attempt := 0; attempt < upsertAttempts; attempt++ {
		saved, err := scanEditRequest(tx.QueryRow(ctx, query,
			row.ID,
			row.RequesterID,
			row.ResourceType,
			row.ResourceID,
			row.Reason,
			row.Status,
			row.Metadata,
			row.CreatedAt,
		))
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(mapUniqueViolation(err, g), "upsert edit_requests")
		}

		var holder uuid.UUID
		err = tx.QueryRow(ctx, repo.Join(
			"SELECT requester_id FROM", editRequestsTable,
			"WHERE resource_type = $1 AND resource_id = $2 AND status = 'pending'",
		), row.ResourceType, row.ResourceID).Scan(&holder)
		if err == nil {
			return nil, &editgrant.PendingConflictError{Ref: g.Ref(), HolderID: holder}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(err, "lookup pending edit request holder")
		}
	}
	return nil, errors.Wrapf(editgrant.ErrStaleTransition, "upsert edit_requests for %s", g.Ref())
}

func (r *EditGrantRepository) GetByID(ctx context.Context, id uuid.UUID) (*editgrant.EditGrant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := repo.Join("SELECT", editRequestSelect(), "FROM", editRequestsTable, "WHERE id = $1")
	g, err := scanEditRequest(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, editgrant.ErrEditGrantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select edit_requests")
	}
	return g, nil
}

// activeConditions returns the predicate over the requester's usable grants and its args.
// Placeholders start at $1.
func activeConditions(q editgrant.ActiveQuery) ([]string, []interface{}) {
	where := []string{
		"requester_id = $1",
		"resource_type = $2",
		"resource_id = $3",
		"status = 'approved'",
		"(expires_at IS NULL OR expires_at > $4)",
	}
	args := []interface{}{q.RequesterID, string(q.Ref.Type), q.Ref.ID, q.Now}
	if q.ApprovedSince != nil {
		where = append(where, "approved_at > $5")
		args = append(args, *q.ApprovedSince)
	}
	return where, args
}

func (r *EditGrantRepository) FindActive(ctx context.Context, q editgrant.ActiveQuery) (*editgrant.EditGrant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	where, args := activeConditions(q)
	query := repo.Join(
		"SELECT", editRequestSelect(), "FROM", editRequestsTable,
		repo.JoinWhere(where...),
		"ORDER BY approved_at DESC NULLS LAST, created_at DESC LIMIT 1",
	)
	g, err := scanEditRequest(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, editgrant.ErrEditGrantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select active edit_requests")
	}
	return g, nil
}

func (r *EditGrantRepository) Transition(ctx context.Context, t editgrant.Transition) (*editgrant.EditGrant, error) {
	if !t.From.CanTransition(t.To) {
		return nil, errors.Wrapf(editgrant.ErrStaleTransition, "transition %s -> %s", t.From, t.To)
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	fields := []string{"status", "approver_id", "approved_at"}
	args := []interface{}{string(t.To)}
	switch t.To {
	case editgrant.StatusApproved:
		at := t.At
		args = append(args, pgUUID(t.ApproverID), pgTime(&at))
	case editgrant.StatusRejected:
		args = append(args, pgUUID(t.ApproverID), pgTime(nil))
	case editgrant.StatusPending:
		fields = append(fields, "expires_at")
		args = append(args, pgUUID(nil), pgTime(nil), pgTime(nil))
	}
	if t.Metadata != nil {
		metadata, err := encodeMetadata(t.Metadata)
		if err != nil {
			return nil, errors.Wrap(err, "encode edit request metadata")
		}
		fields = append(fields, "metadata")
		args = append(args, metadata)
	}

	where := []string{
		fmt.Sprintf("id = $%d", len(args)+1),
		fmt.Sprintf("status = $%d", len(args)+2),
	}
	args = append(args, t.ID, string(t.From))
	if t.RequesterID != nil {
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)+1))
		args = append(args, *t.RequesterID)
	}

	query := repo.Join(repo.Update(editRequestsTable, fields, where...), "RETURNING", editRequestSelect())
	g, err := scanEditRequest(tx.QueryRow(ctx, query, args...))
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "update edit_requests status")
	}
	if _, getErr := r.GetByID(ctx, t.ID); getErr != nil {
		return nil, getErr
	}
	return nil, errors.Wrapf(editgrant.ErrStaleTransition, "edit request %s is no longer %s", t.ID, t.From)
}

func (r *EditGrantRepository) ConsumeByID(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, repo.Join(
		"UPDATE", editRequestsTable, "SET expires_at = $2",
		"WHERE id = $1 AND status = 'approved' AND (expires_at IS NULL OR expires_at > $2)",
	), id, now)
	if err != nil {
		return false, errors.Wrap(err, "consume edit_requests")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EditGrantRepository) Consume(ctx context.Context, q editgrant.ActiveQuery) (*editgrant.EditGrant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	where, args := activeConditions(q)
	query := repo.Join(
		"UPDATE", editRequestsTable, "SET expires_at = $4",
		"WHERE id = (",
		"SELECT id FROM", editRequestsTable, repo.JoinWhere(where...),
		"ORDER BY approved_at DESC NULLS LAST, created_at DESC LIMIT 1 FOR UPDATE",
		")",
		"AND status = 'approved' AND (expires_at IS NULL OR expires_at > $4)",
		"RETURNING", editRequestSelect(),
	)
	g, err := scanEditRequest(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "consume edit_requests")
	}
	return g, nil
}

func (r *EditGrantRepository) Restore(ctx context.Context, id uuid.UUID, consumedAt time.Time) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, repo.Join(
		"UPDATE", editRequestsTable, "SET expires_at = NULL",
		"WHERE id = $1 AND status = 'approved' AND expires_at = $2",
	), id, consumedAt)
	if err != nil {
		return false, errors.Wrap(err, "restore edit_requests")
	}
	return tag.RowsAffected() == 1, nil
}

func buildEditGrantFilters(params *editgrant.FindParams) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	if params == nil {
		return where, args
	}
	if params.Status != "" {
		args = append(args, string(params.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.ResourceType != "" {
		args = append(args, string(params.ResourceType))
		where = append(where, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if params.ResourceID != "" {
		args = append(args, params.ResourceID)
		where = append(where, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	if params.RequesterID != nil {
		args = append(args, *params.RequesterID)
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	return where, args
}

func (r *EditGrantRepository) List(ctx context.Context, params *editgrant.FindParams) ([]*editgrant.EditGrant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	where, args := buildEditGrantFilters(params)
	query := repo.Join(
		"SELECT", editRequestSelect(), "FROM", editRequestsTable,
		repo.JoinWhere(where...),
		"ORDER BY created_at DESC, id",
	)
	if params != nil {
		query = repo.Join(query, repo.FormatLimitOffset(params.Limit, params.Offset))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list edit_requests")
	}
	defer rows.Close()

	var out []*editgrant.EditGrant
	for rows.Next() {
		g, err := scanEditRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan edit_requests")
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate edit_requests")
	}
	return out, nil
}

func (r *EditGrantRepository) Count(ctx context.Context, params *editgrant.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildEditGrantFilters(params)
	var count int64
	if err := tx.QueryRow(ctx, repo.Join(
		"SELECT COUNT(*) FROM", editRequestsTable, repo.JoinWhere(where...),
	), args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count edit_requests")
	}
	return count, nil
}
