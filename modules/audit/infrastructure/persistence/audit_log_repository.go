package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/persistence/models"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/repo"
)

const auditLogsTable = "audit_logs"

var auditLogColumns = []string{
	"id",
	"seq",
	"actor_id",
	"action",
	"resource_type",
	"resource_id",
	"old_values",
	"new_values",
	"metadata",
	"created_at",
}

type AuditLogRepository struct{}

func NewAuditLogRepository() auditentry.Repository {
	return &AuditLogRepository{}
}

func scanAuditLog(row pgx.Row) (*auditentry.AuditEntry, error) {
	var m models.AuditLog
	if err := row.Scan(
		&m.ID,
		&m.Seq,
		&m.ActorID,
		&m.Action,
		&m.ResourceType,
		&m.ResourceID,
		&m.OldValues,
		&m.NewValues,
		&m.Metadata,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return toDomainAuditEntry(&m)
}

func (r *AuditLogRepository) Create(ctx context.Context, e *auditentry.AuditEntry) error {
	if !e.Action.Valid() {
		return errors.Errorf("invalid audit action %q", e.Action)
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	row, err := toDBAuditLog(e)
	if err != nil {
		return err
	}

	query := repo.Insert(auditLogsTable, []string{
		"id", "actor_id", "action", "resource_type", "resource_id", "old_values", "new_values", "metadata", "created_at",
	}, "seq")
	if err := tx.QueryRow(ctx, query,
		row.ID,
		row.ActorID,
		row.Action,
		row.ResourceType,
		row.ResourceID,
		row.OldValues,
		row.NewValues,
		row.Metadata,
		row.CreatedAt,
	).Scan(&e.Seq); err != nil {
		return errors.Wrap(err, "insert audit_logs")
	}
	return nil
}

func buildAuditLogFilters(params *auditentry.FindParams) ([]string, []interface{}) {
	var where []string
	var args []interface{}
	if params == nil {
		return where, args
	}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if params.ResourceType != "" {
		add("resource_type = $%d", string(params.ResourceType))
	}
	if params.ResourceID != "" {
		add("resource_id = $%d", params.ResourceID)
	}
	if params.ActorID != nil {
		add("actor_id = $%d", *params.ActorID)
	}
	if params.Action != "" {
		add("action = $%d", string(params.Action))
	}
	if requestID := strings.TrimSpace(params.RequestID); requestID != "" {
		add("metadata->>'request_id' = $%d", requestID)
	}
	if displayID := strings.TrimSpace(params.DisplayID); displayID != "" {
		add("metadata->>'display_id' ILIKE $%d", "%"+displayID+"%")
	}
	if params.From != nil && !params.From.IsZero() {
		add("created_at >= $%d", *params.From)
	}
	if params.To != nil && !params.To.IsZero() {
		add("created_at <= $%d", *params.To)
	}
	return where, args
}

func (r *AuditLogRepository) List(ctx context.Context, params *auditentry.FindParams) ([]*auditentry.AuditEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	where, args := buildAuditLogFilters(params)
	order := "ORDER BY created_at DESC, seq DESC"
	if params != nil && params.Ascending {
		order = "ORDER BY created_at ASC, seq ASC"
	}
	query := repo.Join(
		"SELECT", strings.Join(auditLogColumns, ", "), "FROM", auditLogsTable,
		repo.JoinWhere(where...),
		order,
	)
	if params != nil {
		query = repo.Join(query, repo.FormatLimitOffset(params.Limit, params.Offset))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list audit_logs")
	}
	defer rows.Close()

	var out []*auditentry.AuditEntry
	for rows.Next() {
		e, err := scanAuditLog(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan audit_logs")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate audit_logs")
	}
	return out, nil
}

func (r *AuditLogRepository) Count(ctx context.Context, params *auditentry.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildAuditLogFilters(params)
	var count int64
	if err := tx.QueryRow(ctx, repo.Join(
		"SELECT COUNT(*) FROM", auditLogsTable, repo.JoinWhere(where...),
	), args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count audit_logs")
	}
	return count, nil
}
