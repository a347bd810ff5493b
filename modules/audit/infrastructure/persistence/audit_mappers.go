package persistence

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/persistence/models"
)

func pgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil || *id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func asUUIDPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func pgTime(t *time.Time) pgtype.Timestamptz {
	if t == nil || t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func asTimePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// encodeObject renders nil as SQL NULL.
func encodeObject(obj *fieldvalue.Object) ([]byte, error) {
	if obj == nil {
		return nil, nil
	}
	return obj.MarshalJSON()
}

// encodeMetadata renders nil as an empty object.
func encodeMetadata(obj *fieldvalue.Object) ([]byte, error) {
	if obj == nil {
		return []byte("{}"), nil
	}
	return obj.MarshalJSON()
}

func toDomainEditGrant(row *models.EditRequest) (*editgrant.EditGrant, error) {
	status, err := editgrant.ParseStatus(row.Status)
	if err != nil {
		return nil, err
	}
	metadata, err := fieldvalue.ParseObject(row.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "decode edit request metadata")
	}
	if metadata == nil {
		metadata = fieldvalue.NewObject()
	}
	return &editgrant.EditGrant{
		ID:           row.ID,
		RequesterID:  row.RequesterID,
		ResourceType: resource.Type(row.ResourceType),
		ResourceID:   row.ResourceID,
		Reason:       row.Reason,
		Status:       status,
		ApproverID:   asUUIDPtr(row.ApproverID),
		ApprovedAt:   asTimePtr(row.ApprovedAt),
		ExpiresAt:    asTimePtr(row.ExpiresAt),
		Metadata:     metadata,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func toDBEditRequest(g *editgrant.EditGrant) (*models.EditRequest, error) {
	metadata, err := encodeMetadata(g.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "encode edit request metadata")
	}
	return &models.EditRequest{
		ID:           g.ID,
		RequesterID:  g.RequesterID,
		ResourceType: string(g.ResourceType),
		ResourceID:   g.ResourceID,
		Reason:       g.Reason,
		Status:       string(g.Status),
		ApproverID:   pgUUID(g.ApproverID),
		ApprovedAt:   pgTime(g.ApprovedAt),
		ExpiresAt:    pgTime(g.ExpiresAt),
		Metadata:     metadata,
		CreatedAt:    g.CreatedAt,
	}, nil
}

func toDomainAuditEntry(row *models.AuditLog) (*auditentry.AuditEntry, error) {
	action, err := auditentry.ParseAction(row.Action)
	if err != nil {
		return nil, err
	}
	oldValues, err := fieldvalue.ParseObject(row.OldValues)
	if err != nil {
		return nil, errors.Wrap(err, "decode audit old_values")
	}
	newValues, err := fieldvalue.ParseObject(row.NewValues)
	if err != nil {
		return nil, errors.Wrap(err, "decode audit new_values")
	}
	metadata, err := fieldvalue.ParseObject(row.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "decode audit metadata")
	}
	if metadata == nil {
		metadata = fieldvalue.NewObject()
	}
	return &auditentry.AuditEntry{
		ID:           row.ID,
		Seq:          row.Seq,
		ActorID:      row.ActorID,
		Action:       action,
		ResourceType: resource.Type(row.ResourceType),
		ResourceID:   row.ResourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		Metadata:     metadata,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func toDBAuditLog(e *auditentry.AuditEntry) (*models.AuditLog, error) {
	oldValues, err := encodeObject(e.OldValues)
	if err != nil {
		return nil, errors.Wrap(err, "encode audit old_values")
	}
	newValues, err := encodeObject(e.NewValues)
	if err != nil {
		return nil, errors.Wrap(err, "encode audit new_values")
	}
	metadata, err := encodeMetadata(e.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "encode audit metadata")
	}
	return &models.AuditLog{
		ID:           e.ID,
		Seq:          e.Seq,
		ActorID:      e.ActorID,
		Action:       string(e.Action),
		ResourceType: string(e.ResourceType),
		ResourceID:   e.ResourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		Metadata:     metadata,
		CreatedAt:    e.CreatedAt,
	}, nil
}
