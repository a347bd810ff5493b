package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type EditRequest struct {
	ID           uuid.UUID
	RequesterID  uuid.UUID
	ResourceType string
	ResourceID   string
	Reason       string
	Status       string
	ApproverID   pgtype.UUID
	ApprovedAt   pgtype.Timestamptz
	ExpiresAt    pgtype.Timestamptz
	Metadata     []byte
	CreatedAt    time.Time
}

type AuditLog struct {
	ID           uuid.UUID
	Seq          int64
	ActorID      uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	OldValues    []byte
	NewValues    []byte
	Metadata     []byte
	CreatedAt    time.Time
}

type Resource struct {
	ResourceType string
	ResourceID   string
	Fields       []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
