package persistence

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
)

const pendingUniqueIndex = "edit_requests_pending_unique"

// mapUniqueViolation turns a violation of the pending-uniqueness index into a conflict.
// The holder is not known from the error alone.
func mapUniqueViolation(err error, g *editgrant.EditGrant) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code == "23505" && pgErr.ConstraintName == pendingUniqueIndex {
		return &editgrant.PendingConflictError{Ref: g.Ref(), HolderID: uuid.Nil}
	}
	return err
}
