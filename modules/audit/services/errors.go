package services

import (
	"errors"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/pkg/authz"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/constants"
	"github.com/iota-uz/backoffice/pkg/serrors"
)

// Error codes surfaced to API callers.
const (
	CodeUnauthorized      = "UNAUTHORIZED"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeConflict          = "CONFLICT"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInternal          = "INTERNAL"
)

var (
	ErrUnauthorized     = serrors.NewError(CodeUnauthorized, "no authenticated actor", "Errors.Unauthorized")
	ErrPermissionDenied = serrors.NewError(CodePermissionDenied, "permission denied", "Authorization.PermissionDenied")
	// ErrNoActiveGrant shares the PermissionDenied code.
	ErrNoActiveGrant    = serrors.NewError(CodePermissionDenied, "no approved edit request for this record", "EditGrants.NoActiveGrant")
	ErrGrantNotFound    = serrors.NewError(CodeNotFound, "edit request not found", "EditGrants.NotFound")
	ErrResourceNotFound = serrors.NewError(CodeNotFound, "record not found", "Resources.NotFound")
	ErrNotPending       = serrors.NewError(CodeInvalidTransition, "edit request is no longer pending", "EditGrants.NotPending")
	ErrEmptyPatch       = serrors.NewError(CodeValidation, "no fields to change", "Resources.EmptyPatch")
)

func conflictError(e *editgrant.PendingConflictError) *serrors.BaseError {
	return serrors.NewError(CodeConflict, "another agent already has a pending edit request for this record", "EditGrants.Conflict").
		WithTemplateData(map[string]string{
			"resource": e.Ref.String(),
			"holder":   e.HolderID.String(),
		})
}

func validationError(errs serrors.ValidationErrors) *serrors.BaseError {
	return serrors.NewError(CodeValidation, errs.String(), "Errors.Validation").WithTemplateData(errs)
}

func invalidPayload(msg string) *serrors.BaseError {
	return serrors.NewError(CodeValidation, msg, "Errors.Validation")
}

// validate runs the shared validator and converts field failures into a ValidationError.
func validate(v any) error {
	verrs, err := serrors.FromValidate(constants.Validate.Struct(v))
	if err != nil {
		return err
	}
	if len(verrs) > 0 {
		return validationError(verrs)
	}
	return nil
}

// Kind classifies err into one of the error codes. It returns "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var base *serrors.BaseError
	if errors.As(err, &base) {
		switch base.Code {
		case CodeUnauthorized, CodePermissionDenied, CodeConflict, CodeNotFound, CodeValidation, CodeInvalidTransition:
			return base.Code
		case authz.ErrorCodeForbidden:
			return CodePermissionDenied
		}
	}
	var conflict *editgrant.PendingConflictError
	switch {
	case errors.As(err, &conflict):
		return CodeConflict
	case errors.Is(err, composables.ErrNoActor):
		return CodeUnauthorized
	case errors.Is(err, editgrant.ErrEditGrantNotFound), errors.Is(err, resource.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, editgrant.ErrStaleTransition):
		return CodeInvalidTransition
	case errors.Is(err, resource.ErrUnknownType):
		return CodeValidation
	}
	return CodeInternal
}

// IsConflictClass reports whether the kind describes a state conflict.
func IsConflictClass(kind string) bool {
	return kind == CodeConflict || kind == CodeInvalidTransition
}
