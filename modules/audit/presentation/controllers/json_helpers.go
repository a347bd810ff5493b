package controllers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/backoffice/modules/audit/services"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/httpapi"
	"github.com/iota-uz/backoffice/pkg/serrors"
	"github.com/iota-uz/backoffice/pkg/types"
)

func statusForKind(kind string) int {
	switch kind {
	case services.CodeUnauthorized:
		return http.StatusUnauthorized
	case services.CodePermissionDenied:
		return http.StatusForbidden
	case services.CodeConflict, services.CodeInvalidTransition:
		return http.StatusConflict
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorMeta(r *http.Request, base *serrors.BaseError) map[string]string {
	meta := map[string]string{}
	if base != nil {
		for k, v := range base.TemplateData {
			meta[k] = v
		}
	}
	if id := composables.UseRequestID(r.Context()); id != "" {
		meta["request_id"] = id
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// writeServiceError maps err onto the error envelope. Internal errors are logged and
// reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.Kind(err)
	if kind == services.CodeInternal {
		composables.UseLogger(r.Context()).WithError(err).Error("request failed")
		_ = httpapi.WriteError(w, http.StatusInternalServerError, services.CodeInternal, "internal error", errorMeta(r, nil))
		return
	}
	message := err.Error()
	var base *serrors.BaseError
	if errors.As(err, &base) {
		message = base.Message
	}
	_ = httpapi.WriteError(w, statusForKind(kind), kind, message, errorMeta(r, base))
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	_ = httpapi.WriteError(w, http.StatusBadRequest, services.CodeValidation, err.Error(), errorMeta(r, nil))
}

func actorFromRequest(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, err := composables.UseActor(r.Context())
	if err != nil {
		writeServiceError(w, r, services.ErrUnauthorized)
		return types.Actor{}, false
	}
	return actor, true
}

func idFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, services.ErrGrantNotFound)
		return uuid.Nil, false
	}
	return id, true
}
