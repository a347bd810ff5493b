package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/presentation/controllers/dtos"
	"github.com/iota-uz/backoffice/modules/audit/services"
	"github.com/iota-uz/backoffice/pkg/application"
	"github.com/iota-uz/backoffice/pkg/httpapi"
)

// ResourcesController exposes the gated mutations of tracked records.
type ResourcesController struct {
	gate     *services.MutationGate
	basePath string
}

func NewResourcesController(app application.Application) application.Controller {
	return &ResourcesController{
		gate:     app.Service(services.MutationGate{}).(*services.MutationGate),
		basePath: "/api/resources",
	}
}

func (c *ResourcesController) Key() string {
	return c.basePath
}

func (c *ResourcesController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/{type}/{id}", c.Update).Methods(http.MethodPatch)
	router.HandleFunc("/{type}/{id}", c.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/{type}/{id}/status", c.ChangeStatus).Methods(http.MethodPost)
}

func refFromPath(w http.ResponseWriter, r *http.Request) (resource.Ref, bool) {
	vars := mux.Vars(r)
	dto := dtos.ResourceRefDTO{ResourceType: vars["type"], ResourceID: vars["id"]}
	ref, err := dto.ToRef()
	if err != nil {
		writeServiceError(w, r, err)
		return resource.Ref{}, false
	}
	return ref, true
}

func (c *ResourcesController) Update(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}
	var dto dtos.UpdateResourceDTO
	if err := httpapi.DecodeJSON(r, &dto); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	record, err := c.gate.Update(r.Context(), ref, dto.Changes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, record)
}

func (c *ResourcesController) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}
	var dto dtos.ChangeStatusDTO
	if err := httpapi.DecodeJSON(r, &dto); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	record, err := c.gate.StatusChange(r.Context(), ref, dto.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, record)
}

func (c *ResourcesController) Delete(w http.ResponseWriter, r *http.Request) {
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}
	if err := c.gate.Delete(r.Context(), ref); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, nil)
}
