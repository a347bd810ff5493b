package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/presentation/controllers/dtos"
	"github.com/iota-uz/backoffice/modules/audit/presentation/mappers"
	"github.com/iota-uz/backoffice/modules/audit/services"
	"github.com/iota-uz/backoffice/pkg/application"
	"github.com/iota-uz/backoffice/pkg/httpapi"
	"github.com/iota-uz/backoffice/pkg/types"
)

type transitionFunc func(ctx context.Context, actor types.Actor, id uuid.UUID) (*editgrant.EditGrant, error)

type EditGrantsController struct {
	grants   *services.GrantService
	basePath string
}

func NewEditGrantsController(app application.Application) application.Controller {
	return &EditGrantsController{
		grants:   app.Service(services.GrantService{}).(*services.GrantService),
		basePath: "/api/edit-grants",
	}
}

func (c *EditGrantsController) Key() string {
	return c.basePath
}

func (c *EditGrantsController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.Submit).Methods(http.MethodPost)
	router.HandleFunc("", c.List).Methods(http.MethodGet)
	router.HandleFunc("/active", c.Active).Methods(http.MethodGet)
	router.HandleFunc("/consume", c.Consume).Methods(http.MethodPost)
	router.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
	router.HandleFunc("/{id}/approve", c.Approve).Methods(http.MethodPost)
	router.HandleFunc("/{id}/reject", c.Reject).Methods(http.MethodPost)
	router.HandleFunc("/{id}/cancel", c.Cancel).Methods(http.MethodPost)
}

func (c *EditGrantsController) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var dto dtos.SubmitEditGrantDTO
	if err := httpapi.DecodeJSON(r, &dto); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	g, err := c.grants.Submit(r.Context(), actor, dto.ToParams())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusCreated, mappers.EditGrantToViewModel(g))
}

func (c *EditGrantsController) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var dto dtos.ListEditGrantsDTO
	if err := dtos.DecodeQuery(&dto, r.URL.Query()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	params, err := dto.ToParams()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	grants, total, err := c.grants.List(r.Context(), actor, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, mappers.EditGrantsToViewModel(grants, total))
}

// Active reports whether the caller may currently mutate the record and under
// which attribution.
func (c *EditGrantsController) Active(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var dto dtos.ResourceRefDTO
	if err := dtos.DecodeQuery(&dto, r.URL.Query()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	ref, err := dto.ToRef()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	attribution, active, err := c.grants.HasActiveGrant(r.Context(), ref, actor.ID, actor.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, mappers.AttributionToViewModel(attribution, active))
}

// Consume burns the caller's active grant for a record. Nothing to consume is not an error.
func (c *EditGrantsController) Consume(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	var dto dtos.ResourceRefDTO
	if err := httpapi.DecodeJSON(r, &dto); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	ref, err := dto.ToRef()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	g, err := c.grants.Consume(r.Context(), ref, actor.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if g == nil {
		_ = httpapi.WriteSuccess(w, http.StatusOK, nil)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, mappers.EditGrantToViewModel(g))
}

func (c *EditGrantsController) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := idFromPath(w, r)
	if !ok {
		return
	}
	g, err := c.grants.Get(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, mappers.EditGrantToViewModel(g))
}

func (c *EditGrantsController) Approve(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.grants.Approve)
}

func (c *EditGrantsController) Reject(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.grants.Reject)
}

func (c *EditGrantsController) Cancel(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.grants.Cancel)
}

func (c *EditGrantsController) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	id, ok := idFromPath(w, r)
	if !ok {
		return
	}
	g, err := fn(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, mappers.EditGrantToViewModel(g))
}
