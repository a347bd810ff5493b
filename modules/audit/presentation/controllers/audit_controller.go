package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/backoffice/modules/audit/presentation/controllers/dtos"
	"github.com/iota-uz/backoffice/modules/audit/presentation/mappers"
	"github.com/iota-uz/backoffice/modules/audit/services"
	"github.com/iota-uz/backoffice/pkg/application"
	"github.com/iota-uz/backoffice/pkg/authz"
	"github.com/iota-uz/backoffice/pkg/httpapi"
)

type AuditController struct {
	recorder *services.AuditRecorder
	history  *services.HistoryService
	authz    *authz.Service
	basePath string
}

func NewAuditController(app application.Application) application.Controller {
	return &AuditController{
		recorder: app.Service(services.AuditRecorder{}).(*services.AuditRecorder),
		history:  app.Service(services.HistoryService{}).(*services.HistoryService),
		authz:    app.Service(authz.Service{}).(*authz.Service),
		basePath: "/api/audit",
	}
}

func (c *AuditController) Key() string {
	return c.basePath
}

func (c *AuditController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/entries", c.List).Methods(http.MethodGet)
	router.HandleFunc("/history/{type}/{id}", c.History).Methods(http.MethodGet)
}

func (c *AuditController) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	if !c.authz.Can(r.Context(), actor.Role, authz.ObjectAudit, authz.ActionRead) {
		writeServiceError(w, r, services.ErrPermissionDenied)
		return
	}
	var dto dtos.ListAuditEntriesDTO
	if err := dtos.DecodeQuery(&dto, r.URL.Query()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	q, err := dto.ToQuery()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entries, total, err := c.recorder.List(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, mappers.AuditEntriesToViewModel(entries, total))
}

func (c *AuditController) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	ref, ok := refFromPath(w, r)
	if !ok {
		return
	}
	var dto dtos.HistoryDTO
	if err := dtos.DecodeQuery(&dto, r.URL.Query()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sessions, err := c.history.History(r.Context(), actor, ref, dto.FieldOrder())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteSuccess(w, http.StatusOK, mappers.HistoryToViewModel(ref, sessions))
}
