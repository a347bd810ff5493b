package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/backoffice/modules/audit"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/persistence"
	"github.com/iota-uz/backoffice/pkg/application"
	"github.com/iota-uz/backoffice/pkg/middleware"
	"github.com/iota-uz/backoffice/pkg/server"
	"github.com/iota-uz/backoffice/pkg/types"
)

type apiFixture struct {
	handler http.Handler
	agentX  types.Actor
	agentY  types.Actor
	admin   types.Actor
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := persistence.NewMemoryResourceStore()
	require.NoError(t, store.Put(context.Background(), resource.Ref{Type: resource.TypeFlights, ID: "42"}, fv.NewObject().
		Set("id", fv.String("42")).
		Set("flight_number", fv.String("HY-042")).
		Set("cost", fv.String("100.00")).
		Set("status", fv.String("booked"))))

	app := application.New(&application.ApplicationOptions{Logger: logger})
	require.NoError(t, application.Load(app, audit.NewModule(&audit.ModuleOptions{Store: store})))
	app.RegisterMiddleware(
		middleware.WithLogger(logger, middleware.NewLoggerOptions(false, false, 0)),
		middleware.WithActor("", ""),
	)

	return &apiFixture{
		handler: server.NewHTTPServer(app, nil, nil).Router(),
		agentX:  types.Actor{ID: uuid.New(), Role: types.RoleAgent},
		agentY:  types.Actor{ID: uuid.New(), Role: types.RoleAgent},
		admin:   types.Actor{ID: uuid.New(), Role: types.RoleAdmin},
	}
}

type response struct {
	Status  int
	Success bool
	Data    json.RawMessage
	Error   string
	Code    string
	Meta    map[string]string
}

func (f *apiFixture) do(t *testing.T, actor *types.Actor, method, path string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewBufferString(raw)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "test-request")
	if actor != nil {
		req.Header.Set("X-Actor-ID", actor.ID.String())
		req.Header.Set("X-Actor-Role", string(actor.Role))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out struct {
		Success bool              `json:"success"`
		Data    json.RawMessage   `json:"data"`
		Error   string            `json:"error"`
		Code    string            `json:"code"`
		Meta    map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return response{Status: rec.Code, Success: out.Success, Data: out.Data, Error: out.Error, Code: out.Code, Meta: out.Meta}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type grantVM struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	DisplayID  string `json:"display_id"`
	ApproverID string `json:"approver_id"`
}

func (f *apiFixture) submit(t *testing.T, actor types.Actor, reason string) response {
	t.Helper()
	return f.do(t, &actor, http.MethodPost, "/api/edit-grants", map[string]any{
		"resource_type": "flights",
		"resource_id":   "42",
		"reason":        reason,
	})
}

func TestEditFlow_SingleUseGrant(t *testing.T) {
	f := newAPIFixture(t)

	res := f.submit(t, f.agentX, "price correction")
	require.Equal(t, http.StatusCreated, res.Status)
	require.True(t, res.Success)
	g := decode[grantVM](t, res.Data)
	require.Equal(t, "pending", g.Status)
	require.Equal(t, "HY-042", g.DisplayID)

	res = f.do(t, &f.agentX, http.MethodGet, "/api/edit-grants/active?resource_type=flights&resource_id=42", nil)
	require.Equal(t, http.StatusOK, res.Status)
	require.JSONEq(t, `{"active":false}`, string(res.Data))

	res = f.do(t, &f.admin, http.MethodPost, "/api/edit-grants/"+g.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, res.Status)
	approved := decode[grantVM](t, res.Data)
	require.Equal(t, "approved", approved.Status)
	require.Equal(t, f.admin.ID.String(), approved.ApproverID)

	res = f.do(t, &f.agentX, http.MethodGet, "/api/edit-grants/active?resource_type=flights&resource_id=42", nil)
	active := decode[map[string]any](t, res.Data)
	require.Equal(t, true, active["active"])
	require.Equal(t, g.ID, active["request_id"])

	res = f.do(t, &f.agentX, http.MethodPatch, "/api/resources/flights/42", map[string]any{
		"changes": map[string]any{"cost": "110.00"},
	})
	require.Equal(t, http.StatusOK, res.Status)
	record := decode[map[string]any](t, res.Data)
	require.Equal(t, "110.00", record["cost"])

	res = f.do(t, &f.agentX, http.MethodPatch, "/api/resources/flights/42", map[string]any{
		"changes": map[string]any{"cost": "120.00"},
	})
	require.Equal(t, http.StatusForbidden, res.Status)
	require.Equal(t, "PERMISSION_DENIED", res.Code)
	require.Equal(t, "test-request", res.Meta["request_id"])

	res = f.do(t, &f.admin, http.MethodGet, "/api/audit/history/flights/42?fields=status,cost", nil)
	require.Equal(t, http.StatusOK, res.Status)
	history := decode[struct {
		Sessions []struct {
			RequestID string `json:"request_id"`
			Changes   []struct {
				Key string `json:"key"`
				Old any    `json:"old"`
				New any    `json:"new"`
			} `json:"changes"`
		} `json:"sessions"`
	}](t, res.Data)
	require.Len(t, history.Sessions, 1)
	require.Equal(t, g.ID, history.Sessions[0].RequestID)
	require.Len(t, history.Sessions[0].Changes, 1)
	require.Equal(t, "cost", history.Sessions[0].Changes[0].Key)
	require.Equal(t, "100.00", history.Sessions[0].Changes[0].Old)
	require.Equal(t, "110.00", history.Sessions[0].Changes[0].New)

	res = f.do(t, &f.admin, http.MethodGet, "/api/audit/entries?resource_type=flights&resource_id=42", nil)
	require.Equal(t, http.StatusOK, res.Status)
	entries := decode[struct {
		Total int64 `json:"total"`
	}](t, res.Data)
	require.Equal(t, int64(1), entries.Total)
}

func TestSubmit_ConflictNamesHolder(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusCreated, f.submit(t, f.agentX, "mine").Status)

	res := f.submit(t, f.agentY, "also mine")
	require.Equal(t, http.StatusConflict, res.Status)
	require.Equal(t, "CONFLICT", res.Code)
	require.Equal(t, f.agentX.ID.String(), res.Meta["holder"])
}

func TestTransitions_OnlyFromPending(t *testing.T) {
	f := newAPIFixture(t)
	g := decode[grantVM](t, f.submit(t, f.agentX, "fix").Data)

	res := f.do(t, &f.agentX, http.MethodPost, "/api/edit-grants/"+g.ID+"/approve", nil)
	require.Equal(t, http.StatusForbidden, res.Status)

	res = f.do(t, &f.admin, http.MethodPost, "/api/edit-grants/"+g.ID+"/reject", nil)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, "rejected", decode[grantVM](t, res.Data).Status)

	res = f.do(t, &f.admin, http.MethodPost, "/api/edit-grants/"+g.ID+"/approve", nil)
	require.Equal(t, http.StatusConflict, res.Status)
	require.Equal(t, "INVALID_TRANSITION", res.Code)

	res = f.do(t, &f.admin, http.MethodPost, "/api/edit-grants/"+uuid.NewString()+"/approve", nil)
	require.Equal(t, http.StatusNotFound, res.Status)

	res = f.do(t, &f.admin, http.MethodGet, "/api/edit-grants/not-a-uuid", nil)
	require.Equal(t, http.StatusNotFound, res.Status)
}

func TestCancel_OwnPendingOnly(t *testing.T) {
	f := newAPIFixture(t)
	g := decode[grantVM](t, f.submit(t, f.agentX, "fix").Data)

	res := f.do(t, &f.agentY, http.MethodPost, "/api/edit-grants/"+g.ID+"/cancel", nil)
	require.Equal(t, http.StatusForbidden, res.Status)

	res = f.do(t, &f.agentX, http.MethodPost, "/api/edit-grants/"+g.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, "rejected", decode[grantVM](t, res.Data).Status)
}

func TestListGrants_AgentsSeeOnlyTheirOwn(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusCreated, f.submit(t, f.agentX, "fix").Status)

	res := f.do(t, &f.agentY, http.MethodGet, "/api/edit-grants?status=pending", nil)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, float64(0), decode[map[string]any](t, res.Data)["total"])

	res = f.do(t, &f.admin, http.MethodGet, "/api/edit-grants?status=pending&resource_type=flights", nil)
	require.Equal(t, float64(1), decode[map[string]any](t, res.Data)["total"])

	res = f.do(t, &f.admin, http.MethodGet, "/api/edit-grants?requester_id=nope", nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Status)

	res = f.do(t, &f.admin, http.MethodGet, "/api/edit-grants?status=archived", nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Status)
}

func TestConsume_IsIdempotent(t *testing.T) {
	f := newAPIFixture(t)
	g := decode[grantVM](t, f.submit(t, f.agentX, "fix").Data)
	require.Equal(t, http.StatusOK, f.do(t, &f.admin, http.MethodPost, "/api/edit-grants/"+g.ID+"/approve", nil).Status)

	body := map[string]string{"resource_type": "flights", "resource_id": "42"}
	res := f.do(t, &f.agentX, http.MethodPost, "/api/edit-grants/consume", body)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, g.ID, decode[grantVM](t, res.Data).ID)

	res = f.do(t, &f.agentX, http.MethodPost, "/api/edit-grants/consume", body)
	require.Equal(t, http.StatusOK, res.Status)
	require.True(t, res.Success)
	require.Empty(t, res.Data)
}

func TestResources_ElevatedAndDeleteRules(t *testing.T) {
	f := newAPIFixture(t)

	res := f.do(t, &f.agentX, http.MethodDelete, "/api/resources/flights/42", nil)
	require.Equal(t, http.StatusForbidden, res.Status)

	res = f.do(t, &f.admin, http.MethodPost, "/api/resources/flights/42/status", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, "cancelled", decode[map[string]any](t, res.Data)["status"])

	res = f.do(t, &f.admin, http.MethodGet, "/api/audit/entries?request_id=admin_direct", nil)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, float64(1), decode[map[string]any](t, res.Data)["total"])

	res = f.do(t, &f.admin, http.MethodDelete, "/api/resources/flights/42", nil)
	require.Equal(t, http.StatusOK, res.Status)

	res = f.do(t, &f.admin, http.MethodPatch, "/api/resources/flights/42", map[string]any{"changes": map[string]any{"cost": 1}})
	require.Equal(t, http.StatusNotFound, res.Status)
}

func TestRequestErrors(t *testing.T) {
	f := newAPIFixture(t)

	res := f.do(t, nil, http.MethodPost, "/api/edit-grants", map[string]any{"resource_type": "flights"})
	require.Equal(t, http.StatusUnauthorized, res.Status)
	require.Equal(t, "UNAUTHORIZED", res.Code)

	res = f.do(t, &f.agentX, http.MethodPost, "/api/edit-grants", `{"reason":`)
	require.Equal(t, http.StatusBadRequest, res.Status)

	res = f.do(t, &f.agentX, http.MethodPost, "/api/edit-grants", map[string]any{
		"resource_type": "flights", "resource_id": "42", "reason": "",
	})
	require.Equal(t, http.StatusUnprocessableEntity, res.Status)
	require.Equal(t, "VALIDATION_ERROR", res.Code)

	res = f.do(t, &f.admin, http.MethodPatch, "/api/resources/hotels/1", map[string]any{"changes": map[string]any{"a": 1}})
	require.Equal(t, http.StatusUnprocessableEntity, res.Status)

	res = f.do(t, &f.admin, http.MethodPatch, "/api/resources/flights/42", map[string]any{"changes": map[string]any{}})
	require.Equal(t, http.StatusUnprocessableEntity, res.Status)

	guest := types.Actor{ID: uuid.New(), Role: "guest"}
	res = f.do(t, &guest, http.MethodGet, "/api/audit/entries", nil)
	require.Equal(t, http.StatusForbidden, res.Status)

	res = f.do(t, &f.admin, http.MethodGet, "/api/audit/entries?from=yesterday", nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.Status)
}
