package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/pkg/constants"
	"github.com/iota-uz/backoffice/pkg/serrors"
	"github.com/iota-uz/backoffice/pkg/types"
)

func submitFlight(f *fixture, agent types.Actor, reason string) (*editgrant.EditGrant, error) {
	return f.grantSvc.Submit(as(agent), agent, SubmitParams{
		ResourceType: flight42.Type,
		ResourceID:   flight42.ID,
		Reason:       reason,
	})
}

func TestGrantService_SubmitCreatesPendingWithLabel(t *testing.T) {
	f := newFixture(t)
	g, err := submitFlight(f, f.agentX, "  price correction ")
	require.NoError(t, err)
	require.Equal(t, editgrant.StatusPending, g.Status)
	require.Equal(t, "price correction", g.Reason)
	require.Equal(t, f.agentX.ID, g.RequesterID)
	require.Equal(t, "HY-042", g.DisplayID())
}

func TestGrantService_ResubmitUpdatesInPlace(t *testing.T) {
	f := newFixture(t)
	first, err := submitFlight(f, f.agentX, "price correction")
	require.NoError(t, err)

	second, err := submitFlight(f, f.agentX, "price correction, second try")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "price correction, second try", second.Reason)
	require.False(t, second.CreatedAt.Before(first.CreatedAt))

	n, err := f.grants.Count(context.Background(), &editgrant.FindParams{Status: editgrant.StatusPending})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestGrantService_SubmitConflictNamesHolder(t *testing.T) {
	f := newFixture(t)
	held, err := submitFlight(f, f.agentX, "price correction")
	require.NoError(t, err)

	_, err = submitFlight(f, f.agentY, "mine now")
	require.Equal(t, CodeConflict, Kind(err))
	var base *serrors.BaseError
	require.True(t, errors.As(err, &base))
	require.Equal(t, f.agentX.ID.String(), base.TemplateData["holder"])

	unchanged, err := f.grants.GetByID(context.Background(), held.ID)
	require.NoError(t, err)
	require.Equal(t, "price correction", unchanged.Reason)
	require.Equal(t, f.agentX.ID, unchanged.RequesterID)
}

func TestGrantService_ConcurrentSubmitKeepsOnePending(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	conflicts := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent := types.Actor{ID: uuid.New(), Role: types.RoleAgent}
			_, err := submitFlight(f, agent, "race")
			if Kind(err) == CodeConflict {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 11, conflicts)
	n, err := f.grants.Count(context.Background(), &editgrant.FindParams{Status: editgrant.StatusPending})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestGrantService_SubmitValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		actor  types.Actor
		params SubmitParams
		kind   string
	}{
		{"missing reason", f.agentX, SubmitParams{ResourceType: resource.TypeFlights, ResourceID: "42", Reason: "  "}, CodeValidation},
		{"unknown type", f.agentX, SubmitParams{ResourceType: "boats", ResourceID: "42", Reason: "x"}, CodeValidation},
		{"missing record", f.agentX, SubmitParams{ResourceType: resource.TypeFlights, ResourceID: "404", Reason: "x"}, CodeNotFound},
		{"empty draft", f.agentX, SubmitParams{ResourceType: resource.TypeFlights, ResourceID: "42", Reason: "x", Draft: fv.NewObject()}, CodeValidation},
		{"role without submit right", types.Actor{ID: uuid.New(), Role: "viewer"}, SubmitParams{ResourceType: resource.TypeFlights, ResourceID: "42", Reason: "x"}, CodePermissionDenied},
		{"no actor", types.Actor{}, SubmitParams{ResourceType: resource.TypeFlights, ResourceID: "42", Reason: "x"}, CodeUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.grantSvc.Submit(context.Background(), tc.actor, tc.params)
			require.Equal(t, tc.kind, Kind(err), "err: %v", err)
		})
	}
}

func TestGrantService_ApproveAndRejectRules(t *testing.T) {
	f := newFixture(t)
	g, err := submitFlight(f, f.agentX, "price correction")
	require.NoError(t, err)

	_, err = f.grantSvc.Approve(as(f.agentY), f.agentY, g.ID)
	require.Equal(t, CodePermissionDenied, Kind(err))

	_, err = f.grantSvc.Approve(as(f.admin), f.admin, uuid.New())
	require.Equal(t, CodeNotFound, Kind(err))

	approved, err := f.grantSvc.Approve(as(f.admin), f.admin, g.ID)
	require.NoError(t, err)
	require.Equal(t, editgrant.StatusApproved, approved.Status)
	require.Equal(t, f.admin.ID, *approved.ApproverID)
	require.NotNil(t, approved.ApprovedAt)
	require.Nil(t, approved.ExpiresAt)

	_, err = f.grantSvc.Approve(as(f.admin), f.admin, g.ID)
	require.Equal(t, CodeInvalidTransition, Kind(err))
	_, err = f.grantSvc.Reject(as(f.admin), f.admin, g.ID)
	require.Equal(t, CodeInvalidTransition, Kind(err))

	// Approval without a draft writes nothing.
	require.Empty(t, f.entries(t))
}

func TestGrantService_Reject(t *testing.T) {
	f := newFixture(t)
	g, err := submitFlight(f, f.agentX, "price correction")
	require.NoError(t, err)

	rejected, err := f.grantSvc.Reject(as(f.admin), f.admin, g.ID)
	require.NoError(t, err)
	require.Equal(t, editgrant.StatusRejected, rejected.Status)

	_, err = f.grantSvc.Approve(as(f.admin), f.admin, g.ID)
	require.Equal(t, CodeInvalidTransition, Kind(err))

	// A rejected request frees the record for a new one.
	_, err = submitFlight(f, f.agentY, "another")
	require.NoError(t, err)
	require.Empty(t, f.entries(t))
}

func TestGrantService_Cancel(t *testing.T) {
	f := newFixture(t)
	g, err := submitFlight(f, f.agentX, "price correction")
	require.NoError(t, err)

	_, err = f.grantSvc.Cancel(as(f.agentY), f.agentY, g.ID)
	require.Equal(t, CodePermissionDenied, Kind(err))

	cancelled, err := f.grantSvc.Cancel(as(f.agentX), f.agentX, g.ID)
	require.NoError(t, err)
	require.Equal(t, editgrant.StatusRejected, cancelled.Status)
	flag, ok := cancelled.Metadata.Lookup(editgrant.MetaCancelled).BoolValue()
	require.True(t, ok)
	require.True(t, flag)

	_, err = f.grantSvc.Cancel(as(f.agentX), f.agentX, g.ID)
	require.Equal(t, CodeInvalidTransition, Kind(err))
}

func TestGrantService_ApproveAppliesDraft(t *testing.T) {
	f := newFixture(t)
	draft := fv.NewObject().
		Set("cost", fv.String("125.50")).
		Set("route", fv.ObjectOf(fv.NewObject().Set("from", fv.String("TAS"))))
	g, err := f.grantSvc.Submit(as(f.agentX), f.agentX, SubmitParams{
		ResourceType: flight42.Type,
		ResourceID:   flight42.ID,
		Reason:       "staged price",
		Draft:        draft,
	})
	require.NoError(t, err)

	approved, err := f.grantSvc.Approve(as(f.admin), f.admin, g.ID)
	require.NoError(t, err)
	require.NotNil(t, approved.ExpiresAt, "applied grant is consumed")

	rec, err := f.store.Read(context.Background(), flight42)
	require.NoError(t, err)
	require.Equal(t, "125.50", rec.Lookup("cost").String())
	route, ok := rec.Lookup("route").Object()
	require.True(t, ok)
	require.Equal(t, "TAS", route.Lookup("from").String())

	entries := f.entries(t)
	require.Len(t, entries, 1)
	e := entries[0]
	require.Equal(t, auditentry.ActionApproveEdit, e.Action)
	require.Equal(t, f.admin.ID, e.ActorID)
	require.Equal(t, g.ID.String(), e.RequestID())
	require.Equal(t, "staged price", e.Reason())
	require.Equal(t, "HY-042", e.DisplayID())
	require.Equal(t, []string{"cost", "route"}, e.ChangedKeys())
	require.Equal(t, []resource.Ref{flight42}, f.invalidator.refs)

	// The applied grant does not authorize a further edit.
	_, err = f.gate.Update(as(f.agentX), flight42, fv.NewObject().Set("cost", fv.Int(1)))
	require.Equal(t, CodePermissionDenied, Kind(err))
}

func TestGrantService_ApproveRollsBackWhenDraftCannotBeApplied(t *testing.T) {
	f := newFixture(t)
	g, err := f.grantSvc.Submit(as(f.agentX), f.agentX, SubmitParams{
		ResourceType: flight42.Type,
		ResourceID:   flight42.ID,
		Reason:       "staged price",
		Draft:        fv.NewObject().Set("cost", fv.Int(130)),
	})
	require.NoError(t, err)

	f.store.setFailWrites(true)
	_, err = f.grantSvc.Approve(as(f.admin), f.admin, g.ID)
	require.ErrorIs(t, err, errBroken)

	back, err := f.grants.GetByID(context.Background(), g.ID)
	require.NoError(t, err)
	require.Equal(t, editgrant.StatusPending, back.Status)
	require.Nil(t, back.ApproverID)
	require.Empty(t, f.entries(t))

	f.store.setFailWrites(false)
	_, err = f.grantSvc.Approve(as(f.admin), f.admin, g.ID)
	require.NoError(t, err)
	require.Len(t, f.entries(t), 1)
}

func TestGrantService_ApproveRejectsMalformedDraft(t *testing.T) {
	f := newFixture(t)
	g, err := submitFlight(f, f.agentX, "x")
	require.NoError(t, err)
	meta := g.Metadata.Clone().Set(editgrant.MetaDraft, fv.String("not an object"))
	_, err = f.grants.UpsertPending(context.Background(), &editgrant.EditGrant{
		RequesterID: f.agentX.ID, ResourceType: flight42.Type, ResourceID: flight42.ID,
		Reason: "x", Metadata: meta, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = f.grantSvc.Approve(as(f.admin), f.admin, g.ID)
	require.Equal(t, CodeValidation, Kind(err))
	still, err := f.grants.GetByID(context.Background(), g.ID)
	require.NoError(t, err)
	require.Equal(t, editgrant.StatusPending, still.Status)
}

func TestGrantService_HasActiveGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	attr, ok, err := f.grantSvc.HasActiveGrant(ctx, flight42, f.admin.ID, f.admin.Role)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, constants.AdminDirectRequestID, attr.RequestID)
	require.Equal(t, constants.AdminDirectReason, attr.Reason)
	require.True(t, attr.Direct())

	_, ok, err = f.grantSvc.HasActiveGrant(ctx, flight42, f.agentX.ID, f.agentX.Role)
	require.NoError(t, err)
	require.False(t, ok)

	id := f.approvedGrant(t, f.agentX, "price correction")
	attr, ok, err = f.grantSvc.HasActiveGrant(ctx, flight42, f.agentX.ID, f.agentX.Role)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id.String(), attr.RequestID)
	require.Equal(t, "price correction", attr.Reason)

	// Grants are personal.
	_, ok, err = f.grantSvc.HasActiveGrant(ctx, flight42, f.agentY.ID, f.agentY.Role)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantService_ConsumeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.approvedGrant(t, f.agentX, "price correction")

	g, err := f.grantSvc.Consume(ctx, flight42, f.agentX.ID)
	require.NoError(t, err)
	require.Equal(t, id, g.ID)

	g, err = f.grantSvc.Consume(ctx, flight42, f.agentX.ID)
	require.NoError(t, err)
	require.Nil(t, g)

	_, ok, err := f.grantSvc.HasActiveGrant(ctx, flight42, f.agentX.ID, f.agentX.Role)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantService_TTLExpiresApprovedGrants(t *testing.T) {
	f := newFixture(t, func(o *fixtureOptions) { o.ttl = time.Hour })
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.grantSvc.now = func() time.Time { return base }
	f.approvedGrant(t, f.agentX, "price correction")

	f.grantSvc.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, ok, err := f.grantSvc.HasActiveGrant(ctx, flight42, f.agentX.ID, f.agentX.Role)
	require.NoError(t, err)
	require.True(t, ok)

	f.grantSvc.now = func() time.Time { return base.Add(time.Hour) }
	_, ok, err = f.grantSvc.HasActiveGrant(ctx, flight42, f.agentX.ID, f.agentX.Role)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantService_ListAndGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, resource.Ref{Type: resource.TypeParcels, ID: "7"}, fv.NewObject().Set("weight", fv.Int(3))))

	mine, err := submitFlight(f, f.agentX, "price correction")
	require.NoError(t, err)
	theirs, err := f.grantSvc.Submit(as(f.agentY), f.agentY, SubmitParams{
		ResourceType: resource.TypeParcels, ResourceID: "7", Reason: "weight",
	})
	require.NoError(t, err)

	grants, total, err := f.grantSvc.List(ctx, f.agentX, ListGrantsParams{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, mine.ID, grants[0].ID)

	grants, total, err = f.grantSvc.List(ctx, f.admin, ListGrantsParams{Status: editgrant.StatusPending})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, grants, 2)

	_, _, err = f.grantSvc.List(ctx, f.admin, ListGrantsParams{Status: "archived"})
	require.Equal(t, CodeValidation, Kind(err))

	_, err = f.grantSvc.Get(ctx, f.agentX, theirs.ID)
	require.Equal(t, CodeNotFound, Kind(err))
	got, err := f.grantSvc.Get(ctx, f.admin, theirs.ID)
	require.NoError(t, err)
	require.Equal(t, resource.TypeParcels, got.ResourceType)
}
