package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/persistence"
	"github.com/iota-uz/backoffice/pkg/authz"
	"github.com/iota-uz/backoffice/pkg/composables"
	"github.com/iota-uz/backoffice/pkg/types"
)

var (
	flight42  = resource.Ref{Type: resource.TypeFlights, ID: "42"}
	errBroken = errors.New("storage unavailable")
)

// flakyStore fails writes while failWrites is set.
type flakyStore struct {
	*persistence.MemoryResourceStore
	mu         sync.Mutex
	failWrites bool
}

func (s *flakyStore) setFailWrites(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = v
}

func (s *flakyStore) Write(ctx context.Context, ref resource.Ref, patch *fv.Object) (*fv.Object, error) {
	s.mu.Lock()
	fail := s.failWrites
	s.mu.Unlock()
	if fail {
		return nil, errBroken
	}
	return s.MemoryResourceStore.Write(ctx, ref, patch)
}

// failingAudit rejects every write.
type failingAudit struct {
	auditentry.Repository
}

func (failingAudit) Create(context.Context, *auditentry.AuditEntry) error {
	return errBroken
}

// recordingInvalidator collects invalidated refs.
type recordingInvalidator struct {
	mu   sync.Mutex
	refs []resource.Ref
}

func (r *recordingInvalidator) Invalidate(_ context.Context, ref resource.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
}

type fixture struct {
	grants      *persistence.InmemEditGrantRepository
	audit       auditentry.Repository
	store       *flakyStore
	invalidator *recordingInvalidator
	recorder    *AuditRecorder
	grantSvc    *GrantService
	gate        *MutationGate
	history     *HistoryService

	agentX types.Actor
	agentY types.Actor
	admin  types.Actor
}

type fixtureOptions struct {
	ttl     time.Duration
	restore bool
	audit   auditentry.Repository
}

func newFixture(t *testing.T, opts ...func(*fixtureOptions)) *fixture {
	t.Helper()
	o := fixtureOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	authzService, err := authz.NewService(authz.Config{})
	require.NoError(t, err)

	f := &fixture{
		grants:      persistence.NewInmemEditGrantRepository(),
		audit:       o.audit,
		store:       &flakyStore{MemoryResourceStore: persistence.NewMemoryResourceStore()},
		invalidator: &recordingInvalidator{},
		agentX:      types.Actor{ID: uuid.New(), Role: types.RoleAgent},
		agentY:      types.Actor{ID: uuid.New(), Role: types.RoleAgent},
		admin:       types.Actor{ID: uuid.New(), Role: types.RoleAdmin},
	}
	if f.audit == nil {
		f.audit = persistence.NewInmemAuditLogRepository()
	}
	labeler := resource.FieldLabeler{Fields: []string{"flight_number"}}
	f.recorder = NewAuditRecorder(f.audit)
	f.grantSvc = NewGrantService(f.grants, f.recorder, f.store, authzService, GrantOptions{
		TTL:         o.ttl,
		Labeler:     labeler,
		Invalidator: f.invalidator,
	})
	f.gate = NewMutationGate(ContextActors{}, authzService, f.grantSvc, f.recorder, f.store, GateOptions{
		RestoreOnWriteFailure: o.restore,
		Labeler:               labeler,
		Invalidator:           f.invalidator,
	})
	f.history = NewHistoryService(f.audit, authzService)

	require.NoError(t, f.store.Put(context.Background(), flight42, fv.NewObject().
		Set("id", fv.String("42")).
		Set("flight_number", fv.String("HY-042")).
		Set("cost", fv.Number(decimal.RequireFromString("100.00"))).
		Set("status", fv.String("booked"))))
	return f
}

func as(actor types.Actor) context.Context {
	return composables.WithActor(context.Background(), actor)
}

// approvedGrant walks a fresh request by agent through approval.
func (f *fixture) approvedGrant(t *testing.T, agent types.Actor, reason string) uuid.UUID {
	t.Helper()
	g, err := f.grantSvc.Submit(as(agent), agent, SubmitParams{
		ResourceType: flight42.Type,
		ResourceID:   flight42.ID,
		Reason:       reason,
	})
	require.NoError(t, err)
	_, err = f.grantSvc.Approve(as(f.admin), f.admin, g.ID)
	require.NoError(t, err)
	return g.ID
}

func (f *fixture) entries(t *testing.T) []*auditentry.AuditEntry {
	t.Helper()
	entries, err := f.audit.List(context.Background(), &auditentry.FindParams{
		ResourceType: flight42.Type, ResourceID: flight42.ID, Ascending: true,
	})
	require.NoError(t, err)
	return entries
}
