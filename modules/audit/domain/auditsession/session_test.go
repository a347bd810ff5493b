package auditsession

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/pkg/constants"
)

var base = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func entry(seq int, requestID string, oldValues, newValues *fv.Object) *auditentry.AuditEntry {
	return &auditentry.AuditEntry{
		ID:           uuid.New(),
		Seq:          int64(seq),
		ActorID:      uuid.MustParse("00000000-0000-0000-0000-00000000000a"),
		Action:       auditentry.ActionUpdate,
		ResourceType: resource.TypeFlights,
		ResourceID:   "42",
		OldValues:    oldValues,
		NewValues:    newValues,
		Metadata:     fv.NewObject().Set(auditentry.MetaRequestID, fv.String(requestID)),
		CreatedAt:    base.Add(time.Duration(seq) * time.Minute),
	}
}

func cost(v any) *fv.Object {
	return fv.NewObject().Set("cost", fv.Must(v))
}

func TestGroup_AdminDirectNeverMerges(t *testing.T) {
	a := entry(1, "R1", cost(100), cost(110))
	b := entry(2, "R1", cost(110), cost(120))
	c := entry(3, constants.AdminDirectRequestID, cost(120), cost(130))
	d := entry(4, "R1", cost(130), cost(140))

	sessions := Group([]*auditentry.AuditEntry{a, b, c, d})
	require.Len(t, sessions, 3)
	require.Equal(t, []*auditentry.AuditEntry{a, b}, sessions[0].Entries)
	require.Equal(t, []*auditentry.AuditEntry{c}, sessions[1].Entries)
	require.Equal(t, []*auditentry.AuditEntry{d}, sessions[2].Entries)
}

func TestGroup_ConsecutiveAdminDirectStaySeparate(t *testing.T) {
	a := entry(1, constants.AdminDirectRequestID, cost(1), cost(2))
	b := entry(2, constants.AdminDirectRequestID, cost(2), cost(3))
	c := entry(3, "", cost(3), cost(4))
	d := entry(4, "", cost(4), cost(5))
	require.Len(t, Group([]*auditentry.AuditEntry{a, b, c, d}), 4)
}

func TestGroup_DifferentRecordsDoNotMerge(t *testing.T) {
	a := entry(1, "R1", cost(1), cost(2))
	b := entry(2, "R1", cost(2), cost(3))
	b.ResourceID = "43"
	require.Len(t, Group([]*auditentry.AuditEntry{a, b}), 2)
}

func TestGroup_Empty(t *testing.T) {
	require.Empty(t, Group(nil))
}

func TestSessionDiff_NetChange(t *testing.T) {
	a := entry(1, "R1", cost(100), cost(110))
	b := entry(2, "R1", cost(110), cost(120))

	sessions := Group([]*auditentry.AuditEntry{a, b})
	require.Len(t, sessions, 1)
	s := sessions[0]
	require.Equal(t, a.CreatedAt, s.StartedAt)
	require.Equal(t, b.CreatedAt, s.EndedAt)

	changes := s.Diff(DefaultOptions())
	require.Len(t, changes, 1)
	require.Equal(t, "cost", changes[0].Key)
	require.Equal(t, "100", changes[0].Old.String())
	require.Equal(t, "120", changes[0].New.String())
}

func TestSessionDiff_Deleted(t *testing.T) {
	e := entry(1, constants.AdminDirectRequestID,
		fv.NewObject().Set("id", fv.String("42")).Set("cost", fv.Int(100)).Set("note", fv.String("")), nil)
	e.Action = auditentry.ActionDelete

	changes := Group([]*auditentry.AuditEntry{e})[0].Diff(DefaultOptions())
	require.Len(t, changes, 1)
	require.Equal(t, "cost", changes[0].Key)
	require.True(t, changes[0].New.IsNull())
}
