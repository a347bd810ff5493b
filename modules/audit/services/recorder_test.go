package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/persistence"
)

func TestAuditRecorder_RecordBuildsMetadata(t *testing.T) {
	repo := persistence.NewInmemAuditLogRepository()
	r := NewAuditRecorder(repo)
	actor := uuid.New()

	e, err := r.Record(context.Background(), RecordParams{
		ActorID:      actor,
		Action:       auditentry.ActionUpdate,
		ResourceType: resource.TypeTransfers,
		ResourceID:   "t-9",
		OldValues:    fv.NewObject().Set("driver", fv.String("Ann")).Set("api_token", fv.String("abc")),
		NewValues: fv.NewObject().Set("driver", fv.String("Bob")).Set("api_token", fv.String("xyz")).
			Set("updated_at", fv.String("2026-01-01T00:00:00Z")),
		Attribution: Attribution{RequestID: "R1", Reason: "swap driver", DisplayID: "TR-9"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), e.Seq)
	require.Equal(t, "R1", e.RequestID())
	require.Equal(t, "swap driver", e.Reason())
	require.Equal(t, "TR-9", e.DisplayID())
	require.Equal(t, []string{"driver"}, e.ChangedKeys())
	require.Equal(t, redactedValue, e.OldValues.Lookup("api_token").String())
	require.Equal(t, redactedValue, e.NewValues.Lookup("api_token").String())

	patch, err := e.Metadata.Lookup(auditentry.MetaPatch).MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `[
		{"op":"replace","path":"/driver","value":"Bob"},
		{"op":"add","path":"/updated_at","value":"2026-01-01T00:00:00Z"}
	]`, string(patch))
}

func TestAuditRecorder_RedactsNestedSecrets(t *testing.T) {
	r := NewAuditRecorder(persistence.NewInmemAuditLogRepository())
	inner := fv.NewObject().Set("Password", fv.String("p")).Set("name", fv.String("n"))
	e, err := r.Record(context.Background(), RecordParams{
		ActorID:      uuid.New(),
		Action:       auditentry.ActionCreate,
		ResourceType: resource.TypeOtherServices,
		ResourceID:   "1",
		NewValues:    fv.NewObject().Set("accounts", fv.Array(fv.ObjectOf(inner))),
		Attribution:  DirectAttribution(),
	})
	require.NoError(t, err)
	items, ok := e.NewValues.Lookup("accounts").Items()
	require.True(t, ok)
	obj, ok := items[0].Object()
	require.True(t, ok)
	require.Equal(t, redactedValue, obj.Lookup("Password").String())
	require.Equal(t, "n", obj.Lookup("name").String())
	require.Equal(t, "p", inner.Lookup("Password").String(), "input is not modified")
	require.Equal(t, []string{"accounts"}, e.ChangedKeys())
}

func TestIsSensitiveKey(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"password", true},
		{"Password", true},
		{"api_token", true},
		{"apiToken", true},
		{"client-secret", true},
		{"db_password", true},
		{"api_key", true},
		{"tokens_used", false},
		{"secret_santa_code", false},
		{"password_hint_shown", false},
		{"driver", false},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			require.Equal(t, tc.want, isSensitiveKey(tc.key))
		})
	}
}

func TestAuditRecorder_BusinessFieldsNamedLikeSecretsAreKept(t *testing.T) {
	r := NewAuditRecorder(persistence.NewInmemAuditLogRepository())
	e, err := r.Record(context.Background(), RecordParams{
		ActorID:      uuid.New(),
		Action:       auditentry.ActionUpdate,
		ResourceType: resource.TypeOtherServices,
		ResourceID:   "5",
		OldValues:    fv.NewObject().Set("tokens_used", fv.Int(3)).Set("secret_santa_code", fv.String("A")),
		NewValues:    fv.NewObject().Set("tokens_used", fv.Int(4)).Set("secret_santa_code", fv.String("A")),
		Attribution:  DirectAttribution(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"tokens_used"}, e.ChangedKeys())
	require.Equal(t, "4", e.NewValues.Lookup("tokens_used").String())
}

func TestAuditRecorder_ChangedKeysSeeDroppedItemSubField(t *testing.T) {
	r := NewAuditRecorder(persistence.NewInmemAuditLogRepository())
	e, err := r.Record(context.Background(), RecordParams{
		ActorID:      uuid.New(),
		Action:       auditentry.ActionUpdate,
		ResourceType: resource.TypeFlights,
		ResourceID:   "42",
		OldValues: fv.NewObject().Set("payments", fv.Array(
			fv.ObjectOf(fv.NewObject().Set("amount", fv.Int(10)).Set("note", fv.String("deposit"))))),
		NewValues: fv.NewObject().Set("payments", fv.Array(
			fv.ObjectOf(fv.NewObject().Set("amount", fv.Int(10))))),
		Attribution: DirectAttribution(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"payments"}, e.ChangedKeys())
}

func TestAuditRecorder_RejectsInvalidParams(t *testing.T) {
	r := NewAuditRecorder(persistence.NewInmemAuditLogRepository())
	valid := RecordParams{
		ActorID:      uuid.New(),
		Action:       auditentry.ActionUpdate,
		ResourceType: resource.TypeFlights,
		ResourceID:   "42",
	}
	cases := map[string]func(p *RecordParams){
		"unknown action":  func(p *RecordParams) { p.Action = "rename" },
		"unknown type":    func(p *RecordParams) { p.ResourceType = "boats" },
		"missing id":      func(p *RecordParams) { p.ResourceID = "" },
		"missing actor":   func(p *RecordParams) { p.ActorID = uuid.Nil },
		"create with old": func(p *RecordParams) { p.Action = auditentry.ActionCreate; p.OldValues = fv.NewObject() },
		"delete with new": func(p *RecordParams) { p.Action = auditentry.ActionDelete; p.NewValues = fv.NewObject() },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := valid
			mutate(&p)
			_, err := r.Record(context.Background(), p)
			require.Equal(t, CodeValidation, Kind(err), "err: %v", err)
		})
	}
}

func TestAuditRecorder_ListFilters(t *testing.T) {
	r := NewAuditRecorder(persistence.NewInmemAuditLogRepository())
	ctx := context.Background()
	actor := uuid.New()
	for i, label := range []string{"HY-042", "HY-043", "TR-001"} {
		_, err := r.Record(ctx, RecordParams{
			ActorID:      actor,
			Action:       auditentry.ActionUpdate,
			ResourceType: resource.TypeFlights,
			ResourceID:   label,
			OldValues:    fv.NewObject().Set("n", fv.Int(int64(i))),
			NewValues:    fv.NewObject().Set("n", fv.Int(int64(i+1))),
			Attribution:  Attribution{RequestID: "R1", Reason: "x"},
			DisplayID:    label,
		})
		require.NoError(t, err)
	}

	entries, total, err := r.List(ctx, AuditQuery{DisplayID: "hy-04", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, entries, 1)
	require.Equal(t, "HY-043", entries[0].DisplayID(), "newest first")

	_, _, err = r.List(ctx, AuditQuery{Action: "rename"})
	require.Equal(t, CodeValidation, Kind(err))
}

func TestAuditRecorder_WithPaging(t *testing.T) {
	r := NewAuditRecorder(persistence.NewInmemAuditLogRepository()).WithPaging(10, 5)
	require.Equal(t, 10, r.defaultPageSize)
	require.Equal(t, 10, r.maxPageSize)

	r = NewAuditRecorder(persistence.NewInmemAuditLogRepository()).WithPaging(0, 0)
	require.Equal(t, 50, r.defaultPageSize)
	require.Equal(t, 500, r.maxPageSize)
}
