package authz

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/backoffice/pkg/serrors"
	"github.com/iota-uz/backoffice/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{})
	require.NoError(t, err)
	return svc
}

func TestServiceBuiltinPolicy(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    types.Role
		object  string
		action  string
		allowed bool
	}{
		{types.RoleAgent, ObjectEditGrants, ActionSubmit, true},
		{types.RoleAgent, ObjectResources, ActionUpdate, true},
		{types.RoleAgent, ObjectEditGrants, ActionApprove, false},
		{types.RoleAgent, ObjectResources, ActionDelete, false},
		{types.RoleAgent, ObjectResources, ActionBypass, false},
		{types.RoleSupervisor, ObjectEditGrants, ActionApprove, true},
		{types.RoleSupervisor, ObjectResources, ActionDelete, true},
		{types.RoleSupervisor, ObjectEditGrants, ActionSubmit, true},
		{types.RoleAdmin, ObjectEditGrants, ActionReject, true},
		{types.RoleAdmin, ObjectResources, ActionBypass, true},
		{types.Role("viewer"), ObjectResources, ActionUpdate, false},
		{types.Role(""), ObjectAudit, ActionRead, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role)+"/"+tc.object+"/"+tc.action, func(t *testing.T) {
			require.Equal(t, tc.allowed, svc.Can(ctx, tc.role, tc.object, tc.action))
		})
	}
}

func TestServiceIsElevated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.True(t, svc.IsElevated(ctx, types.RoleAdmin))
	require.True(t, svc.IsElevated(ctx, types.ParseRole(" Supervisor ")))
	require.False(t, svc.IsElevated(ctx, types.RoleAgent))
}

func TestServiceAuthorizeDenied(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), RoleRequest(types.RoleAgent, ObjectResources, ActionDelete))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrForbidden)

	var base *serrors.BaseError
	require.True(t, errors.As(err, &base))
	require.Equal(t, "role:agent", base.TemplateData["subject"])
	require.Equal(t, ActionDelete, base.TemplateData["action"])
}

func TestServiceCustomPolicyFile(t *testing.T) {
	svc, err := NewService(Config{PolicyPath: filepath.Join("testdata", "policy.csv")})
	require.NoError(t, err)
	ctx := context.Background()

	require.True(t, svc.Can(ctx, types.Role("auditor"), ObjectAudit, ActionRead))
	require.False(t, svc.Can(ctx, types.RoleAdmin, ObjectResources, ActionBypass))
	require.True(t, svc.IsElevated(ctx, types.Role("root")))
	require.NoError(t, svc.ReloadPolicy(ctx))
}

func TestServiceMissingPolicyFile(t *testing.T) {
	_, err := NewService(Config{PolicyPath: filepath.Join("testdata", "missing.csv")})
	require.Error(t, err)
}

func TestNewRequestNormalizes(t *testing.T) {
	req := RoleRequest(types.Role("Admin"), " Resources ", " DELETE ")
	require.Equal(t, Request{Subject: "role:admin", Object: "resources", Action: "delete"}, req)
	require.Equal(t, "role:anonymous", SubjectForRole(""))
}
