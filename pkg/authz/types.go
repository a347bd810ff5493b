package authz

import (
	"strings"

	"github.com/iota-uz/backoffice/pkg/types"
)

const (
	rolePrefix       = "role"
	subjectSeparator = ":"
)

// Objects guarded by the policy.
const (
	ObjectEditGrants = "edit_grants"
	ObjectResources  = "resources"
	ObjectAudit      = "audit"
)

// Actions checked against the policy.
const (
	ActionSubmit  = "submit"
	ActionCancel  = "cancel"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionReview  = "review"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionRead    = "read"
	// ActionBypass lets a role mutate resources without an approved grant.
	ActionBypass = "bypass"
)

// Request encapsulates all parameters required to evaluate a Casbin rule.
type Request struct {
	Subject string
	Object  string
	Action  string
}

// NewRequest constructs a Request with normalized values.
func NewRequest(subject, object, action string) Request {
	return Request{
		Subject: strings.TrimSpace(subject),
		Object:  strings.ToLower(strings.TrimSpace(object)),
		Action:  NormalizeAction(action),
	}
}

// SubjectForRole renders the policy subject for a role, e.g. role:admin.
func SubjectForRole(role types.Role) string {
	name := strings.TrimSpace(string(role))
	if name == "" {
		name = "anonymous"
	}
	return rolePrefix + subjectSeparator + strings.ToLower(name)
}

// RoleRequest builds a request for the given caller role.
func RoleRequest(role types.Role, object, action string) Request {
	return NewRequest(SubjectForRole(role), object, action)
}

func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}
