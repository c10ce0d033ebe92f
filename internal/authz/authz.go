// Package authz is the authorization gate: a pure mapping from a principal's
// role to the actions it may perform, plus agency-scoped resource checks.
package authz

import (
	"github.com/rayenfassatoui/amen-bank/internal/apperr"
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleAdministrator   Role = "Administrator"
	RoleAgency          Role = "Agency"
	RoleCentralCash     Role = "Central Cash"
	RoleTunisiaSecurity Role = "Tunisia Security"
)

// Roles lists every role.
var Roles = []Role{RoleAdministrator, RoleAgency, RoleCentralCash, RoleTunisiaSecurity}

var roleDescriptions = map[Role]string{
	RoleAdministrator:   "System Administrator - Full access to user management and system configuration",
	RoleAgency:          "Agency User - Can create fund requests (provisionnement/versement)",
	RoleCentralCash:     "Central Cash - Validates or rejects fund requests",
	RoleTunisiaSecurity: "Tunisia Security - Assigns teams and manages fund dispatch",
}

// Description returns a human readable summary of what r may do.
func (r Role) Description() string {
	return roleDescriptions[r]
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Principal is the authenticated actor supplied by the identity collaborator.
type Principal struct {
	ID       string
	Name     string
	Email    string
	Role     Role
	AgencyID string
}

// Descriptor renders the actor as "name (role)" for audit records.
func (p Principal) Descriptor() string {
	name := p.Name
	if name == "" {
		name = p.Email
	}
	return name + " (" + string(p.Role) + ")"
}

// Action names an operation guarded by the gate.
type Action string

const (
	ActionCreateRequest   Action = "request:create"
	ActionViewRequest     Action = "request:view"
	ActionListRequests    Action = "request:list"
	ActionValidateRequest Action = "request:validate"
	ActionRejectRequest   Action = "request:reject"
	ActionAssignTeam      Action = "request:assign-team"
	ActionDispatch        Action = "request:dispatch"
	ActionConfirmReceipt  Action = "request:confirm-receipt"
	ActionViewAuditLog    Action = "audit:view"
	ActionManageUsers     Action = "user:manage"
	ActionManageAgencies  Action = "agency:manage"
	ActionViewAgencies    Action = "agency:view"
)

var allRoles = roleSet(Roles...)

var policy = map[Action]map[Role]struct{}{
	ActionCreateRequest:   roleSet(RoleAgency),
	ActionViewRequest:     allRoles,
	ActionListRequests:    allRoles,
	ActionValidateRequest: roleSet(RoleCentralCash),
	ActionRejectRequest:   roleSet(RoleCentralCash),
	ActionAssignTeam:      roleSet(RoleTunisiaSecurity),
	ActionDispatch:        roleSet(RoleTunisiaSecurity),
	ActionConfirmReceipt:  roleSet(RoleAgency),
	ActionViewAuditLog:    roleSet(RoleAdministrator),
	ActionManageUsers:     roleSet(RoleAdministrator),
	ActionManageAgencies:  roleSet(RoleAdministrator),
	ActionViewAgencies:    allRoles,
}

// Allowed reports whether role may perform action. Unknown actions are denied.
func Allowed(role Role, action Action) bool {
	roles, ok := policy[action]
	if !ok {
		return false
	}
	_, ok = roles[role]
	return ok
}

// Authorize checks role membership for action. It fails with
// UNAUTHENTICATED when p is nil and FORBIDDEN when the role is not allowed.
func Authorize(p *Principal, action Action) (Principal, error) {
	if p == nil || p.ID == "" {
		return Principal{}, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	if !Allowed(p.Role, action) {
		return Principal{}, apperr.WithMetadata(apperr.KindForbidden, "insufficient permissions",
			map[string]string{"action": string(action), "role": string(p.Role)})
	}
	return *p, nil
}

// AuthorizeResource runs Authorize and then the agency scope check: an
// Agency principal may only act on resources owned by its own agency.
func AuthorizeResource(p *Principal, action Action, ownerAgencyID string) (Principal, error) {
	principal, err := Authorize(p, action)
	if err != nil {
		return Principal{}, err
	}
	if err := checkScope(principal, ownerAgencyID); err != nil {
		return Principal{}, err
	}
	return principal, nil
}

// checkScope applies the agency ownership rule to an already authorized principal.
func checkScope(p Principal, ownerAgencyID string) error {
	if p.Role == RoleAgency && p.AgencyID != ownerAgencyID {
		return apperr.New(apperr.KindForbidden, "request belongs to another agency")
	}
	return nil
}

func roleSet(roles ...Role) map[Role]struct{} {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}
