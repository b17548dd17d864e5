package policy

import (
	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/tenant"
)

// Action is an operation an actor asks to perform
type Action string

const (
	ActionReadProject            Action = "read_project"
	ActionReadComments           Action = "read_comments"
	ActionListProjects           Action = "list_projects"
	ActionCreateComment          Action = "create_comment"
	ActionReviewProject          Action = "review_project"
	ActionChangeStatusDirect     Action = "change_status_direct"
	ActionSubmitProject          Action = "submit_project"
	ActionViewDashboardAggregate Action = "view_dashboard_aggregate"
	ActionManageMembers          Action = "manage_members"
)

// Actions lists every known action
func Actions() []Action {
	return []Action{
		ActionReadProject,
		ActionReadComments,
		ActionListProjects,
		ActionCreateComment,
		ActionReviewProject,
		ActionChangeStatusDirect,
		ActionSubmitProject,
		ActionViewDashboardAggregate,
		ActionManageMembers,
	}
}

// Scope is the row set an allowed action may touch
type Scope string

const (
	ScopeNone         Scope = ""
	ScopeSelf         Scope = "self"
	ScopeOrganization Scope = "organization"
)

// Reason explains a denial
type Reason string

const (
	ReasonAllowed          Reason = ""
	ReasonNoTenant         Reason = "no_tenant"
	ReasonCrossTenant      Reason = "cross_tenant"
	ReasonNotOwner         Reason = "not_owner"
	ReasonInsufficientRole Reason = "insufficient_role"
	ReasonUnknownAction    Reason = "unknown_action"
)

// Actor is the authenticated caller with their resolved tenant
type Actor struct {
	UserID int64
	Level  domain.Level
	Tenant tenant.Tenant
}

// Role returns the actor's organization-scoped role, or false without a tenant
func (a Actor) Role() (domain.Role, bool) {
	orgID, ok := a.Tenant.OrganizationID()
	if !ok {
		return domain.Role{}, false
	}
	return domain.Role{OrganizationID: orgID, Level: a.Level}, true
}

// Resource is the record an action targets, reduced to what policy needs
type Resource struct {
	OwnerID int64
	Tenant  tenant.Tenant
}

// ProjectResource derives a Resource from a loaded project
func ProjectResource(p *domain.Project) *Resource {
	r := &Resource{OwnerID: p.UserID, Tenant: tenant.None}
	if p.OwnerOrganizationID != nil {
		r.Tenant = tenant.Of(*p.OwnerOrganizationID)
	}
	return r
}

// Decision is the outcome of Authorize
type Decision struct {
	Allowed bool
	Reason  Reason
	Scope   Scope
}

func allow(scope Scope) Decision {
	return Decision{Allowed: true, Scope: scope}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into the shared error taxonomy. Denials of reads on
// records outside the actor's reach become NotFound so their existence is
// not revealed. Allowed decisions return nil.
func (d Decision) Err(op string) error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonNoTenant:
		return apperr.E(apperr.KindNoTenant, op, "no organization")
	case ReasonCrossTenant:
		return apperr.E(apperr.KindCrossTenant, op, "not found")
	case ReasonNotOwner:
		return apperr.E(apperr.KindNotFound, op, "not found")
	case ReasonInsufficientRole:
		return apperr.E(apperr.KindInsufficientRole, op, "forbidden")
	default:
		return apperr.E(apperr.KindForbidden, op, "forbidden")
	}
}
