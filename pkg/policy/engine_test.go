package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/tenant"
)

var levels = []domain.Level{domain.LevelMember, domain.LevelExpert, domain.LevelAdmin}

func TestAuthorize_NoTenantDeniesEverything(t *testing.T) {
	e := NewEngine()
	for _, level := range levels {
		for _, action := range Actions() {
			d := e.Authorize(Actor{UserID: 1, Level: level, Tenant: tenant.None}, nil, action)
			assert.False(t, d.Allowed, "%s %s", level, action)
			assert.Equal(t, ReasonNoTenant, d.Reason)
		}
	}
}

func TestAuthorize_CrossTenantDeniedForEveryRole(t *testing.T) {
	e := NewEngine()
	other := &Resource{OwnerID: 1, Tenant: tenant.Of(2)}
	orphan := &Resource{OwnerID: 1, Tenant: tenant.None}

	for _, level := range levels {
		for _, action := range Actions() {
			actor := Actor{UserID: 1, Level: level, Tenant: tenant.Of(1)}

			d := e.Authorize(actor, other, action)
			assert.False(t, d.Allowed, "%s %s", level, action)
			assert.Equal(t, ReasonCrossTenant, d.Reason)

			d = e.Authorize(actor, orphan, action)
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonCrossTenant, d.Reason)
		}
	}
}

func TestAuthorize_Reads(t *testing.T) {
	e := NewEngine()
	org := tenant.Of(10)
	own := &Resource{OwnerID: 5, Tenant: org}
	colleague := &Resource{OwnerID: 6, Tenant: org}

	member := Actor{UserID: 5, Level: domain.LevelMember, Tenant: org}
	for _, action := range []Action{ActionReadProject, ActionReadComments} {
		d := e.Authorize(member, own, action)
		assert.True(t, d.Allowed)
		assert.Equal(t, ScopeSelf, d.Scope)

		d = e.Authorize(member, colleague, action)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonNotOwner, d.Reason)
	}

	d := e.Authorize(member, nil, ActionListProjects)
	assert.True(t, d.Allowed)
	assert.Equal(t, ScopeSelf, d.Scope)

	for _, level := range []domain.Level{domain.LevelExpert, domain.LevelAdmin} {
		reviewer := Actor{UserID: 7, Level: level, Tenant: org}
		for _, action := range []Action{ActionReadProject, ActionReadComments} {
			d := e.Authorize(reviewer, colleague, action)
			assert.True(t, d.Allowed)
			assert.Equal(t, ScopeOrganization, d.Scope)
		}
		d := e.Authorize(reviewer, nil, ActionListProjects)
		assert.True(t, d.Allowed)
		assert.Equal(t, ScopeOrganization, d.Scope)
	}
}

func TestAuthorize_ReviewerOnlyActions(t *testing.T) {
	e := NewEngine()
	org := tenant.Of(10)
	res := &Resource{OwnerID: 5, Tenant: org}

	for _, action := range []Action{ActionCreateComment, ActionReviewProject, ActionChangeStatusDirect} {
		// even the owner cannot review their own project as a member
		d := e.Authorize(Actor{UserID: 5, Level: domain.LevelMember, Tenant: org}, res, action)
		assert.False(t, d.Allowed)
		assert.Equal(t, ReasonInsufficientRole, d.Reason)

		for _, level := range []domain.Level{domain.LevelExpert, domain.LevelAdmin} {
			d := e.Authorize(Actor{UserID: 8, Level: level, Tenant: org}, res, action)
			assert.True(t, d.Allowed, "%s %s", level, action)
			assert.Equal(t, ScopeOrganization, d.Scope)
		}
	}
}

func TestAuthorize_SubmitDashboardAndMembers(t *testing.T) {
	e := NewEngine()
	org := tenant.Of(3)

	for _, level := range levels {
		d := e.Authorize(Actor{UserID: 1, Level: level, Tenant: org}, nil, ActionSubmitProject)
		assert.True(t, d.Allowed)
	}

	d := e.Authorize(Actor{UserID: 1, Level: domain.LevelMember, Tenant: org}, nil, ActionViewDashboardAggregate)
	assert.True(t, d.Allowed)
	assert.Equal(t, ScopeSelf, d.Scope)

	d = e.Authorize(Actor{UserID: 1, Level: domain.LevelExpert, Tenant: org}, nil, ActionViewDashboardAggregate)
	assert.Equal(t, ScopeOrganization, d.Scope)

	d = e.Authorize(Actor{UserID: 1, Level: domain.LevelExpert, Tenant: org}, nil, ActionManageMembers)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonInsufficientRole, d.Reason)

	d = e.Authorize(Actor{UserID: 1, Level: domain.LevelAdmin, Tenant: org}, nil, ActionManageMembers)
	assert.True(t, d.Allowed)

	d = e.Authorize(Actor{UserID: 1, Level: domain.LevelAdmin, Tenant: org}, nil, Action("delete_everything"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonUnknownAction, d.Reason)
}

func TestDecisionErr(t *testing.T) {
	tests := []struct {
		reason   Reason
		expected apperr.Kind
	}{
		{ReasonNoTenant, apperr.KindNoTenant},
		{ReasonCrossTenant, apperr.KindCrossTenant},
		{ReasonNotOwner, apperr.KindNotFound},
		{ReasonInsufficientRole, apperr.KindInsufficientRole},
		{ReasonUnknownAction, apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			assert.Equal(t, tt.expected, apperr.KindOf(deny(tt.reason).Err("op")))
		})
	}
	assert.NoError(t, allow(ScopeSelf).Err("op"))
}

func TestObserverSeesDecisions(t *testing.T) {
	var seen []Action
	e := NewEngine(WithObserver(func(a Action, d Decision) { seen = append(seen, a) }))
	e.Authorize(Actor{UserID: 1, Level: domain.LevelAdmin, Tenant: tenant.Of(1)}, nil, ActionSubmitProject)
	assert.Equal(t, []Action{ActionSubmitProject}, seen)
}

func TestProjectResource(t *testing.T) {
	orgID := int64(4)
	r := ProjectResource(&domain.Project{UserID: 9, OwnerOrganizationID: &orgID})
	assert.Equal(t, int64(9), r.OwnerID)
	assert.True(t, r.Tenant.Equal(tenant.Of(4)))

	r = ProjectResource(&domain.Project{UserID: 9})
	assert.True(t, r.Tenant.IsNone())
}
