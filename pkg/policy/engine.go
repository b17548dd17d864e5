package policy

import "github.com/platinummonkey/pitchdesk/pkg/domain"

// readActions are limited to the owner for plain members
var readActions = map[Action]bool{
	ActionReadProject:  true,
	ActionReadComments: true,
	ActionListProjects: true,
}

// reviewerActions require an expert or admin
var reviewerActions = map[Action]bool{
	ActionCreateComment:      true,
	ActionReviewProject:      true,
	ActionChangeStatusDirect: true,
}

// Observer receives every decision, e.g. for metrics
type Observer func(action Action, d Decision)

// Engine evaluates access rules. It performs no I/O.
type Engine struct {
	observer Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver registers a callback that sees every decision
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates an Engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize decides whether actor may perform action on resource. resource
// is nil for collection actions (listing, submitting, dashboards). Rules are
// evaluated in order and the first denial wins.
func (e *Engine) Authorize(actor Actor, resource *Resource, action Action) Decision {
	d := evaluate(actor, resource, action)
	if e.observer != nil {
		e.observer(action, d)
	}
	return d
}

func evaluate(actor Actor, resource *Resource, action Action) Decision {
	if actor.Tenant.IsNone() {
		return deny(ReasonNoTenant)
	}

	if resource != nil && !resource.Tenant.Equal(actor.Tenant) {
		return deny(ReasonCrossTenant)
	}

	reviewer := actor.Level.IsReviewer()

	switch {
	case readActions[action]:
		if reviewer {
			return allow(ScopeOrganization)
		}
		if resource != nil && resource.OwnerID != actor.UserID {
			return deny(ReasonNotOwner)
		}
		return allow(ScopeSelf)

	case reviewerActions[action]:
		if !reviewer {
			return deny(ReasonInsufficientRole)
		}
		return allow(ScopeOrganization)

	case action == ActionSubmitProject:
		return allow(ScopeSelf)

	case action == ActionViewDashboardAggregate:
		if reviewer {
			return allow(ScopeOrganization)
		}
		return allow(ScopeSelf)

	case action == ActionManageMembers:
		if actor.Level != domain.LevelAdmin {
			return deny(ReasonInsufficientRole)
		}
		return allow(ScopeOrganization)
	}

	return deny(ReasonUnknownAction)
}
