// Package orgs manages an organization and its members.
//
// Only admins manage members, and only inside their own organization. A
// level change takes effect on the member's next request: their session
// still carries the old level, so revalidation rejects it and they must
// sign in again.
package orgs

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/policy"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
	"github.com/platinummonkey/pitchdesk/pkg/tenant"
)

// Store is the persistence the service needs
type Store interface {
	storage.UserReader
	GetOrganization(ctx context.Context, id int64) (*domain.Organization, error)
	ListMembers(ctx context.Context, orgID int64) ([]*domain.User, error)
	UpdateUserLevel(ctx context.Context, userID int64, level domain.Level) error
}

// Service serves organization operations
type Service struct {
	store  Store
	policy *policy.Engine
	logger *logrus.Logger
}

// NewService creates a Service
func NewService(store Store, engine *policy.Engine, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{store: store, policy: engine, logger: logger}
}

// Get returns the actor's organization
func (s *Service) Get(ctx context.Context, actor policy.Actor) (*domain.Organization, error) {
	const op = "orgs.Get"

	orgID, ok := actor.Tenant.OrganizationID()
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, op, "organization not found")
	}
	org, err := s.store.GetOrganization(ctx, orgID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.E(apperr.KindNotFound, op, "organization not found")
	}
	if err != nil {
		return nil, storage.AppError(op, err)
	}
	return org, nil
}

// ListMembers returns every member of the actor's organization
func (s *Service) ListMembers(ctx context.Context, actor policy.Actor) ([]*domain.User, error) {
	const op = "orgs.ListMembers"

	if d := s.policy.Authorize(actor, nil, policy.ActionManageMembers); !d.Allowed {
		return nil, d.Err(op)
	}
	orgID, _ := actor.Tenant.OrganizationID()

	members, err := s.store.ListMembers(ctx, orgID)
	if err != nil {
		return nil, storage.AppError(op, err)
	}
	if members == nil {
		members = []*domain.User{}
	}
	return members, nil
}

// SetMemberLevel changes a member's level. Admins cannot change their own
// level, so an organization always keeps the admin acting on it.
func (s *Service) SetMemberLevel(ctx context.Context, actor policy.Actor, userID int64, level domain.Level) (*domain.User, error) {
	const op = "orgs.SetMemberLevel"

	if d := s.policy.Authorize(actor, nil, policy.ActionManageMembers); !d.Allowed {
		return nil, d.Err(op)
	}

	level, ok := domain.ParseLevel(string(level))
	if !ok {
		return nil, apperr.Validationf(op, "role must be one of user, expert, admin")
	}
	if userID == actor.UserID {
		return nil, apperr.E(apperr.KindConflict, op, "cannot change your own role")
	}

	member, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.E(apperr.KindNotFound, op, "member not found")
	}
	if err != nil {
		return nil, storage.AppError(op, err)
	}

	resource := &policy.Resource{OwnerID: member.ID, Tenant: tenant.FromUser(member)}
	if d := s.policy.Authorize(actor, resource, policy.ActionManageMembers); !d.Allowed {
		return nil, d.Err(op)
	}

	if member.Level == level {
		return member, nil
	}
	if err := s.store.UpdateUserLevel(ctx, member.ID, level); err != nil {
		return nil, storage.AppError(op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"actor_id":  actor.UserID,
		"member_id": member.ID,
		"from":      member.Level,
		"to":        level,
	}).Info("Member role changed")

	member.Level = level
	return member, nil
}
