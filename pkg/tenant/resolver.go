// Package tenant resolves the organization a user acts in.
//
// Resolution always reads the store; nothing is cached between requests, so
// a user moved to another organization is scoped correctly on the next call.
// A user without an organization resolves to None, which callers must treat
// as "no rows", never as "all rows".
package tenant

import (
	"context"
	"errors"
	"strconv"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

// Tenant is a resolved organization scope
type Tenant struct {
	organizationID int64
	ok             bool
}

// None is the empty scope
var None = Tenant{}

// Of returns the tenant for an organization id
func Of(orgID int64) Tenant {
	return Tenant{organizationID: orgID, ok: true}
}

// FromUser returns the tenant recorded on a loaded user row
func FromUser(u *domain.User) Tenant {
	if u == nil || u.OrganizationID == nil {
		return None
	}
	return Of(*u.OrganizationID)
}

// OrganizationID returns the organization id and whether there is one
func (t Tenant) OrganizationID() (int64, bool) {
	return t.organizationID, t.ok
}

// IsNone reports whether t is the empty scope
func (t Tenant) IsNone() bool {
	return !t.ok
}

// Equal reports whether both tenants name the same organization. None is
// never equal to anything, including None.
func (t Tenant) Equal(other Tenant) bool {
	return t.ok && other.ok && t.organizationID == other.organizationID
}

func (t Tenant) String() string {
	if !t.ok {
		return "none"
	}
	return "org:" + strconv.FormatInt(t.organizationID, 10)
}

// Resolver looks up a user's organization
type Resolver struct {
	users storage.UserReader
}

// NewResolver creates a Resolver
func NewResolver(users storage.UserReader) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the user's current organization. A missing user yields
// None, not an error; only store faults are returned.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Tenant, error) {
	user, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return None, nil
	}
	if err != nil {
		return None, storage.AppError("tenant.Resolve", err)
	}
	return FromUser(user), nil
}
