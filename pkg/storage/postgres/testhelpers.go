package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
)

var testDBCounter int64

// NewTestStore returns a migrated Store over a private in-memory SQLite
// database. The store is closed when the test ends.
func NewTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	// A named shared-cache database survives pool reconnects within one test
	name := fmt.Sprintf("file:pitchdesk_test_%d?mode=memory&cache=shared&_busy_timeout=5000", atomic.AddInt64(&testDBCounter, 1))
	db, err := sql.Open("sqlite3", name)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	if err := RunMigrations(context.Background(), db, DialectSQLite, logger); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	store := New(db, DialectSQLite, append([]Option{WithLogger(logger)}, opts...)...)
	t.Cleanup(func() { db.Close() })
	return store
}

// SeedOrganization inserts an organization with the given slug
func SeedOrganization(t *testing.T, s *Store, slug string) *domain.Organization {
	t.Helper()

	org := &domain.Organization{Name: slug, Slug: slug}
	if err := s.CreateOrganization(context.Background(), org); err != nil {
		t.Fatalf("Failed to seed organization %s: %v", slug, err)
	}
	return org
}

// SeedUser inserts a user of the given level. A nil org leaves the user
// without an organization.
func SeedUser(t *testing.T, s *Store, email string, level domain.Level, org *domain.Organization) *domain.User {
	t.Helper()

	user := &domain.User{
		Name:         email,
		Email:        email,
		PasswordHash: "x",
		Level:        level,
	}
	if org != nil {
		id := org.ID
		user.OrganizationID = &id
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to seed user %s: %v", email, err)
	}
	return user
}

// SeedProject inserts a PENDING project owned by owner
func SeedProject(t *testing.T, s *Store, owner *domain.User, title string) *domain.Project {
	t.Helper()

	project := &domain.Project{
		Title:       title,
		Description: "description of " + title,
		Contact:     owner.Email,
		UserID:      owner.ID,
	}
	if err := s.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("Failed to seed project %s: %v", title, err)
	}
	project.OwnerOrganizationID = owner.OrganizationID
	return project
}
