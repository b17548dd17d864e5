package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
)

// UserReader reads identity rows. Session revalidation and tenant resolution
// depend on this alone.
type UserReader interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// UserStore holds accounts and their organization membership
type UserStore interface {
	UserReader
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	ListMembers(ctx context.Context, orgID int64) ([]*domain.User, error)
	// ListReviewers returns the admins and experts of orgID
	ListReviewers(ctx context.Context, orgID int64) ([]*domain.User, error)
	UpdateUserLevel(ctx context.Context, userID int64, level domain.Level) error
}

// OrganizationStore holds tenants
type OrganizationStore interface {
	GetOrganization(ctx context.Context, id int64) (*domain.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error)
	CreateOrganization(ctx context.Context, org *domain.Organization) error
}

// ProjectFilter narrows project listings. Exactly one of OwnerID or
// OrganizationID must be set; the store never runs an unscoped listing.
type ProjectFilter struct {
	OwnerID        *int64
	OrganizationID *int64
	Status         domain.Status
	Limit          int
	Offset         int
}

// ProjectStore holds projects. Every read joins the owner row so the
// returned project carries OwnerOrganizationID.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*domain.Project, error)
	CountProjectsByStatus(ctx context.Context, filter ProjectFilter) (map[domain.Status]int64, error)
}

// CommentStore holds the append-only comment log
type CommentStore interface {
	CreateComment(ctx context.Context, comment *domain.ProjectComment) error
	ListComments(ctx context.Context, projectID int64) ([]*domain.ProjectComment, error)
}

// NotificationStore holds single-recipient notifications
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	GetNotification(ctx context.Context, id int64) (*domain.Notification, error)
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)
	PurgeReadNotifications(ctx context.Context, olderThan time.Time) (int64, error)
}

// Tx is the set of operations available inside RunInTx. All of them commit
// or roll back together.
type Tx interface {
	UserReader
	// GetProjectForUpdate loads a project and locks its row until the
	// transaction ends.
	GetProjectForUpdate(ctx context.Context, id int64) (*domain.Project, error)
	UpdateProjectStatus(ctx context.Context, id int64, status domain.Status) error
	CreateComment(ctx context.Context, comment *domain.ProjectComment) error
	CreateNotification(ctx context.Context, n *domain.Notification) error
	CreateOrganization(ctx context.Context, org *domain.Organization) error
	CreateUser(ctx context.Context, user *domain.User) error
}

// Store is the persistence handle built once at startup and passed to every
// component.
type Store interface {
	UserStore
	OrganizationStore
	ProjectStore
	CommentStore
	NotificationStore

	// RunInTx runs fn in one transaction. A nil return commits. Conflicts
	// are retried by the implementation, so fn must not have side effects
	// outside tx.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// Config for the relational store
type Config struct {
	Driver      string        `yaml:"driver"` // "postgres" or "sqlite3"
	DSN         string        `yaml:"dsn"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	// TxAttempts bounds retries of a transaction that hit a serialization
	// conflict.
	TxAttempts int `yaml:"tx_attempts"`
}

// DefaultConfig returns the local development configuration
func DefaultConfig() Config {
	return Config{
		Driver:      "sqlite3",
		DSN:         "file:pitchdesk.db?_foreign_keys=on&_busy_timeout=5000",
		MaxConns:    20,
		MinConns:    2,
		Timeout:     10 * time.Second,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
		TxAttempts:  3,
	}
}
