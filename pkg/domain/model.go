package domain

import (
	"strings"
	"time"
)

// Level is a member's standing inside their organization.
// The persisted values match the historical role column: user, expert, admin.
type Level string

const (
	LevelMember Level = "user"
	LevelExpert Level = "expert"
	LevelAdmin  Level = "admin"
)

// Valid reports whether l is one of the known levels
func (l Level) Valid() bool {
	switch l {
	case LevelMember, LevelExpert, LevelAdmin:
		return true
	}
	return false
}

// IsReviewer reports whether the level may review projects of its organization
func (l Level) IsReviewer() bool {
	return l == LevelExpert || l == LevelAdmin
}

// ParseLevel parses a level, accepting "member" as an alias of "user"
func ParseLevel(s string) (Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "member" {
		return LevelMember, true
	}
	l := Level(s)
	return l, l.Valid()
}

// Role is an organization-scoped role. There is no platform-wide variant:
// an admin is an admin of exactly one organization.
type Role struct {
	OrganizationID int64 `json:"organization_id"`
	Level          Level `json:"level"`
}

// User is a registered account
type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Level          Level     `json:"role"`
	OrganizationID *int64    `json:"organization_id,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Role returns the user's organization-scoped role, or false when the user
// belongs to no organization.
func (u *User) Role() (Role, bool) {
	if u.OrganizationID == nil {
		return Role{}, false
	}
	return Role{OrganizationID: *u.OrganizationID, Level: u.Level}, true
}

// Organization is the tenant boundary
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	LogoURL   string    `json:"logo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is a project's review status
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// Statuses lists every status in display order
func Statuses() []Status {
	return []Status{StatusPending, StatusAccepted, StatusRejected}
}

// Valid reports whether s is one of the three known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// ParseStatus parses a status case-insensitively
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Project is a submitted proposal. It has no organization column: its
// tenant is its owner's organization, loaded alongside it as
// OwnerOrganizationID.
type Project struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Contact     string    `json:"contact"`
	Status      Status    `json:"status"`
	FileURL     string    `json:"file_url,omitempty"`
	UserID      int64     `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`

	// OwnerOrganizationID is derived from the owner row at load time
	OwnerOrganizationID *int64 `json:"-"`
}

// ProjectComment is an append-only remark on a project
type ProjectComment struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"project_id"`
	Content    string    `json:"content"`
	AuthorRole Level     `json:"author_role"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification has exactly one recipient
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectStats is the dashboard aggregate
type ProjectStats struct {
	Total    int64 `json:"total"`
	Pending  int64 `json:"pending"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// Add folds a per-status count into the aggregate
func (s *ProjectStats) Add(status Status, n int64) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusAccepted:
		s.Accepted += n
	case StatusRejected:
		s.Rejected += n
	default:
		return
	}
	s.Total += n
}
