package auth

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/session"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Store is the persistence the service needs
type Store interface {
	storage.UserReader
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	GetOrganization(ctx context.Context, id int64) (*domain.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error)
	RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error
}

// RegisterInput creates an account. Set OrganizationName to found a new
// organization or JoinSlug to join an existing one, not both.
type RegisterInput struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	OrganizationName string `json:"organization_name,omitempty"`
	OrganizationSlug string `json:"organization_slug,omitempty"`
	JoinSlug         string `json:"join_slug,omitempty"`
	IPAddress        string `json:"-"`
}

// LoginInput exchanges credentials for a session
type LoginInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
}

// Session is an issued credential
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// Profile is the caller with their organization
type Profile struct {
	User         *domain.User         `json:"user"`
	Organization *domain.Organization `json:"organization,omitempty"`
}

// Service registers and signs in users
type Service struct {
	store     Store
	sessions  *session.Manager
	audit     *AuditLogger
	logger    *logrus.Logger
	cost      int
	dummyHash []byte
}

// Option configures a Service
type Option func(*Service)

// WithBcryptCost overrides the hashing cost
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithAuditLogger sends audit events to al
func WithAuditLogger(al *AuditLogger) Option {
	return func(s *Service) { s.audit = al }
}

// NewService creates a Service
func NewService(store Store, sessions *session.Manager, logger *logrus.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		store:    store,
		sessions: sessions,
		logger:   logger,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.audit == nil {
		s.audit = NewAuditLogger(logger)
	}
	// Compared against on unknown emails so both failures cost one bcrypt run
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pitchdesk-dummy-password"), s.cost)
	return s
}

// Register creates an account
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	const op = "auth.Register"

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.OrganizationName = strings.TrimSpace(in.OrganizationName)
	in.JoinSlug = strings.ToLower(strings.TrimSpace(in.JoinSlug))

	if err := validateRegistration(op, &in); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		s.audit.Log(ctx, AuditEvent{Action: ActionRegister, Status: StatusDenied, Email: in.Email, IPAddress: in.IPAddress, Reason: "email taken"})
		return nil, apperr.E(apperr.KindConflict, op, "email already registered")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, storage.AppError(op, err)
	}

	hash, err := HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}

	user := &domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Level:        domain.LevelMember,
	}

	switch {
	case in.OrganizationName != "":
		org := &domain.Organization{Name: in.OrganizationName, Slug: in.OrganizationSlug}
		err = s.store.RunInTx(ctx, func(tx storage.Tx) error {
			if err := tx.CreateOrganization(ctx, org); err != nil {
				return err
			}
			user.Level = domain.LevelAdmin
			user.OrganizationID = &org.ID
			return tx.CreateUser(ctx, user)
		})
		if err != nil {
			if f, ok := storage.FaultOf(err); ok && f == storage.FaultConstraint {
				return nil, apperr.E(apperr.KindConflict, op, "organization slug or email already taken")
			}
			return nil, storage.AppError(op, err)
		}
		s.audit.Log(ctx, AuditEvent{Action: ActionOrgCreate, Status: StatusSuccess, UserID: &user.ID, OrganizationID: &org.ID, IPAddress: in.IPAddress})

	case in.JoinSlug != "":
		org, err := s.store.GetOrganizationBySlug(ctx, in.JoinSlug)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.E(apperr.KindNotFound, op, "organization not found")
		}
		if err != nil {
			return nil, storage.AppError(op, err)
		}
		user.OrganizationID = &org.ID
		if err := s.store.CreateUser(ctx, user); err != nil {
			return nil, storage.AppError(op, err)
		}

	default:
		if err := s.store.CreateUser(ctx, user); err != nil {
			return nil, storage.AppError(op, err)
		}
	}

	s.audit.Log(ctx, AuditEvent{Action: ActionRegister, Status: StatusSuccess, UserID: &user.ID, OrganizationID: user.OrganizationID, Email: user.Email, IPAddress: in.IPAddress})
	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Level,
	}).Info("User registered")
	return user, nil
}

func validateRegistration(op string, in *RegisterInput) error {
	if in.Name == "" {
		return apperr.E(apperr.KindValidation, op, "name is required")
	}
	if len(in.Name) > 100 {
		return apperr.E(apperr.KindValidation, op, "name is too long")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return apperr.E(apperr.KindValidation, op, "a valid email is required")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return apperr.E(apperr.KindValidation, op, err.Error())
	}
	if in.OrganizationName != "" && in.JoinSlug != "" {
		return apperr.E(apperr.KindValidation, op, "choose either a new organization or one to join")
	}
	if in.OrganizationName != "" {
		if in.OrganizationSlug == "" {
			in.OrganizationSlug = Slugify(in.OrganizationName)
		}
		in.OrganizationSlug = strings.ToLower(strings.TrimSpace(in.OrganizationSlug))
		if !slugPattern.MatchString(in.OrganizationSlug) || len(in.OrganizationSlug) > 64 {
			return apperr.E(apperr.KindValidation, op, "organization slug may contain only lowercase letters, digits and dashes")
		}
	}
	return nil
}

// Slugify derives a URL-safe slug from an organization name
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Login checks credentials and issues a session
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	const op = "auth.Login"
	email := strings.ToLower(strings.TrimSpace(in.Email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, storage.AppError(op, err)
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		s.audit.Log(ctx, AuditEvent{Action: ActionAuthFailure, Status: StatusFailure, Email: email, IPAddress: in.IPAddress, Reason: "unknown email"})
		return nil, apperr.E(apperr.KindUnauthenticated, op, "invalid email or password")
	}
	if !CheckPassword(in.Password, user.PasswordHash) {
		s.audit.Log(ctx, AuditEvent{Action: ActionAuthFailure, Status: StatusFailure, UserID: &user.ID, Email: email, IPAddress: in.IPAddress, Reason: "wrong password"})
		return nil, apperr.E(apperr.KindUnauthenticated, op, "invalid email or password")
	}

	token, expiresAt, err := s.sessions.Issue(user)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}

	s.audit.Log(ctx, AuditEvent{Action: ActionAuthSuccess, Status: StatusSuccess, UserID: &user.ID, OrganizationID: user.OrganizationID, IPAddress: in.IPAddress})
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Me returns the user with their organization, if any
func (s *Service) Me(ctx context.Context, user *domain.User) (*Profile, error) {
	const op = "auth.Me"

	p := &Profile{User: user}
	if user.OrganizationID == nil {
		return p, nil
	}
	org, err := s.store.GetOrganization(ctx, *user.OrganizationID)
	if errors.Is(err, storage.ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return nil, storage.AppError(op, err)
	}
	p.Organization = org
	return p, nil
}
