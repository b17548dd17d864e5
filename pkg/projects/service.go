// Package projects implements submission and the read side of projects:
// listings, single reads, comments and the dashboard aggregate.
//
// Every call is authorized by the policy engine. Reads by an actor without
// an organization return empty results rather than an error; writes by such
// an actor are denied.
package projects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/async"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/notify"
	"github.com/platinummonkey/pitchdesk/pkg/objectstore"
	"github.com/platinummonkey/pitchdesk/pkg/policy"
	"github.com/platinummonkey/pitchdesk/pkg/statscache"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

// Field limits
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 10000
	MaxContactLength     = 200
	MaxCommentLength     = 5000

	DefaultListLimit = 50
	MaxListLimit     = 100
)

const receiptTimeout = 10 * time.Second

// Store is the persistence the service needs
type Store interface {
	storage.UserReader
	storage.ProjectStore
	storage.CommentStore
}

// ReviewerNotifier broadcasts to an organization's reviewers
type ReviewerNotifier interface {
	NotifyOrgReviewers(ctx context.Context, orgID, excludeUserID int64, title, message string) (notify.FanOutResult, error)
}

// Upload is an attachment sent with a submission
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// SubmitInput is a new project
type SubmitInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Contact     string  `json:"contact"`
	File        *Upload `json:"-"`
}

// ListOptions filters and pages a listing
type ListOptions struct {
	Status domain.Status
	Limit  int
	Offset int
}

// Service serves project operations
type Service struct {
	store    Store
	policy   *policy.Engine
	notifier ReviewerNotifier
	objects  objectstore.Store
	cache    *statscache.Cache
	mailer   notify.Mailer
	logger   *logrus.Logger

	// background runs work that must not delay the response
	background func(ctx context.Context, timeout time.Duration, task string, fn func(context.Context) error)
}

// Option configures a Service
type Option func(*Service)

// WithObjectStore sets where attachments are uploaded
func WithObjectStore(o objectstore.Store) Option {
	return func(s *Service) { s.objects = o }
}

// WithStatsCache caches dashboard aggregates
func WithStatsCache(c *statscache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithReceipts mails a receipt to the submitter
func WithReceipts(m notify.Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

// NewService creates a Service
func NewService(store Store, engine *policy.Engine, notifier ReviewerNotifier, logger *logrus.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		store:    store,
		policy:   engine,
		notifier: notifier,
		objects:  objectstore.Disabled{},
		logger:   logger,

		background: async.SafeGo,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a PENDING project owned by the actor and tells the
// organization's reviewers about it. A failed upload or notification does not
// fail the submission.
func (s *Service) Submit(ctx context.Context, actor policy.Actor, in SubmitInput) (*domain.Project, error) {
	const op = "projects.Submit"

	d := s.policy.Authorize(actor, nil, policy.ActionSubmitProject)
	if !d.Allowed {
		return nil, d.Err(op)
	}
	orgID, _ := actor.Tenant.OrganizationID()

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Contact = strings.TrimSpace(in.Contact)
	if err := validateSubmission(op, in); err != nil {
		return nil, err
	}

	project := &domain.Project{
		Title:       in.Title,
		Description: in.Description,
		Contact:     in.Contact,
		Status:      domain.StatusPending,
		UserID:      actor.UserID,
	}
	if in.File != nil && in.File.Body != nil {
		project.FileURL = s.upload(ctx, actor.UserID, in.File)
	}

	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, storage.AppError(op, err)
	}
	project.OwnerOrganizationID = &orgID

	log := s.logger.WithFields(logrus.Fields{
		"project_id":      project.ID,
		"user_id":         actor.UserID,
		"organization_id": orgID,
	})
	log.Info("Project submitted")

	res, err := s.notifier.NotifyOrgReviewers(ctx, orgID, actor.UserID,
		"New project submitted",
		fmt.Sprintf("\"%s\" was submitted for review.", project.Title),
	)
	if err != nil {
		log.WithError(err).Warn("Failed to notify reviewers")
	} else if res.Failed > 0 {
		log.WithFields(logrus.Fields{"sent": res.Sent, "failed": res.Failed}).Warn("Some reviewers were not notified")
	}

	if s.mailer != nil {
		receipt := *project
		s.background(context.WithoutCancel(ctx), receiptTimeout, "submission receipt", func(ctx context.Context) error {
			return s.sendReceipt(ctx, &receipt)
		})
	}
	return project, nil
}

func validateSubmission(op string, in SubmitInput) error {
	switch {
	case in.Title == "":
		return apperr.E(apperr.KindValidation, op, "title is required")
	case len(in.Title) > MaxTitleLength:
		return apperr.Validationf(op, "title must be at most %d characters", MaxTitleLength)
	case in.Description == "":
		return apperr.E(apperr.KindValidation, op, "description is required")
	case len(in.Description) > MaxDescriptionLength:
		return apperr.Validationf(op, "description must be at most %d characters", MaxDescriptionLength)
	case in.Contact == "":
		return apperr.E(apperr.KindValidation, op, "contact is required")
	case len(in.Contact) > MaxContactLength:
		return apperr.Validationf(op, "contact must be at most %d characters", MaxContactLength)
	}
	return nil
}

func (s *Service) upload(ctx context.Context, userID int64, f *Upload) string {
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := objectstore.AttachmentKey(userID, f.Filename)
	url, err := s.objects.Put(ctx, key, f.Body, contentType)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"key":     key,
			"error":   err,
		}).Warn("Failed to upload project file, continuing without it")
		return ""
	}
	return url
}

func (s *Service) sendReceipt(ctx context.Context, p *domain.Project) error {
	owner, err := s.store.GetUser(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("failed to load submitter %d: %w", p.UserID, err)
	}
	err = s.mailer.Send(ctx, notify.Email{
		To:      owner.Email,
		Subject: "We received your project",
		Body:    fmt.Sprintf("Your project \"%s\" was submitted and is pending review.", p.Title),
	})
	if err != nil {
		return fmt.Errorf("failed to send receipt for project %d: %w", p.ID, err)
	}
	return nil
}

// Get returns one project the actor may read. Projects outside the actor's
// reach are reported as not found.
func (s *Service) Get(ctx context.Context, actor policy.Actor, id int64) (*domain.Project, error) {
	return s.loadAuthorized(ctx, "projects.Get", actor, id, policy.ActionReadProject)
}

func (s *Service) loadAuthorized(ctx context.Context, op string, actor policy.Actor, id int64, action policy.Action) (*domain.Project, error) {
	if actor.Tenant.IsNone() {
		return nil, apperr.E(apperr.KindNotFound, op, "project not found")
	}

	project, err := s.store.GetProject(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.E(apperr.KindNotFound, op, "project not found")
	}
	if err != nil {
		return nil, storage.AppError(op, err)
	}

	if d := s.policy.Authorize(actor, policy.ProjectResource(project), action); !d.Allowed {
		return nil, d.Err(op)
	}
	return project, nil
}

// List returns the projects in the actor's scope, newest first: their own
// for members, their organization's for reviewers.
func (s *Service) List(ctx context.Context, actor policy.Actor, opts ListOptions) ([]*domain.Project, error) {
	const op = "projects.List"

	d := s.policy.Authorize(actor, nil, policy.ActionListProjects)
	if d.Reason == policy.ReasonNoTenant {
		return []*domain.Project{}, nil
	}
	if !d.Allowed {
		return nil, d.Err(op)
	}

	filter, err := scopedFilter(op, actor, d.Scope)
	if err != nil {
		return nil, err
	}
	if opts.Status != "" {
		status, ok := domain.ParseStatus(string(opts.Status))
		if !ok {
			return nil, apperr.Validationf(op, "unknown status %q", opts.Status)
		}
		filter.Status = status
	}
	filter.Limit = opts.Limit
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if opts.Offset > 0 {
		filter.Offset = opts.Offset
	}

	list, err := s.store.ListProjects(ctx, filter)
	if err != nil {
		return nil, storage.AppError(op, err)
	}
	if list == nil {
		list = []*domain.Project{}
	}
	return list, nil
}

func scopedFilter(op string, actor policy.Actor, scope policy.Scope) (storage.ProjectFilter, error) {
	switch scope {
	case policy.ScopeSelf:
		id := actor.UserID
		return storage.ProjectFilter{OwnerID: &id}, nil
	case policy.ScopeOrganization:
		orgID, _ := actor.Tenant.OrganizationID()
		return storage.ProjectFilter{OrganizationID: &orgID}, nil
	}
	return storage.ProjectFilter{}, apperr.E(apperr.KindInternal, op, "unscoped decision")
}

// Comments returns a project's comments, oldest first
func (s *Service) Comments(ctx context.Context, actor policy.Actor, projectID int64) ([]*domain.ProjectComment, error) {
	const op = "projects.Comments"

	if _, err := s.loadAuthorized(ctx, op, actor, projectID, policy.ActionReadComments); err != nil {
		return nil, err
	}

	list, err := s.store.ListComments(ctx, projectID)
	if err != nil {
		return nil, storage.AppError(op, err)
	}
	if list == nil {
		list = []*domain.ProjectComment{}
	}
	return list, nil
}

// AddComment appends a reviewer's comment without changing the status
func (s *Service) AddComment(ctx context.Context, actor policy.Actor, projectID int64, content string) (*domain.ProjectComment, error) {
	const op = "projects.AddComment"

	if d := s.policy.Authorize(actor, nil, policy.ActionCreateComment); !d.Allowed {
		return nil, d.Err(op)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.E(apperr.KindValidation, op, "content is required")
	}
	if len(content) > MaxCommentLength {
		return nil, apperr.Validationf(op, "content must be at most %d characters", MaxCommentLength)
	}

	project, err := s.loadAuthorized(ctx, op, actor, projectID, policy.ActionCreateComment)
	if err != nil {
		return nil, err
	}

	comment := &domain.ProjectComment{
		ProjectID:  project.ID,
		Content:    content,
		AuthorRole: actor.Level,
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, storage.AppError(op, err)
	}
	return comment, nil
}

// Dashboard returns project counts by status in the actor's scope. Results
// may be up to statscache.TTL stale.
func (s *Service) Dashboard(ctx context.Context, actor policy.Actor) (domain.ProjectStats, error) {
	const op = "projects.Dashboard"

	d := s.policy.Authorize(actor, nil, policy.ActionViewDashboardAggregate)
	if d.Reason == policy.ReasonNoTenant {
		return domain.ProjectStats{}, nil
	}
	if !d.Allowed {
		return domain.ProjectStats{}, d.Err(op)
	}

	filter, err := scopedFilter(op, actor, d.Scope)
	if err != nil {
		return domain.ProjectStats{}, err
	}

	compute := func(ctx context.Context) (domain.ProjectStats, error) {
		counts, err := s.store.CountProjectsByStatus(ctx, filter)
		if err != nil {
			return domain.ProjectStats{}, err
		}
		var stats domain.ProjectStats
		for status, n := range counts {
			stats.Add(status, n)
		}
		return stats, nil
	}

	if s.cache == nil {
		stats, err := compute(ctx)
		if err != nil {
			return domain.ProjectStats{}, storage.AppError(op, err)
		}
		return stats, nil
	}

	orgID, _ := actor.Tenant.OrganizationID()
	key := statscache.Key{OrganizationID: orgID, Level: actor.Level, UserID: actor.UserID}
	stats, _, err := s.cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		return domain.ProjectStats{}, storage.AppError(op, err)
	}
	return stats, nil
}
