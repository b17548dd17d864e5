package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

var tracer = otel.Tracer("pitchdesk/storage/postgres")

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries holds every statement shared by the store and its transactions
type queries struct {
	q       querier
	dialect Dialect
	onFault func(op string, fault storage.Fault)
}

// Store implements storage.Store over database/sql
type Store struct {
	queries
	db         *sql.DB
	logger     *logrus.Logger
	txAttempts int
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for retry and rollback diagnostics
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithFaultHook registers a callback invoked once per classified fault
func WithFaultHook(fn func(op string, fault storage.Fault)) Option {
	return func(s *Store) { s.onFault = fn }
}

// WithTxAttempts bounds how often RunInTx retries a conflicting transaction
func WithTxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.txAttempts = n
		}
	}
}

// New creates a Store over an open database
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		queries:    queries{q: db, dialect: dialect},
		db:         db,
		logger:     logrus.StandardLogger(),
		txAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL variant in use
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.wrapFault("ping", s.db.PingContext(ctx))
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn inside one transaction. Serialization conflicts are
// retried up to the configured number of attempts; the final conflict is
// returned as a storage.FaultConflict error.
func (s *Store) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	ctx, span := tracer.Start(ctx, "Store.RunInTx",
		trace.WithAttributes(attribute.String("db.system", string(s.dialect))),
	)
	defer span.End()

	var err error
	for attempt := 1; attempt <= s.txAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil {
			span.SetAttributes(attribute.Int("db.tx.attempts", attempt))
			return nil
		}
		fault, ok := storage.FaultOf(err)
		if !ok || fault != storage.FaultConflict || ctx.Err() != nil {
			break
		}
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Transaction conflict, retrying")
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "transaction failed")
	return err
}

func (s *Store) runOnce(ctx context.Context, fn func(tx storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.txOptions())
	if err != nil {
		return s.wrapFault("begin", err)
	}

	tx := &txStore{queries: queries{q: sqlTx, dialect: s.dialect, onFault: s.onFault}}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return s.wrapFault("commit", err)
	}
	return nil
}

// txStore is the storage.Tx handed to RunInTx callbacks
type txStore struct {
	queries
}

var _ storage.Tx = (*txStore)(nil)

// GetProjectForUpdate loads a project and locks its row
func (t *txStore) GetProjectForUpdate(ctx context.Context, id int64) (*domain.Project, error) {
	return t.getProject(ctx, id, true)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// Users

const userColumns = `id, name, email, password_hash, role, organization_id, avatar_url, created_at`

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	var level string
	var orgID sql.NullInt64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &level, &orgID, &u.AvatarURL, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Level = domain.Level(level)
	if orgID.Valid {
		id := orgID.Int64
		u.OrganizationID = &id
	}
	return &u, nil
}

// GetUser retrieves a user by ID
func (s *queries) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, s.wrapFault("get user", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *queries) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, s.wrapFault("get user by email", err)
	}
	return u, nil
}

// CreateUser inserts a user and sets its ID and CreatedAt
func (s *queries) CreateUser(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO users (name, email, password_hash, role, organization_id, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.q.QueryRowContext(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.Level),
		nullInt64(user.OrganizationID),
		user.AvatarURL,
		user.CreatedAt,
	).Scan(&user.ID)
	return s.wrapFault("create user", err)
}

// ListMembers returns every user of an organization
func (s *queries) ListMembers(ctx context.Context, orgID int64) ([]*domain.User, error) {
	return s.listUsers(ctx, "list members",
		`SELECT `+userColumns+` FROM users WHERE organization_id = $1 ORDER BY id`, orgID)
}

// ListReviewers returns the admins and experts of an organization
func (s *queries) ListReviewers(ctx context.Context, orgID int64) ([]*domain.User, error) {
	return s.listUsers(ctx, "list reviewers",
		`SELECT `+userColumns+` FROM users WHERE organization_id = $1 AND role IN ('admin', 'expert') ORDER BY id`, orgID)
}

func (s *queries) listUsers(ctx context.Context, op, query string, args ...interface{}) ([]*domain.User, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrapFault(op, err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, s.wrapFault(op, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapFault(op, err)
	}
	return users, nil
}

// UpdateUserLevel changes a user's level
func (s *queries) UpdateUserLevel(ctx context.Context, userID int64, level domain.Level) error {
	res, err := s.q.ExecContext(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(level), userID)
	return s.expectAffected("update user level", res, err)
}

// Organizations

const orgColumns = `id, name, slug, logo_url, created_at`

func scanOrganization(row scanner) (*domain.Organization, error) {
	var o domain.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.LogoURL, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrganization retrieves an organization by ID
func (s *queries) GetOrganization(ctx context.Context, id int64) (*domain.Organization, error) {
	o, err := scanOrganization(s.q.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
	if err != nil {
		return nil, s.wrapFault("get organization", err)
	}
	return o, nil
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *queries) GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	o, err := scanOrganization(s.q.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1`, slug))
	if err != nil {
		return nil, s.wrapFault("get organization by slug", err)
	}
	return o, nil
}

// CreateOrganization inserts an organization and sets its ID and CreatedAt
func (s *queries) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO organizations (name, slug, logo_url, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		org.Name, org.Slug, org.LogoURL, org.CreatedAt,
	).Scan(&org.ID)
	return s.wrapFault("create organization", err)
}

// Projects

const projectSelect = `
	SELECT p.id, p.title, p.description, p.contact, p.status, p.file_url, p.user_id, p.created_at, u.organization_id
	FROM projects p
	JOIN users u ON u.id = p.user_id
`

func scanProject(row scanner) (*domain.Project, error) {
	var p domain.Project
	var status string
	var orgID sql.NullInt64
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Contact, &status, &p.FileURL, &p.UserID, &p.CreatedAt, &orgID); err != nil {
		return nil, err
	}
	p.Status = domain.Status(status)
	if orgID.Valid {
		id := orgID.Int64
		p.OwnerOrganizationID = &id
	}
	return &p, nil
}

// CreateProject inserts a project and sets its ID and CreatedAt. Status
// defaults to PENDING.
func (s *queries) CreateProject(ctx context.Context, project *domain.Project) error {
	if project.Status == "" {
		project.Status = domain.StatusPending
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO projects (title, description, contact, status, file_url, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.q.QueryRowContext(ctx, query,
		project.Title,
		project.Description,
		project.Contact,
		string(project.Status),
		project.FileURL,
		project.UserID,
		project.CreatedAt,
	).Scan(&project.ID)
	return s.wrapFault("create project", err)
}

// GetProject retrieves a project together with its owner's organization
func (s *queries) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	return s.getProject(ctx, id, false)
}

func (s *queries) getProject(ctx context.Context, id int64, lock bool) (*domain.Project, error) {
	query := projectSelect + ` WHERE p.id = $1`
	if lock {
		query += s.dialect.forUpdate()
	}
	p, err := scanProject(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, s.wrapFault("get project", err)
	}
	return p, nil
}

// projectWhere builds the scoped WHERE clause for a filter
func projectWhere(filter storage.ProjectFilter) (string, []interface{}, error) {
	var conds []string
	var args []interface{}

	switch {
	case filter.OwnerID != nil:
		args = append(args, *filter.OwnerID)
		conds = append(conds, fmt.Sprintf("p.user_id = $%d", len(args)))
	case filter.OrganizationID != nil:
		args = append(args, *filter.OrganizationID)
		conds = append(conds, fmt.Sprintf("u.organization_id = $%d", len(args)))
	default:
		return "", nil, errors.New("project filter needs an owner or an organization")
	}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("p.status = $%d", len(args)))
	}

	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// ListProjects lists projects in a scope, newest first
func (s *queries) ListProjects(ctx context.Context, filter storage.ProjectFilter) ([]*domain.Project, error) {
	where, args, err := projectWhere(filter)
	if err != nil {
		return nil, err
	}

	query := projectSelect + where + ` ORDER BY p.created_at DESC, p.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrapFault("list projects", err)
	}
	defer rows.Close()

	projects := make([]*domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, s.wrapFault("list projects", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapFault("list projects", err)
	}
	return projects, nil
}

// CountProjectsByStatus counts projects in a scope grouped by status.
// Limit and Offset are ignored.
func (s *queries) CountProjectsByStatus(ctx context.Context, filter storage.ProjectFilter) (map[domain.Status]int64, error) {
	where, args, err := projectWhere(filter)
	if err != nil {
		return nil, err
	}

	query := `SELECT p.status, COUNT(*) FROM projects p JOIN users u ON u.id = p.user_id` + where + ` GROUP BY p.status`
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrapFault("count projects", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, s.wrapFault("count projects", err)
		}
		counts[domain.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapFault("count projects", err)
	}
	return counts, nil
}

// UpdateProjectStatus sets a project's status
func (s *queries) UpdateProjectStatus(ctx context.Context, id int64, status domain.Status) error {
	res, err := s.q.ExecContext(ctx, `UPDATE projects SET status = $1 WHERE id = $2`, string(status), id)
	return s.expectAffected("update project status", res, err)
}

// Comments

// CreateComment appends a comment and sets its ID and CreatedAt
func (s *queries) CreateComment(ctx context.Context, comment *domain.ProjectComment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO project_comments (project_id, content, author_role, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		comment.ProjectID, comment.Content, string(comment.AuthorRole), comment.CreatedAt,
	).Scan(&comment.ID)
	return s.wrapFault("create comment", err)
}

// ListComments returns a project's comments, oldest first
func (s *queries) ListComments(ctx context.Context, projectID int64) ([]*domain.ProjectComment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, project_id, content, author_role, created_at FROM project_comments WHERE project_id = $1 ORDER BY created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, s.wrapFault("list comments", err)
	}
	defer rows.Close()

	comments := make([]*domain.ProjectComment, 0)
	for rows.Next() {
		var c domain.ProjectComment
		var role string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Content, &role, &c.CreatedAt); err != nil {
			return nil, s.wrapFault("list comments", err)
		}
		c.AuthorRole = domain.Level(role)
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapFault("list comments", err)
	}
	return comments, nil
}

// Notifications

const notificationColumns = `id, user_id, title, message, is_read, created_at`

func scanNotification(row scanner) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification inserts an unread notification and sets its ID and CreatedAt
func (s *queries) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.IsRead = false
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, title, message, is_read, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		n.UserID, n.Title, n.Message, false, n.CreatedAt,
	).Scan(&n.ID)
	return s.wrapFault("create notification", err)
}

// GetNotification retrieves a notification by ID
func (s *queries) GetNotification(ctx context.Context, id int64) (*domain.Notification, error) {
	n, err := scanNotification(s.q.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		return nil, s.wrapFault("get notification", err)
	}
	return n, nil
}

// ListNotifications returns a user's notifications, newest first
func (s *queries) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []interface{}{userID}
	if unreadOnly {
		args = append(args, false)
		query += fmt.Sprintf(" AND is_read = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrapFault("list notifications", err)
	}
	defer rows.Close()

	notifications := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, s.wrapFault("list notifications", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapFault("list notifications", err)
	}
	return notifications, nil
}

// CountUnread counts a user's unread notifications
func (s *queries) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = $2`, userID, false,
	).Scan(&n)
	if err != nil {
		return 0, s.wrapFault("count unread", err)
	}
	return n, nil
}

// MarkNotificationRead marks one notification read
func (s *queries) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `UPDATE notifications SET is_read = $1 WHERE id = $2`, true, id)
	return s.expectAffected("mark notification read", res, err)
}

// MarkAllNotificationsRead marks every unread notification of a user read
// and returns how many changed.
func (s *queries) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE notifications SET is_read = $1 WHERE user_id = $2 AND is_read = $3`, true, userID, false)
	if err != nil {
		return 0, s.wrapFault("mark all notifications read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrapFault("mark all notifications read", err)
	}
	return n, nil
}

// PurgeReadNotifications deletes read notifications created before olderThan
func (s *queries) PurgeReadNotifications(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = $1 AND created_at < $2`, true, olderThan.UTC())
	if err != nil {
		return 0, s.wrapFault("purge notifications", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrapFault("purge notifications", err)
	}
	return n, nil
}

// expectAffected turns a zero-row update into storage.ErrNotFound
func (s *queries) expectAffected(op string, res sql.Result, err error) error {
	if err != nil {
		return s.wrapFault(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.wrapFault(op, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
