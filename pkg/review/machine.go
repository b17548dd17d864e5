// Package review moves projects between review states.
//
// Every transition runs in one transaction that re-reads and locks the
// project, re-checks the tenant, appends a comment, updates the status and
// writes exactly one notification to the owner. Either all four writes
// commit or none do. Transitions are not idempotent: repeating a review
// appends another comment and another notification.
package review

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/policy"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

// MaxCommentLength bounds review comments
const MaxCommentLength = 5000

// Transactor runs a function in one store transaction
type Transactor interface {
	RunInTx(ctx context.Context, fn func(tx storage.Tx) error) error
}

// Request asks for a review of a project
type Request struct {
	ProjectID int64         `json:"-"`
	Status    domain.Status `json:"status"`
	Comment   string        `json:"comment"`
}

// Outcome is what a committed transition wrote
type Outcome struct {
	Project        *domain.Project        `json:"project"`
	PreviousStatus domain.Status          `json:"previous_status"`
	Comment        *domain.ProjectComment `json:"comment"`
	Notification   *domain.Notification   `json:"-"`
}

// TransitionObserver is told about each committed transition
type TransitionObserver func(from, to domain.Status)

// Machine runs review transitions
type Machine struct {
	store    Transactor
	policy   *policy.Engine
	logger   *logrus.Logger
	observer TransitionObserver
}

// NewMachine creates a Machine
func NewMachine(store Transactor, engine *policy.Engine, logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Machine{store: store, policy: engine, logger: logger}
}

// SetObserver registers a callback for committed transitions
func (m *Machine) SetObserver(o TransitionObserver) {
	m.observer = o
}

// Review records a reviewer's decision with their comment
func (m *Machine) Review(ctx context.Context, actor policy.Actor, req Request) (*Outcome, error) {
	const op = "review.Review"

	status, ok := domain.ParseStatus(string(req.Status))
	if !ok {
		return nil, apperr.Validationf(op, "status must be one of PENDING, ACCEPTED, REJECTED")
	}
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		return nil, apperr.E(apperr.KindValidation, op, "comment is required")
	}
	if len(comment) > MaxCommentLength {
		return nil, apperr.Validationf(op, "comment must be at most %d characters", MaxCommentLength)
	}

	return m.transition(ctx, op, actor, policy.ActionReviewProject, req.ProjectID, status, func(domain.Status) string {
		return comment
	})
}

// ChangeStatus sets a project's status directly. It goes through the same
// transaction as Review with a generated comment.
func (m *Machine) ChangeStatus(ctx context.Context, actor policy.Actor, projectID int64, status domain.Status) (*Outcome, error) {
	const op = "review.ChangeStatus"

	status, ok := domain.ParseStatus(string(status))
	if !ok {
		return nil, apperr.Validationf(op, "status must be one of PENDING, ACCEPTED, REJECTED")
	}

	return m.transition(ctx, op, actor, policy.ActionChangeStatusDirect, projectID, status, func(from domain.Status) string {
		return statusComment(from, status)
	})
}

func (m *Machine) transition(
	ctx context.Context,
	op string,
	actor policy.Actor,
	action policy.Action,
	projectID int64,
	status domain.Status,
	commentFor func(from domain.Status) string,
) (*Outcome, error) {
	// Role and tenant presence can be decided before touching the store
	if d := m.policy.Authorize(actor, nil, action); !d.Allowed {
		return nil, d.Err(op)
	}

	var out *Outcome
	err := m.store.RunInTx(ctx, func(tx storage.Tx) error {
		project, err := tx.GetProjectForUpdate(ctx, projectID)
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.E(apperr.KindNotFound, op, "project not found")
		}
		if err != nil {
			return err
		}

		if d := m.policy.Authorize(actor, policy.ProjectResource(project), action); !d.Allowed {
			return d.Err(op)
		}

		from := project.Status
		comment := &domain.ProjectComment{
			ProjectID:  project.ID,
			Content:    commentFor(from),
			AuthorRole: actor.Level,
		}
		if err := tx.CreateComment(ctx, comment); err != nil {
			return err
		}

		if err := tx.UpdateProjectStatus(ctx, project.ID, status); err != nil {
			return err
		}
		project.Status = status

		notification := OwnerNotification(project, status)
		if err := tx.CreateNotification(ctx, notification); err != nil {
			return err
		}

		out = &Outcome{
			Project:        project,
			PreviousStatus: from,
			Comment:        comment,
			Notification:   notification,
		}
		return nil
	})
	if err != nil {
		return nil, storage.AppError(op, err)
	}

	m.logger.WithFields(logrus.Fields{
		"project_id": out.Project.ID,
		"actor_id":   actor.UserID,
		"from":       out.PreviousStatus,
		"to":         status,
		"action":     action,
	}).Info("Project status changed")

	if m.observer != nil {
		m.observer(out.PreviousStatus, status)
	}
	return out, nil
}
