// Package notify writes in-app notifications and sends best-effort email.
//
// A notification has exactly one recipient; a broadcast is one row per
// recipient. Broadcast rows are written independently, so a failure for one
// reviewer is logged and counted but neither stops nor undoes the others.
package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

// Recipient kinds reported to the Observer
const (
	KindOwner    = "owner"
	KindReviewer = "reviewer"
)

// Store is the persistence the dispatcher needs
type Store interface {
	storage.NotificationStore
	ListReviewers(ctx context.Context, orgID int64) ([]*domain.User, error)
}

// Observer is told about every attempted notification write
type Observer func(kind string, err error)

// FanOutResult summarises a broadcast
type FanOutResult struct {
	Sent   int
	Failed int
}

// Dispatcher creates and manages notifications
type Dispatcher struct {
	store       Store
	logger      *logrus.Logger
	observer    Observer
	concurrency int
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithObserver registers a callback for each write attempt
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithConcurrency bounds parallel writes during a broadcast
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(store Store, logger *logrus.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Dispatcher{store: store, logger: logger, concurrency: 4}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) observe(kind string, err error) {
	if d.observer != nil {
		d.observer(kind, err)
	}
}

// NotifyOwner writes one notification to ownerID
func (d *Dispatcher) NotifyOwner(ctx context.Context, ownerID int64, title, message string) (*domain.Notification, error) {
	n := &domain.Notification{UserID: ownerID, Title: title, Message: message}
	err := d.store.CreateNotification(ctx, n)
	d.observe(KindOwner, err)
	if err != nil {
		return nil, storage.AppError("notify.NotifyOwner", err)
	}
	return n, nil
}

// NotifyOrgReviewers writes one notification to each distinct admin or
// expert of orgID other than excludeUserID. Individual failures are logged
// and counted; only a failure to list the reviewers is returned.
func (d *Dispatcher) NotifyOrgReviewers(ctx context.Context, orgID, excludeUserID int64, title, message string) (FanOutResult, error) {
	reviewers, err := d.store.ListReviewers(ctx, orgID)
	if err != nil {
		return FanOutResult{}, storage.AppError("notify.NotifyOrgReviewers", err)
	}

	seen := make(map[int64]bool, len(reviewers))
	recipients := make([]int64, 0, len(reviewers))
	for _, r := range reviewers {
		if r.ID == excludeUserID || seen[r.ID] {
			continue
		}
		// ListReviewers is already org-scoped; this guards against a stale row
		if r.OrganizationID == nil || *r.OrganizationID != orgID || !r.Level.IsReviewer() {
			continue
		}
		seen[r.ID] = true
		recipients = append(recipients, r.ID)
	}

	var sent, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, userID := range recipients {
		userID := userID
		g.Go(func() error {
			n := &domain.Notification{UserID: userID, Title: title, Message: message}
			err := d.store.CreateNotification(gctx, n)
			d.observe(KindReviewer, err)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				d.logger.WithFields(logrus.Fields{
					"organization_id": orgID,
					"recipient_id":    userID,
					"error":           err,
				}).Warn("Failed to notify reviewer")
				return nil
			}
			atomic.AddInt64(&sent, 1)
			return nil
		})
	}
	_ = g.Wait()

	return FanOutResult{Sent: int(sent), Failed: int(failed)}, nil
}

// MarkRead marks one of userID's notifications read
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id int64) error {
	const op = "notify.MarkRead"

	n, err := d.store.GetNotification(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.E(apperr.KindNotFound, op, "notification not found")
	}
	if err != nil {
		return storage.AppError(op, err)
	}
	if n.UserID != userID {
		return apperr.E(apperr.KindForbidden, op, "forbidden")
	}
	if n.IsRead {
		return nil
	}
	return storage.AppError(op, d.store.MarkNotificationRead(ctx, id))
}

// MarkAllRead marks all of userID's notifications read
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := d.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, storage.AppError("notify.MarkAllRead", err)
	}
	return n, nil
}

// List returns userID's notifications, newest first
func (d *Dispatcher) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	list, err := d.store.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, storage.AppError("notify.List", err)
	}
	return list, nil
}

// UnreadCount counts userID's unread notifications
func (d *Dispatcher) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	n, err := d.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, storage.AppError("notify.UnreadCount", err)
	}
	return n, nil
}
