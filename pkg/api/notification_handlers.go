package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/httputil"
	"github.com/platinummonkey/pitchdesk/pkg/notify"
)

// Notification page sizes
const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationHandlers serves the caller's notifications
type NotificationHandlers struct {
	notifications *notify.Dispatcher
}

// NewNotificationHandlers creates NotificationHandlers
func NewNotificationHandlers(d *notify.Dispatcher) *NotificationHandlers {
	return &NotificationHandlers{notifications: d}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications", h.List).Methods(http.MethodGet)
	router.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
	router.HandleFunc("/notifications/read-all", h.MarkAllRead).Methods(http.MethodPost)
	router.HandleFunc("/notifications/{id}/read", h.MarkRead).Methods(http.MethodPost)
}

// List handles GET /api/v1/notifications?unread=true&limit=
func (h *NotificationHandlers) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}

	unread, err := httputil.ParseQueryBool(r, "unread", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", defaultNotificationLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if limit <= 0 || limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	list, err := h.notifications.List(r.Context(), actor.UserID, unread, limit)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Notification{}
	}
	httputil.WriteSuccess(w, list)
}

// UnreadCount handles GET /api/v1/notifications/unread-count
func (h *NotificationHandlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"count": n})
}

// MarkRead handles POST /api/v1/notifications/{id}/read
func (h *NotificationHandlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(r.Context(), actor.UserID, id); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// MarkAllRead handles POST /api/v1/notifications/read-all
func (h *NotificationHandlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"updated": n})
}
