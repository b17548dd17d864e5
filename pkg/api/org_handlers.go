package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/httputil"
	"github.com/platinummonkey/pitchdesk/pkg/orgs"
)

// OrgHandlers serves the caller's organization and its members
type OrgHandlers struct {
	orgs *orgs.Service
}

// NewOrgHandlers creates OrgHandlers
func NewOrgHandlers(svc *orgs.Service) *OrgHandlers {
	return &OrgHandlers{orgs: svc}
}

// RegisterRoutes registers organization routes
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/org", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/org/members", h.ListMembers).Methods(http.MethodGet)
	router.HandleFunc("/org/members/{user_id}/role", h.SetMemberRole).Methods(http.MethodPut)
}

// Get handles GET /api/v1/org
func (h *OrgHandlers) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	org, err := h.orgs.Get(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// ListMembers handles GET /api/v1/org/members
func (h *OrgHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	members, err := h.orgs.ListMembers(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

type roleRequest struct {
	Role domain.Level `json:"role"`
}

// SetMemberRole handles PUT /api/v1/org/members/{user_id}/role
func (h *OrgHandlers) SetMemberRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	member, err := h.orgs.SetMemberLevel(r.Context(), actor, userID, req.Role)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}
