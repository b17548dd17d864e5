package api

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/httputil"
	"github.com/platinummonkey/pitchdesk/pkg/projects"
	"github.com/platinummonkey/pitchdesk/pkg/review"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files
const multipartMemory = 8 << 20

// ProjectHandlers serves projects, their comments and reviews, and the
// dashboard
type ProjectHandlers struct {
	projects *projects.Service
	review   *review.Machine
	cfg      Config
}

// NewProjectHandlers creates ProjectHandlers
func NewProjectHandlers(svc *projects.Service, machine *review.Machine, cfg Config) *ProjectHandlers {
	return &ProjectHandlers{projects: svc, review: machine, cfg: cfg}
}

// RegisterRoutes registers project routes
func (h *ProjectHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects", h.List).Methods(http.MethodGet)
	router.HandleFunc("/projects", h.Submit).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id}/comments", h.Comments).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id}/comments", h.AddComment).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id}/review", h.Review).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id}/status", h.ChangeStatus).Methods(http.MethodPut)

	router.HandleFunc("/dashboard/stats", h.Dashboard).Methods(http.MethodGet)
}

// List handles GET /api/v1/projects?status=&limit=&offset=
func (h *ProjectHandlers) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", projects.DefaultListLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	list, err := h.projects.List(r.Context(), actor, projects.ListOptions{
		Status: domain.Status(strings.ToUpper(r.URL.Query().Get("status"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// Submit handles POST /api/v1/projects. The body is either JSON or
// multipart/form-data with an optional "file" part.
func (h *ProjectHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}

	var in projects.SubmitInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if r.ContentLength > h.cfg.MaxUploadSize {
			httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			}
			httputil.WriteBadRequest(w, "invalid multipart body")
			return
		}
		defer r.MultipartForm.RemoveAll()

		in.Title = r.FormValue("title")
		in.Description = r.FormValue("description")
		in.Contact = r.FormValue("contact")

		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			in.File = &projects.Upload{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Body:        file,
			}
		case !errors.Is(err, http.ErrMissingFile):
			httputil.WriteBadRequest(w, "invalid file part")
			return
		}
	} else if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	project, err := h.projects.Submit(r.Context(), actor, in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// Get handles GET /api/v1/projects/{id}
func (h *ProjectHandlers) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.projects.Get(r.Context(), actor, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// Comments handles GET /api/v1/projects/{id}/comments
func (h *ProjectHandlers) Comments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	comments, err := h.projects.Comments(r.Context(), actor, id)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, comments)
}

type commentRequest struct {
	Content string `json:"content"`
}

// AddComment handles POST /api/v1/projects/{id}/comments
func (h *ProjectHandlers) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req commentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	comment, err := h.projects.AddComment(r.Context(), actor, id, req.Content)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, comment)
}

// Review handles POST /api/v1/projects/{id}/review
func (h *ProjectHandlers) Review(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req review.Request
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.ProjectID = id

	outcome, err := h.review.Review(r.Context(), actor, req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, outcome)
}

type statusRequest struct {
	Status domain.Status `json:"status"`
}

// ChangeStatus handles PUT /api/v1/projects/{id}/status
func (h *ProjectHandlers) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	outcome, err := h.review.ChangeStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, outcome)
}

// Dashboard handles GET /api/v1/dashboard/stats
func (h *ProjectHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrError(w, r)
	if !ok {
		return
	}
	stats, err := h.projects.Dashboard(r.Context(), actor)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}
