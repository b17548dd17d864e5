package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/pitchdesk/pkg/auth"
	"github.com/platinummonkey/pitchdesk/pkg/httputil"
)

// AuthHandlers serves registration, login and the current user
type AuthHandlers struct {
	auth *auth.Service
	cfg  Config
}

// NewAuthHandlers creates AuthHandlers
func NewAuthHandlers(svc *auth.Service, cfg Config) *AuthHandlers {
	return &AuthHandlers{auth: svc, cfg: cfg}
}

// RegisterPublicRoutes registers routes that need no session. wrap guards
// the credential endpoints.
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router, wrap func(http.HandlerFunc) http.Handler) {
	router.Handle("/auth/register", wrap(h.Register)).Methods(http.MethodPost)
	router.Handle("/auth/login", wrap(h.Login)).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
}

// RegisterRoutes registers routes that need a session
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	in.IPAddress = httputil.ClientIP(r, h.cfg.TrustProxy)

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// Login handles POST /api/v1/auth/login. The token is returned in the body
// and set as an HttpOnly cookie.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	in.IPAddress = httputil.ClientIP(r, h.cfg.TrustProxy)

	sess, err := h.auth.Login(r.Context(), in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteSuccess(w, sess)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.WriteNoContent(w)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userOrError(w, r)
	if !ok {
		return
	}
	profile, err := h.auth.Me(r.Context(), user)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, profile)
}
