package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/pitchdesk/pkg/auth"
	"github.com/platinummonkey/pitchdesk/pkg/httputil"
	"github.com/platinummonkey/pitchdesk/pkg/middleware"
	"github.com/platinummonkey/pitchdesk/pkg/notify"
	"github.com/platinummonkey/pitchdesk/pkg/observability"
	"github.com/platinummonkey/pitchdesk/pkg/orgs"
	"github.com/platinummonkey/pitchdesk/pkg/projects"
	"github.com/platinummonkey/pitchdesk/pkg/review"
	"github.com/platinummonkey/pitchdesk/pkg/session"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

// Config holds the HTTP settings handlers need
type Config struct {
	MaxUploadSize int64
	TrustProxy    bool
	CookieName    string
	CookieSecure  bool
}

// Services are the domain services behind the routes
type Services struct {
	Auth          *auth.Service
	Sessions      *session.Manager
	Users         storage.UserReader
	Projects      *projects.Service
	Review        *review.Machine
	Notifications *notify.Dispatcher
	Orgs          *orgs.Service
}

// Server is the pitchdesk HTTP API
type Server struct {
	cfg     Config
	svc     Services
	logger  *logrus.Logger
	router  *mux.Router
	handler http.Handler

	authn        *middleware.Authenticator
	loginLimiter middleware.Limiter
	metrics      *observability.Metrics
	registry     *prometheus.Registry
	health       *observability.HealthChecker
	tracing      bool
}

// Option configures a Server
type Option func(*Server)

// WithMetrics records request metrics and serves /metrics from registry
func WithMetrics(m *observability.Metrics, registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = m
		s.registry = registry
	}
}

// WithHealth serves /healthz and /readyz
func WithHealth(h *observability.HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithLoginLimiter rate limits registration and login by client address
func WithLoginLimiter(l middleware.Limiter) Option {
	return func(s *Server) { s.loginLimiter = l }
}

// WithTracing wraps the API in otelhttp spans
func WithTracing(enabled bool) Option {
	return func(s *Server) { s.tracing = enabled }
}

// NewServer builds the router
func NewServer(cfg Config, svc Services, logger *logrus.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = session.CookieName
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 25 << 20
	}

	s := &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
		router: mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.authn = middleware.NewAuthenticator(svc.Sessions, svc.Users, cfg.CookieName)

	s.setupRoutes()

	var h http.Handler = s.router
	h = httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		observability.RecoveryMiddleware,
		httputil.LoggingMiddleware,
	)(h)
	if s.tracing {
		h = otelhttp.NewHandler(h, "pitchdesk")
	}
	s.handler = h
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
		if s.registry != nil {
			s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods(http.MethodGet)
		}
	}
	if s.tracing {
		s.router.Use(nameSpan)
	}
	if s.health != nil {
		observability.RegisterHealthRoutes(s.router, s.health)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	authHandlers := NewAuthHandlers(s.svc.Auth, s.cfg)
	authHandlers.RegisterPublicRoutes(api, s.limit)

	protected := api.NewRoute().Subrouter()
	protected.Use(s.authn.Handler)

	authHandlers.RegisterRoutes(protected)
	NewProjectHandlers(s.svc.Projects, s.svc.Review, s.cfg).RegisterRoutes(protected)
	NewNotificationHandlers(s.svc.Notifications).RegisterRoutes(protected)
	NewOrgHandlers(s.svc.Orgs).RegisterRoutes(protected)
}

// limit applies the login limiter when one is configured
func (s *Server) limit(h http.HandlerFunc) http.Handler {
	if s.loginLimiter == nil {
		return h
	}
	return middleware.RateLimit(s.loginLimiter, middleware.ByClientIP(s.cfg.TrustProxy))(h)
}

// nameSpan renames the otelhttp span after the matched route template
func nameSpan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + tmpl)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}
