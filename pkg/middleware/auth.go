package middleware

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/contextkeys"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/httputil"
	"github.com/platinummonkey/pitchdesk/pkg/observability"
	"github.com/platinummonkey/pitchdesk/pkg/policy"
	"github.com/platinummonkey/pitchdesk/pkg/session"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
	"github.com/platinummonkey/pitchdesk/pkg/tenant"
)

// Authenticator turns a session credential into a policy.Actor. Every
// request re-reads the user and the tenant, so revoked accounts and moved
// members lose access immediately.
type Authenticator struct {
	sessions   *session.Manager
	users      storage.UserReader
	resolver   *tenant.Resolver
	cookieName string
}

// NewAuthenticator creates an Authenticator. An empty cookieName falls back
// to session.CookieName.
func NewAuthenticator(sessions *session.Manager, users storage.UserReader, cookieName string) *Authenticator {
	if cookieName == "" {
		cookieName = session.CookieName
	}
	return &Authenticator{
		sessions:   sessions,
		users:      users,
		resolver:   tenant.NewResolver(users),
		cookieName: cookieName,
	}
}

// Token returns the raw credential. The Authorization header wins over the
// cookie.
func (a *Authenticator) Token(r *http.Request) string {
	if raw := session.FromBearer(r.Header.Get("Authorization")); raw != "" {
		return raw
	}
	if c, err := r.Cookie(a.cookieName); err == nil {
		return c.Value
	}
	return ""
}

// Authenticate resolves the caller of r
func (a *Authenticator) Authenticate(r *http.Request) (policy.Actor, *domain.User, error) {
	ctx := r.Context()

	principal, err := a.sessions.Verify(a.Token(r))
	if err != nil {
		return policy.Actor{}, nil, err
	}

	user, err := a.sessions.Revalidate(ctx, a.users, principal)
	if err != nil {
		return policy.Actor{}, nil, err
	}

	t, err := a.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return policy.Actor{}, nil, err
	}

	return policy.Actor{UserID: user.ID, Level: user.Level, Tenant: t}, user, nil
}

// Handler rejects unauthenticated requests and stores the actor and user in
// the request context.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, user, err := a.Authenticate(r)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInvalidSession {
				a.clearCookie(w)
			}
			httputil.WriteAppError(w, r, err)
			return
		}

		ctx := WithActor(r.Context(), actor, user)
		observability.FromContext(ctx).WithFields(logrus.Fields{
			"level":  user.Level,
			"tenant": actor.Tenant.String(),
		}).Debug("Request authenticated")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// WithActor stores the authenticated caller in ctx
func WithActor(ctx context.Context, actor policy.Actor, user *domain.User) context.Context {
	ctx = context.WithValue(ctx, contextkeys.ActorKey, actor)
	ctx = context.WithValue(ctx, contextkeys.UserKey, user)
	return contextkeys.WithUserID(ctx, actor.UserID)
}

// ActorFrom returns the actor set by Authenticator
func ActorFrom(ctx context.Context) (policy.Actor, bool) {
	actor, ok := ctx.Value(contextkeys.ActorKey).(policy.Actor)
	return actor, ok
}

// UserFrom returns the revalidated user set by Authenticator
func UserFrom(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(contextkeys.UserKey).(*domain.User)
	return user, ok && user != nil
}
