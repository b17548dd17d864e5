package api

import (
	"net/http"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/httputil"
	"github.com/platinummonkey/pitchdesk/pkg/middleware"
	"github.com/platinummonkey/pitchdesk/pkg/policy"
)

// actorOrError returns the authenticated actor. Routes without the
// authenticator never reach here.
func actorOrError(w http.ResponseWriter, r *http.Request) (policy.Actor, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.E(apperr.KindUnauthenticated, "api", "authentication required"))
		return policy.Actor{}, false
	}
	return actor, true
}

func userOrError(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		httputil.WriteAppError(w, r, apperr.E(apperr.KindUnauthenticated, "api", "authentication required"))
		return nil, false
	}
	return user, true
}
