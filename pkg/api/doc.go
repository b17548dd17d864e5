// Package api is the pitchdesk HTTP API.
//
// Routes live under /api/v1. Registration, login and logout are public;
// everything else passes through middleware.Authenticator, which verifies
// the session, re-reads the user and resolves their organization on every
// request. Handlers decode the request, call one service and hand any error
// to httputil.WriteAppError, so cross-tenant reads look exactly like missing
// rows.
//
// The server also exposes /healthz, /readyz and /metrics when configured:
//
//	srv := api.NewServer(cfg, services, logger,
//		api.WithMetrics(metrics, registry),
//		api.WithHealth(checker),
//		api.WithLoginLimiter(limiter),
//		api.WithTracing(true),
//	)
//	http.ListenAndServe(":8080", srv)
package api
