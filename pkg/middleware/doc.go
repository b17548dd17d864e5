// Package middleware holds the request authentication and rate limiting
// middleware.
//
// Authenticator reads the session from the Authorization header or the
// session cookie, revalidates it against the identity store and resolves the
// caller's tenant. Identity is never taken from request headers such as
// X-User-Id. Handlers read the result with ActorFrom and UserFrom:
//
//	authn := middleware.NewAuthenticator(sessions, store, cfg.Session.CookieName)
//	protected := router.NewRoute().Subrouter()
//	protected.Use(authn.Handler)
//
// RateLimit guards the login and registration endpoints. MemoryLimiter keeps
// per-key token buckets in an expiring LRU; RedisLimiter shares a fixed
// window between instances and lets requests through when Redis is down.
//
//	limiter := middleware.NewMemoryLimiter(middleware.DefaultRateLimitConfig())
//	r.Handle("/login", middleware.RateLimit(limiter, middleware.ByClientIP(false))(login))
package middleware
