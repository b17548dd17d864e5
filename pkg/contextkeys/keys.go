// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here. Typed
// accessors for values owned by other packages live next to those packages
// (for example middleware.ActorFrom).
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ActorKey contains policy.Actor
	// Set by: middleware.Authenticator
	// Required by: all protected API endpoints
	ActorKey Key = "actor"

	// UserKey contains *domain.User, the revalidated caller
	// Set by: middleware.Authenticator
	UserKey Key = "user"

	// RequestIDKey contains request ID string (UUID)
	// Set by: api request id middleware
	// Used by: logger, error responses
	RequestIDKey Key = "request_id"

	// UserIDKey contains the caller's user id
	// Set by: middleware.Authenticator
	// Used by: logger
	UserIDKey Key = "user_id"

	// LoggerKey contains *logrus.Logger
	// Set by: api logging middleware
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
