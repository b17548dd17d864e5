// Package session issues and verifies signed session credentials.
//
// A session is an HS256 JWT carrying the user id and the level the user had
// when the token was issued. Verify checks only the signature and expiry;
// Revalidate re-reads the user so that deleted accounts and changed levels
// are refused on the next request.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
	"github.com/platinummonkey/pitchdesk/pkg/domain"
	"github.com/platinummonkey/pitchdesk/pkg/storage"
)

// CookieName is the cookie that carries the session token
const CookieName = "pitchdesk_session"

// Claims is the JWT payload
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the verified identity carried by a token
type Principal struct {
	UserID int64
	Level  domain.Level
}

// Manager signs and verifies session tokens
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager. The secret must be at least 32 bytes.
func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for user
func (m *Manager) Issue(user *domain.User) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		UserID: user.ID,
		Role:   string(user.Level),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks a raw token. Any failure is Unauthenticated.
func (m *Manager) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, apperr.E(apperr.KindUnauthenticated, "session.Verify", "missing session")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, apperr.E(apperr.KindUnauthenticated, "session.Verify", "invalid or expired session")
	}

	level, ok := domain.ParseLevel(claims.Role)
	if !ok || claims.UserID <= 0 {
		return Principal{}, apperr.E(apperr.KindUnauthenticated, "session.Verify", "invalid session claims")
	}

	return Principal{UserID: claims.UserID, Level: level}, nil
}

// Revalidate re-reads the principal's user. A missing user or a level that
// no longer matches the token is InvalidSession; store faults pass through.
func (m *Manager) Revalidate(ctx context.Context, users storage.UserReader, p Principal) (*domain.User, error) {
	user, err := users.GetUser(ctx, p.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.E(apperr.KindInvalidSession, "session.Revalidate", "session no longer valid")
	}
	if err != nil {
		return nil, storage.AppError("session.Revalidate", err)
	}
	if user.Level != p.Level {
		return nil, apperr.E(apperr.KindInvalidSession, "session.Revalidate", "session no longer valid")
	}
	return user, nil
}

// FromBearer extracts the token from an Authorization header value
func FromBearer(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
