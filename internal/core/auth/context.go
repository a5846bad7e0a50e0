// Package auth provides the session context and authorization functions.
// Sessions are issued by the external identity provider; this package only
// carries the verified result through a request.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const authContextKey contextKey = "auth"

// =============================================================================
// Types
// =============================================================================

// Context represents the authentication context for a request.
type Context struct {
	// UserID is the identity provider's subject for the signed-in user.
	UserID string

	// SessionID identifies the session the token was issued for, if any.
	SessionID string

	// Authenticated indicates whether the request carried a valid session.
	Authenticated bool
}

// Anonymous returns an unauthenticated context.
func Anonymous() Context {
	return Context{Authenticated: false}
}

// Authenticated returns a context for a verified session.
func Authenticated(userID, sessionID string) Context {
	if userID == "" {
		return Anonymous()
	}
	return Context{UserID: userID, SessionID: sessionID, Authenticated: true}
}

// =============================================================================
// Token Extraction
// =============================================================================

const (
	// HeaderAuthorization carries "Bearer <token>".
	HeaderAuthorization = "Authorization"

	// DefaultSessionCookie is the cookie the identity provider sets for browsers.
	DefaultSessionCookie = "__session"
)

// HeaderGetter is an interface for getting header values.
// This allows testing without requiring an http.Request.
type HeaderGetter interface {
	Get(key string) string
}

// BearerToken returns the token from an Authorization header value, or "".
// The scheme is matched case-insensitively.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// TokenFromHeaders returns the bearer token carried in headers, or "".
func TokenFromHeaders(headers HeaderGetter) string {
	return BearerToken(headers.Get(HeaderAuthorization))
}

// TokenFromRequest returns the session token from the Authorization header,
// falling back to the named session cookie.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if token := TokenFromHeaders(r.Header); token != "" {
		return token
	}
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// =============================================================================
// Context Storage
// =============================================================================

// WithContext stores the auth context in the request context.
func WithContext(ctx context.Context, authCtx Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext retrieves the auth context from the request context.
// If no auth context is found, returns an unauthenticated context.
func FromContext(ctx context.Context) Context {
	if authCtx, ok := ctx.Value(authContextKey).(Context); ok {
		return authCtx
	}
	return Anonymous()
}

// =============================================================================
// Helper Types for Testing
// =============================================================================

// MapHeaderGetter wraps a map to implement HeaderGetter interface.
// This is useful for testing without creating http.Request objects.
type MapHeaderGetter map[string]string

func (m MapHeaderGetter) Get(key string) string {
	return m[key]
}
