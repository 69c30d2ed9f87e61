package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/mwestergaard/hearth/internal/models"
	pkghttp "github.com/mwestergaard/hearth/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing the resolved session in context
	SessionContextKey contextKey = "session"
)

// SessionValidator resolves a bearer token to a live session
type SessionValidator interface {
	Validate(token string) (*models.Session, bool)
}

// Middleware validates the bearer token and injects the session into context
func Middleware(sessions SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Missing or malformed authorization header")
				return
			}

			session, ok := sessions.Validate(token)
			if !ok {
				// Unknown and expired tokens are indistinguishable to the client
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission enforces the role-permission matrix for one action.
// Must be mounted after Middleware. Denials are 403, distinct from the 401
// of a failed authentication, so clients can tell "log in again" from
// "you lack rights".
func RequirePermission(action string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r)
			if session == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !models.HasPermission(session.Role, action) {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from a standard Authorization header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// SessionFromContext extracts the resolved session from the request context
func SessionFromContext(r *http.Request) *models.Session {
	session, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}
