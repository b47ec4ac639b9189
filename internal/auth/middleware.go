package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// OwnerSubject is the JWT subject issued to the catalog owner.
const OwnerSubject = "owner"

// CookieName is the HttpOnly cookie carrying the session token.
const CookieName = "token"

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or shadow the session stored under it.
type contextKey string

const sessionKey contextKey = "session"

var errNoToken = errors.New("auth: no token")

// RequireAuth is a middleware that enforces the owner login on write routes.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new one that wraps it:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	        // ... after ...
//	    })
//	}
//
// TOKEN SOURCES:
// The browser sends the "token" HttpOnly cookie set at login. snippetctl
// sends "Authorization: Bearer <jwt>" instead.
//
// A nil tokens disables the check: a catalog with no owner password
// configured is open for writes.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokens == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := extractSession(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session RequireAuth validated, or
// (Session{}, false) when the request carried none.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// extractSession reads the token from the Authorization header or the
// cookie (header first) and validates it.
func extractSession(r *http.Request, tokens *TokenService) (Session, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return Session{}, errNoToken
		}
		return tokens.Validate(strings.TrimSpace(token))
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Session{}, errNoToken
	}
	return tokens.Validate(cookie.Value)
}
