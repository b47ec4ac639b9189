package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/snippet-catalog/internal/auth"
)

// Authenticator verifies the owner password and issues a session token.
type Authenticator interface {
	Login(ctx context.Context, password string) (token string, expires time.Time, err error)
}

// AuthHandler manages owner login and logout.
type AuthHandler struct {
	owner  Authenticator
	secure bool
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secure marks the session cookie
// HTTPS-only; leave it false for local development.
func NewAuthHandler(owner Authenticator, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{owner: owner, secure: secure, logger: logger}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleLogin exchanges the owner password for a session.
//
// HTTP: POST /auth/login
// REQUEST BODY: {"password": "..."}
//
// The token is set as an HttpOnly cookie for the browser and also returned
// in the body for snippetctl, which sends it back as a Bearer header.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	token, expires, err := h.owner.Login(r.Context(), body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	// HttpOnly: JavaScript cannot read it (XSS protection).
	// SameSite=Lax: sent on top-level navigations, not cross-site POSTs.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so "logout" just deletes the cookie. The token
// itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
