package service

// OwnerAuth is the login side of the single-owner model:
//
//	AuthHandler (HTTP) → OwnerAuth → PasswordService (bcrypt)
//	                               ↘ TokenService (JWT)
//
// The catalog has exactly one account. Its bcrypt hash comes from config,
// so there is no user table and no registration.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/snippet-catalog/internal/apperror"
	"github.com/sakif/snippet-catalog/internal/auth"
)

type OwnerAuth struct {
	hash      string
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewOwnerAuth creates an OwnerAuth. An empty hash or nil tokens leaves
// login disabled (Enabled reports false).
func NewOwnerAuth(hash string, tokens *auth.TokenService, passwords *auth.PasswordService, logger *slog.Logger) *OwnerAuth {
	return &OwnerAuth{
		hash:      hash,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// Enabled reports whether an owner password is configured.
func (a *OwnerAuth) Enabled() bool {
	return a.hash != "" && a.tokens != nil
}

// Login checks password against the owner hash and opens a session.
// It returns the signed token and the moment it stops being valid.
//
// Errors: ValidationFailed for an empty password, Unauthorized for a wrong
// one, Forbidden when login is not configured at all.
func (a *OwnerAuth) Login(ctx context.Context, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, apperror.Forbidden("owner login is not configured")
	}
	if password == "" {
		return "", time.Time{}, apperror.ValidationFailed("password", "password is required")
	}

	if err := a.passwords.Verify(a.hash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			a.logger.WarnContext(ctx, "owner login failed")
			return "", time.Time{}, apperror.Unauthorized("invalid password")
		}
		return "", time.Time{}, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	token, session, err := a.tokens.Issue(auth.OwnerSubject)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("service/auth: issuing token: %w", err)
	}

	a.logger.InfoContext(ctx, "owner logged in",
		slog.String("session", session.ID),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return token, session.ExpiresAt, nil
}
