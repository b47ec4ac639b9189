// Package auth protects the catalog's write routes with a single owner login.
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. The owner POSTs their password to /auth/login
// 2. The server checks it against the configured bcrypt hash (password.go)
// 3. On a match, the server issues a session JWT and stores it in an
//    HttpOnly cookie
// 4. On later writes, RequireAuth reads the cookie (or an Authorization:
//    Bearer header, for snippetctl) and validates the JWT
//
// Search and read routes never require a token.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"owner","jti":"<xid>","iss":"snippet-catalog","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	issuer = "snippet-catalog"

	// DefaultTokenTTL is how long an owner session lasts unless configured.
	DefaultTokenTTL = 12 * time.Hour

	minSecretLength = 16
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Session is what a valid token proves: who logged in, which login it was
// and until when.
type Session struct {
	ID        string
	Subject   string
	ExpiresAt time.Time
}

// TokenService signs and verifies session tokens with one HMAC secret.
// Rotating the secret logs every session out.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. A ttl <= 0 means DefaultTokenTTL.
// Example secret: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of tokens from Issue.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new session token for subject. Every call gets its own
// session ID, so two logins never produce the same token.
func (s *TokenService) Issue(subject string) (string, Session, error) {
	return s.issue(subject, s.ttl)
}

func (s *TokenService) issue(subject string, ttl time.Duration) (string, Session, error) {
	if subject == "" {
		return "", Session{}, errors.New("auth: subject is required")
	}
	now := s.now()
	session := Session{
		ID:        xid.New().String(),
		Subject:   subject,
		ExpiresAt: now.Add(ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, session, nil
}

// Validate verifies a token and returns its session.
//
// The jwt library checks the signature, expiry and issuer. Pinning the
// method list to HS256 stops "alg: none" and RS/HS confusion tricks.
func (s *TokenService) Validate(tokenStr string) (Session, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Session{}, ErrTokenExpired
	case err != nil:
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	case claims.Subject == "" || claims.ID == "":
		return Session{}, fmt.Errorf("%w: missing sub or jti", ErrInvalidToken)
	}

	return Session{
		ID:        claims.ID,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
