// Package auth implements GitHub OAuth login and the session credential
// used by every authenticated endpoint.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wesm/collabhub/internal/models"
)

// Claims identify the user a session credential was issued to
type Claims struct {
	UserID   string `json:"userId"`
	GitHubID int64  `json:"githubId"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates an HS256 issuer and verifier. ttl bounds token lifetime.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a session token for user
func (s *Sessions) Issue(user *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   user.ID,
		GitHubID: user.GitHubID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

// Verify checks a session token's signature and expiry.
// An empty token is ErrUnauthorized, any other failure is ErrForbidden.
func (s *Sessions) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, models.ErrUnauthorized
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrForbidden, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token has no user", models.ErrForbidden)
	}
	return claims, nil
}
