package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the signed payload of a session token
type JWTClaims struct {
	jwt.RegisteredClaims
	UserRole string `json:"role,omitempty"`
}

// Identity returns the subject identity
func (c *JWTClaims) Identity() string {
	return c.RegisteredClaims.Subject
}

// Role returns the role claim
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// Session converts the claims into the Session handed to callers
func (c *JWTClaims) Session() *Session {
	return &Session{
		Identity:  c.Identity(),
		Role:      c.Role(),
		TokenID:   c.RegisteredClaims.ID,
		IssuedAt:  c.IssuedAt(),
		ExpiresAt: c.Expires(),
	}
}
