package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes access tokens from refresh tokens in the type claim.
type TokenType string

const (
	// TokenTypeAccess is a short lived credential carried on each request
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is the longer lived credential exchanged for access tokens
	TokenTypeRefresh TokenType = "refresh"
)

// TokenClaims is the signed payload carried by both token kinds. The subject
// holds the user id; studentId and role ride along only on access tokens.
type TokenClaims struct {
	jwt.RegisteredClaims
	StudentIDClaim string    `json:"studentId,omitempty"`
	RoleClaim      string    `json:"role,omitempty"`
	TypeClaim      TokenType `json:"type,omitempty"`
}

// UserID returns the subject claim holding the user id.
func (c *TokenClaims) UserID() string {
	return c.RegisteredClaims.Subject
}

// UserUUID parses the subject claim into a uuid.
func (c *TokenClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// StudentID returns the studentId claim. Empty on refresh tokens.
func (c *TokenClaims) StudentID() string {
	return c.StudentIDClaim
}

// Role returns the role claim. Empty on refresh tokens.
func (c *TokenClaims) Role() string {
	return c.RoleClaim
}

// TokenType returns the type claim.
func (c *TokenClaims) TokenType() TokenType {
	return c.TypeClaim
}

// IsAtLeast checks if the role claim meets the minimum required role.
func (c *TokenClaims) IsAtLeast(minRole UserRole) bool {
	return UserRole(c.RoleClaim).IsAtLeast(minRole)
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAtTime returns the issued at time
func (c *TokenClaims) IssuedAtTime() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// ensureTokenID stamps a unique jti when the claims do not carry one yet.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
