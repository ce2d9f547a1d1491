package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging surface the package writes to. Arguments
// are alternating key/value pairs appended after the message.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TokenService issues and validates the signed access/refresh token pair.
type TokenService interface {
	CreateAccessToken(userID uuid.UUID, studentID string, role UserRole) (string, error)
	CreateRefreshToken(userID uuid.UUID) (string, error)
	Validate(tokenString string) (*TokenClaims, error)
	ValidateAccessToken(tokenString string) (*TokenClaims, error)
	ValidateRefreshToken(tokenString string) (*TokenClaims, error)
	IsValid(tokenString string) bool
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration
}

// TokenValidator validates access tokens without tying callers to a specific
// signing implementation.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*TokenClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*TokenClaims, error)

// ValidateAccessToken satisfies the TokenValidator interface.
func (f TokenValidatorFunc) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	if f == nil {
		return nil, ErrTokenInvalid
	}
	return f(tokenString)
}

// EmailSender delivers verification codes and reset links out of band.
type EmailSender interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetLink(ctx context.Context, email, token string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetAuthScheme() string
	GetPublicPaths() []string
	GetRecoveryWindow() time.Duration
	GetVerificationTTL() time.Duration
	GetVerificationMaxAttempts() int
	GetVerificationResendInterval() time.Duration
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(formatLogLine("ERR", msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(formatLogLine("WRN", msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(formatLogLine("INF", msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(formatLogLine("DBG", msg, args))
}

// formatLogLine renders the message followed by key=value pairs. A trailing
// unpaired argument is appended as-is.
func formatLogLine(level, msg string, args []any) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level)
	b.WriteString("] AUTH ")
	b.WriteString(msg)

	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}

	return b.String()
}
