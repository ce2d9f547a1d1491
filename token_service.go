package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MinSigningKeyLength is the minimum accepted HMAC key size in bytes.
const MinSigningKeyLength = 32

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

var _ TokenService = (*TokenServiceImpl)(nil)

// TokenServiceOption customizes token service construction.
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger overrides the default logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance. The signing key is
// immutable after construction and must be at least MinSigningKeyLength bytes.
func NewTokenService(signingKey []byte, accessTTL, refreshTTL time.Duration, issuer string, audience jwt.ClaimStrings, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	if len(signingKey) < MinSigningKeyLength {
		return nil, errors.New("signing key is too short", errors.CategoryValidation).
			WithTextCode("SIGNING_KEY_TOO_SHORT").
			WithMetadata(map[string]any{
				"length": len(signingKey),
				"min":    MinSigningKeyLength,
			})
	}

	key := make([]byte, len(signingKey))
	copy(key, signingKey)

	ts := &TokenServiceImpl{
		signingKey: key,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     issuer,
		audience:   audience,
		logger:     defLogger{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// CreateAccessToken issues a signed access token carrying the user id as
// subject plus studentId and role claims.
func (ts *TokenServiceImpl) CreateAccessToken(userID uuid.UUID, studentID string, role UserRole) (string, error) {
	claims := ts.newClaims(userID, ts.accessTTL)
	claims.StudentIDClaim = studentID
	claims.RoleClaim = string(role)
	claims.TypeClaim = TokenTypeAccess

	return ts.signClaims(claims)
}

// CreateRefreshToken issues a signed refresh token carrying only the user id.
func (ts *TokenServiceImpl) CreateRefreshToken(userID uuid.UUID) (string, error) {
	claims := ts.newClaims(userID, ts.refreshTTL)
	claims.TypeClaim = TokenTypeRefresh

	return ts.signClaims(claims)
}

func (ts *TokenServiceImpl) newClaims(userID uuid.UUID, ttl time.Duration) *TokenClaims {
	now := ts.now()

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

func (ts *TokenServiceImpl) signClaims(claims *TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims.
// Expiry is the only structural failure kept distinct; everything else
// collapses into ErrTokenInvalid.
func (ts *TokenServiceImpl) Validate(tokenString string) (*TokenClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode claims")
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ValidateAccessToken validates the token and asserts the access type claim.
func (ts *TokenServiceImpl) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	return ts.validateTyped(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken validates the token and asserts the refresh type claim.
func (ts *TokenServiceImpl) ValidateRefreshToken(tokenString string) (*TokenClaims, error) {
	return ts.validateTyped(tokenString, TokenTypeRefresh)
}

func (ts *TokenServiceImpl) validateTyped(tokenString string, expected TokenType) (*TokenClaims, error) {
	claims, err := ts.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TypeClaim != expected {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}

// IsValid reports whether the token passes structural validation. No failure
// kinds are distinguished at this level.
func (ts *TokenServiceImpl) IsValid(tokenString string) bool {
	_, err := ts.Validate(tokenString)
	return err == nil
}

// AccessTokenTTL exposes the configured access token lifetime.
func (ts *TokenServiceImpl) AccessTokenTTL() time.Duration {
	return ts.accessTTL
}

// RefreshTokenTTL exposes the configured refresh token lifetime.
func (ts *TokenServiceImpl) RefreshTokenTTL() time.Duration {
	return ts.refreshTTL
}
