package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// DefaultRecoveryWindow is how long a withdrawn account stays recoverable.
const DefaultRecoveryWindow = 5 * 24 * time.Hour

// LoginInput carries the credentials and request metadata for one attempt.
type LoginInput struct {
	StudentID string
	Password  string
	IPAddress string
	UserAgent *string
}

// LoginResult is returned on successful login and recovery.
type LoginResult struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	UserID       string   `json:"user_id"`
	StudentID    string   `json:"student_id"`
	Name         string   `json:"name"`
	Role         UserRole `json:"role"`
}

// RefreshResult is returned by a successful refresh exchange.
type RefreshResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Auther orchestrates login, refresh, and logout over the token service and
// the refresh session store.
type Auther struct {
	users          Users
	sessions       RefreshTokens
	tokens         TokenService
	recorder       LoginRecorder
	logger         Logger
	now            func() time.Time
	recoveryWindow time.Duration
}

// NewAuthenticator returns a new Auther backed by the given repositories.
func NewAuthenticator(repo RepositoryManager, tokens TokenService) *Auther {
	return &Auther{
		users:          repo.Users(),
		sessions:       repo.RefreshTokens(),
		tokens:         tokens,
		recorder:       NewLoginRecorder(repo.LoginHistories()),
		logger:         defLogger{},
		now:            time.Now,
		recoveryWindow: DefaultRecoveryWindow,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithRecoveryWindow overrides the withdrawal recovery window.
func (s *Auther) WithRecoveryWindow(window time.Duration) *Auther {
	if window > 0 {
		s.recoveryWindow = window
	}
	return s
}

// WithLoginRecorder overrides the audit recorder.
func (s *Auther) WithLoginRecorder(recorder LoginRecorder) *Auther {
	if recorder != nil {
		s.recorder = recorder
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokens
}

// Login authenticates a student id and password pair. Every rejected attempt
// is recorded with its reason before the error is returned.
func (s *Auther) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.users.GetByStudentIDIncludingDeleted(ctx, input.StudentID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.recorder.RecordFailure(ctx, nil, input.StudentID, input.IPAddress, input.UserAgent, FailureInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during login")
	}

	user.EnsureStatus()

	if user.IsWithdrawn() {
		if user.WithinRecoveryWindow(s.now(), s.recoveryWindow) {
			s.recordFailure(ctx, user, input, FailureAccountRecoverable)
			return nil, ErrAccountRecoverable
		}
		s.recordFailure(ctx, user, input, FailureAccountWithdrawn)
		return nil, ErrAccountWithdrawn
	}

	if user.Status == UserStatusSuspended {
		s.recordFailure(ctx, user, input, FailureAccountSuspended)
		return nil, ErrAccountSuspended
	}

	if user.Status == UserStatusPendingVerification {
		s.recordFailure(ctx, user, input, FailureEmailNotVerified)
		return nil, ErrEmailNotVerified
	}

	if err := ComparePasswordAndHash(input.Password, user.PasswordHash); err != nil {
		s.recordFailure(ctx, user, input, FailureInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	result, err := s.issueSessionPair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.recorder.RecordSuccess(ctx, user.ID, user.StudentID, input.IPAddress, input.UserAgent)

	return result, nil
}

// Refresh exchanges a still valid refresh token for a new access token. The
// refresh token is not rotated: repeated calls with the same token succeed
// while the stored row stays unrevoked and unexpired. Claims are re-derived
// from the current user record, never from the inbound token.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if _, err := s.tokens.ValidateRefreshToken(refreshToken); err != nil {
		return nil, err
	}

	row, err := s.sessions.GetActive(ctx, refreshToken)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up refresh token")
	}

	if row.IsExpired(s.now()) {
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.users.GetByUserID(ctx, row.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during refresh")
	}

	user.EnsureStatus()
	if err := statusAuthError(user.Status); err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.CreateAccessToken(user.ID, user.StudentID, user.Role)
	if err != nil {
		return nil, err
	}

	return &RefreshResult{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.tokens.AccessTokenTTL().Seconds()),
	}, nil
}

// Logout revokes the stored refresh token. Idempotent: already revoked or
// never issued tokens are not an error.
func (s *Auther) Logout(ctx context.Context, refreshToken string) error {
	if err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh token")
	}
	return nil
}

// RevokeAllSessions revokes every live refresh token for the user in one
// operation. Used on withdrawal or suspected compromise.
func (s *Auther) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke user sessions")
	}
	return nil
}

// issueSessionPair mints the access/refresh pair and persists the refresh row.
func (s *Auther) issueSessionPair(ctx context.Context, user *User) (*LoginResult, error) {
	accessToken, err := s.tokens.CreateAccessToken(user.ID, user.StudentID, user.Role)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.CreateRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	expiresAt, err := refreshExpiry(s.tokens, refreshToken, s.now())
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.Issue(ctx, user.ID, refreshToken, expiresAt); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist refresh token")
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID.String(),
		StudentID:    user.StudentID,
		Name:         user.Name,
		Role:         user.Role,
	}, nil
}

// refreshExpiry reads the expiry baked into the freshly minted token so the
// stored row and the signed claim can never drift apart.
func refreshExpiry(tokens TokenService, refreshToken string, fallbackFrom time.Time) (time.Time, error) {
	claims, err := tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "minted refresh token failed validation")
	}

	expiresAt := claims.Expires()
	if expiresAt.IsZero() {
		expiresAt = fallbackFrom.Add(tokens.RefreshTokenTTL())
	}

	return expiresAt, nil
}

func (s *Auther) recordFailure(ctx context.Context, user *User, input LoginInput, reason LoginFailureReason) {
	var userID *uuid.UUID
	if user != nil {
		uid := user.ID
		userID = &uid
	}
	s.recorder.RecordFailure(ctx, userID, input.StudentID, input.IPAddress, input.UserAgent, reason)
}
