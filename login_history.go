package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// NewLoginSuccess builds an immutable audit row for a successful attempt.
func NewLoginSuccess(userID uuid.UUID, studentID, ipAddress string, userAgent *string, attemptedAt time.Time) *LoginHistory {
	uid := userID
	return &LoginHistory{
		ID:          uuid.New(),
		UserID:      &uid,
		StudentID:   studentID,
		IPAddress:   ipAddress,
		UserAgent:   truncateUserAgent(userAgent),
		Success:     true,
		AttemptedAt: attemptedAt,
	}
}

// NewLoginFailure builds an immutable audit row for a rejected attempt. The
// user reference is nil when the student id did not resolve to an account.
func NewLoginFailure(userID *uuid.UUID, studentID, ipAddress string, userAgent *string, reason LoginFailureReason, attemptedAt time.Time) *LoginHistory {
	return &LoginHistory{
		ID:            uuid.New(),
		UserID:        userID,
		StudentID:     studentID,
		IPAddress:     ipAddress,
		UserAgent:     truncateUserAgent(userAgent),
		Success:       false,
		FailureReason: reason,
		AttemptedAt:   attemptedAt,
	}
}

// truncateUserAgent bounds the stored string at MaxUserAgentLength characters.
// nil stays nil, it is never coerced to an empty string.
func truncateUserAgent(userAgent *string) *string {
	if userAgent == nil {
		return nil
	}

	if len(*userAgent) <= MaxUserAgentLength {
		ua := *userAgent
		return &ua
	}

	truncated := (*userAgent)[:MaxUserAgentLength]
	return &truncated
}

// LoginRecorder persists login audit rows.
type LoginRecorder interface {
	RecordSuccess(ctx context.Context, userID uuid.UUID, studentID, ipAddress string, userAgent *string)
	RecordFailure(ctx context.Context, userID *uuid.UUID, studentID, ipAddress string, userAgent *string, reason LoginFailureReason)
}

// NewLoginRecorder returns a store backed recorder. Persistence failures are
// logged and swallowed so auditing never breaks the login path itself.
func NewLoginRecorder(store repository.Repository[*LoginHistory], opts ...LoginRecorderOption) LoginRecorder {
	r := &loginRecorder{
		store:  store,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// LoginRecorderOption customizes recorder construction.
type LoginRecorderOption func(*loginRecorder)

// WithLoginRecorderLogger overrides the default logger.
func WithLoginRecorderLogger(logger Logger) LoginRecorderOption {
	return func(r *loginRecorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLoginRecorderClock injects a custom clock (useful for tests).
func WithLoginRecorderClock(clock func() time.Time) LoginRecorderOption {
	return func(r *loginRecorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

type loginRecorder struct {
	store  repository.Repository[*LoginHistory]
	logger Logger
	now    func() time.Time
}

func (r *loginRecorder) RecordSuccess(ctx context.Context, userID uuid.UUID, studentID, ipAddress string, userAgent *string) {
	record := NewLoginSuccess(userID, studentID, ipAddress, userAgent, r.now())
	if _, err := r.store.Create(ctx, record); err != nil {
		r.logger.Error("failed to record login success", "student_id", studentID, "error", err)
	}
}

func (r *loginRecorder) RecordFailure(ctx context.Context, userID *uuid.UUID, studentID, ipAddress string, userAgent *string, reason LoginFailureReason) {
	record := NewLoginFailure(userID, studentID, ipAddress, userAgent, reason, r.now())
	if _, err := r.store.Create(ctx, record); err != nil {
		r.logger.Error("failed to record login failure", "student_id", studentID, "reason", reason, "error", err)
	}
}
