package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus models the account lifecycle as an explicit sum type.
type UserStatus string

const (
	// UserStatusPendingVerification is the initial status after signup,
	// before the email verification code has been confirmed.
	UserStatusPendingVerification UserStatus = "PENDING_VERIFICATION"
	// UserStatusActive is a fully usable account
	UserStatusActive UserStatus = "ACTIVE"
	// UserStatusSuspended is an administratively blocked account
	UserStatusSuspended UserStatus = "SUSPENDED"
	// UserStatusWithdrawn is a soft deleted account; DeletedAt marks when
	UserStatusWithdrawn UserStatus = "WITHDRAWN"
)

// User is the member account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	StudentID     string     `bun:"student_id,notnull,unique" json:"student_id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	Department    string     `bun:"department" json:"department,omitempty"`
	Motivation    string     `bun:"motivation" json:"motivation,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Status        UserStatus `bun:"status,notnull" json:"status,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	SuspendedAt   *time.Time `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus defaults a zero status to pending verification, the state a
// freshly inserted row is expected to be in.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusPendingVerification
	}
}

// IsActive reports whether the account can authenticate.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsWithdrawn reports whether the account has been soft deleted.
func (u *User) IsWithdrawn() bool {
	return u.Status == UserStatusWithdrawn || u.DeletedAt != nil
}

// RecoverableUntil returns the deadline for recovering a withdrawn account.
// It is only meaningful for withdrawn accounts with a DeletedAt timestamp.
func (u *User) RecoverableUntil(window time.Duration) (time.Time, bool) {
	if !u.IsWithdrawn() || u.DeletedAt == nil {
		return time.Time{}, false
	}
	return u.DeletedAt.Add(window), true
}

// WithinRecoveryWindow reports whether a withdrawn account can still be recovered.
func (u *User) WithinRecoveryWindow(now time.Time, window time.Duration) bool {
	deadline, ok := u.RecoverableUntil(window)
	if !ok {
		return false
	}
	return !now.After(deadline)
}

// RefreshToken is one persisted session credential. A user holds one row per
// device; rows are only ever mutated by revocation, never physically deleted
// by this package.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Revoked       bool       `bun:"revoked,notnull,default:false" json:"revoked,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsExpired reports whether the stored row has passed its expiry.
func (rt *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(rt.ExpiresAt)
}

// IsValidAt reports whether the row can still be exchanged for access tokens.
func (rt *RefreshToken) IsValidAt(now time.Time) bool {
	return !rt.Revoked && !rt.IsExpired(now)
}

// EmailVerification is one signup verification code. Each send creates a new
// independent row; the newest unverified row is authoritative.
type EmailVerification struct {
	bun.BaseModel `bun:"table:email_verifications,alias:ev"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Code          string     `bun:"code,notnull" json:"-"`
	Attempts      int        `bun:"attempts,notnull,default:0" json:"attempts,omitempty"`
	Verified      bool       `bun:"verified,notnull,default:false" json:"verified,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsExpired is true iff now is strictly after the expiry instant.
func (ev *EmailVerification) IsExpired(now time.Time) bool {
	return now.After(ev.ExpiresAt)
}

// CanAttempt is true while the attempt counter is below the limit.
func (ev *EmailVerification) CanAttempt(maxAttempts int) bool {
	return ev.Attempts < maxAttempts
}

// IncrementAttempts bumps the attempt counter by one.
func (ev *EmailVerification) IncrementAttempts() {
	ev.Attempts++
}

// MarkVerified flags the code as consumed. Idempotent.
func (ev *EmailVerification) MarkVerified() {
	ev.Verified = true
}

// LoginFailureReason enumerates why a login attempt was rejected.
type LoginFailureReason string

const (
	FailureInvalidCredentials LoginFailureReason = "INVALID_CREDENTIALS"
	FailureAccountSuspended   LoginFailureReason = "ACCOUNT_SUSPENDED"
	FailureAccountWithdrawn   LoginFailureReason = "ACCOUNT_WITHDRAWN"
	FailureAccountRecoverable LoginFailureReason = "ACCOUNT_RECOVERABLE"
	FailureEmailNotVerified   LoginFailureReason = "EMAIL_NOT_VERIFIED"
)

// MaxUserAgentLength bounds the stored user agent string.
const MaxUserAgentLength = 500

// LoginHistory is an append-only audit row for one login attempt. Rows are
// immutable once created.
type LoginHistory struct {
	bun.BaseModel `bun:"table:login_histories,alias:lh"`
	ID            uuid.UUID          `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID         `bun:"user_id,nullzero,type:uuid" json:"user_id,omitempty"`
	StudentID     string             `bun:"student_id,notnull" json:"student_id,omitempty"`
	IPAddress     string             `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     *string            `bun:"user_agent" json:"user_agent,omitempty"`
	Success       bool               `bun:"success,notnull" json:"success"`
	FailureReason LoginFailureReason `bun:"failure_reason" json:"failure_reason,omitempty"`
	AttemptedAt   time.Time          `bun:"attempted_at,notnull" json:"attempted_at,omitempty"`
}

// PrivacyConsent records acceptance of one privacy policy version. Append
// only, many rows per user.
type PrivacyConsent struct {
	bun.BaseModel `bun:"table:privacy_consents,alias:pc"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User     `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	PolicyVersion string    `bun:"policy_version,notnull" json:"policy_version,omitempty"`
	ConsentGiven  bool      `bun:"consent_given,notnull" json:"consent_given"`
	ConsentDate   time.Time `bun:"consent_date,notnull" json:"consent_date,omitempty"`
}

// PrivacyPolicyVersion is the policy version recorded on new signups.
const PrivacyPolicyVersion = "1.0"

// PasswordReset is one pending password reset request.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pwdr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsUsable reports whether the reset request can still be finalized.
func (pr *PasswordReset) IsUsable(now time.Time) bool {
	return pr.UsedAt == nil && !now.After(pr.ExpiresAt)
}
