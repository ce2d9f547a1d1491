package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// Token errors. Structural failures collapse into ErrTokenInvalid, expiry is
// kept distinct so callers can branch into a refresh flow.
var (
	ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
			WithTextCode("TOKEN_EXPIRED").
			WithCode(goerrors.CodeUnauthorized)

	ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryAuth).
			WithTextCode("TOKEN_INVALID").
			WithCode(goerrors.CodeUnauthorized)

	ErrWrongTokenType = goerrors.New("wrong token type", goerrors.CategoryAuth).
				WithTextCode("WRONG_TOKEN_TYPE").
				WithCode(goerrors.CodeUnauthorized)
)

// Credential and account state errors surfaced by login, refresh, and the
// request gate. Each carries a machine readable text code clients branch on.
var (
	ErrInvalidCredentials = goerrors.New("invalid student id or password", goerrors.CategoryAuth).
				WithTextCode("INVALID_CREDENTIALS").
				WithCode(goerrors.CodeUnauthorized)

	ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
			WithTextCode("USER_NOT_FOUND").
			WithCode(goerrors.CodeNotFound)

	ErrAccountSuspended = goerrors.New("account is suspended", goerrors.CategoryAuth).
				WithTextCode("ACCOUNT_SUSPENDED").
				WithCode(goerrors.CodeUnauthorized)

	ErrAccountWithdrawn = goerrors.New("account is withdrawn", goerrors.CategoryAuth).
				WithTextCode("ACCOUNT_WITHDRAWN").
				WithCode(goerrors.CodeUnauthorized)

	ErrAccountRecoverable = goerrors.New("account is withdrawn but still recoverable", goerrors.CategoryAuth).
				WithTextCode("ACCOUNT_RECOVERABLE").
				WithCode(goerrors.CodeUnauthorized)

	ErrEmailNotVerified = goerrors.New("email address has not been verified", goerrors.CategoryAuth).
				WithTextCode("EMAIL_NOT_VERIFIED").
				WithCode(goerrors.CodeUnauthorized)
)

// Refresh session errors.
var (
	ErrRefreshTokenNotFound = goerrors.New("refresh token not found or revoked", goerrors.CategoryAuth).
				WithTextCode("REFRESH_TOKEN_INVALID").
				WithCode(goerrors.CodeUnauthorized)

	ErrRefreshTokenExpired = goerrors.New("refresh token is expired", goerrors.CategoryAuth).
				WithTextCode("REFRESH_TOKEN_EXPIRED").
				WithCode(goerrors.CodeUnauthorized)
)

// Recovery errors.
var (
	ErrRecoveryWindowExpired = goerrors.New("recovery window has expired", goerrors.CategoryConflict).
					WithTextCode("RECOVERY_WINDOW_EXPIRED").
					WithCode(goerrors.CodeConflict)

	ErrAccountNotRecoverable = goerrors.New("account is not withdrawn", goerrors.CategoryConflict).
					WithTextCode("ACCOUNT_NOT_RECOVERABLE").
					WithCode(goerrors.CodeConflict)
)

// Email verification errors.
var (
	ErrVerificationNotFound = goerrors.New("no pending verification for email", goerrors.CategoryNotFound).
				WithTextCode("VERIFICATION_NOT_FOUND").
				WithCode(goerrors.CodeNotFound)

	ErrVerificationCodeExpired = goerrors.New("verification code is expired", goerrors.CategoryAuth).
					WithTextCode("VERIFICATION_CODE_EXPIRED").
					WithCode(goerrors.CodeUnauthorized)

	ErrVerificationCodeInvalid = goerrors.New("verification code does not match", goerrors.CategoryAuth).
					WithTextCode("VERIFICATION_CODE_INVALID").
					WithCode(goerrors.CodeUnauthorized)

	ErrVerificationAttemptsExceeded = goerrors.New("too many verification attempts", goerrors.CategoryConflict).
					WithTextCode("VERIFICATION_ATTEMPTS_EXCEEDED").
					WithCode(goerrors.CodeConflict)

	ErrVerificationResendLimited = goerrors.New("verification code was sent too recently", goerrors.CategoryConflict).
					WithTextCode("VERIFICATION_RESEND_LIMITED").
					WithCode(goerrors.CodeConflict)
)

// Signup errors.
var (
	ErrDuplicateStudentID = goerrors.New("student id is already registered", goerrors.CategoryConflict).
				WithTextCode("DUPLICATE_STUDENT_ID").
				WithCode(goerrors.CodeConflict)

	ErrDuplicateEmail = goerrors.New("email is already registered", goerrors.CategoryConflict).
				WithTextCode("DUPLICATE_EMAIL").
				WithCode(goerrors.CodeConflict)

	ErrDuplicatePhone = goerrors.New("phone number is already registered", goerrors.CategoryConflict).
				WithTextCode("DUPLICATE_PHONE").
				WithCode(goerrors.CodeConflict)

	ErrRecentWithdrawal = goerrors.New("a recently withdrawn account exists for this student id", goerrors.CategoryConflict).
				WithTextCode("RECENT_WITHDRAWAL_EXISTS").
				WithCode(goerrors.CodeConflict)
)

// Password reset errors.
var (
	ErrResetTokenInvalid = goerrors.New("password reset token is invalid", goerrors.CategoryAuth).
				WithTextCode("RESET_TOKEN_INVALID").
				WithCode(goerrors.CodeUnauthorized)

	ErrResetTokenExpired = goerrors.New("password reset token is expired", goerrors.CategoryAuth).
				WithTextCode("RESET_TOKEN_EXPIRED").
				WithCode(goerrors.CodeUnauthorized)
)

// ErrNoEmptyPassword rejects empty cleartext passwords before hashing.
var ErrNoEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode("EMPTY_PASSWORD").
	WithCode(goerrors.CodeBadRequest)

// statusAuthError maps a user status to the error a credential check should
// surface. Active accounts return nil. Withdrawn accounts are resolved by the
// caller, which knows whether the recovery window still applies.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusPendingVerification:
		return ErrEmailNotVerified
	case UserStatusSuspended:
		return ErrAccountSuspended
	case UserStatusWithdrawn:
		return ErrAccountWithdrawn
	default:
		return nil
	}
}

// IsTokenExpired reports whether err represents an expired access or refresh token.
func IsTokenExpired(err error) bool {
	return goerrors.Is(err, ErrTokenExpired) || goerrors.Is(err, ErrRefreshTokenExpired)
}

// IsAccountStateError reports whether err is one of the account state failures
// the gate must surface as a hard error instead of passing through.
func IsAccountStateError(err error) bool {
	return goerrors.Is(err, ErrUserNotFound) ||
		goerrors.Is(err, ErrAccountSuspended) ||
		goerrors.Is(err, ErrAccountWithdrawn) ||
		goerrors.Is(err, ErrEmailNotVerified)
}
