package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	// DefaultVerificationTTL is how long a verification code stays usable.
	DefaultVerificationTTL = 10 * time.Minute
	// DefaultVerificationMaxAttempts bounds wrong guesses per code.
	DefaultVerificationMaxAttempts = 5
	// DefaultVerificationResendInterval is the minimum gap between sends.
	DefaultVerificationResendInterval = 300 * time.Second

	verificationCodeLength = 6
)

// EmailVerifier issues and checks signup verification codes. Each send
// creates a fresh code row; the newest unverified row is authoritative.
type EmailVerifier struct {
	store          EmailVerifications
	users          Users
	sender         EmailSender
	logger         Logger
	now            func() time.Time
	codeTTL        time.Duration
	maxAttempts    int
	resendInterval time.Duration
}

// NewEmailVerifier returns a new EmailVerifier with default limits.
func NewEmailVerifier(repo RepositoryManager, sender EmailSender) *EmailVerifier {
	return &EmailVerifier{
		store:          repo.EmailVerifications(),
		users:          repo.Users(),
		sender:         sender,
		logger:         defLogger{},
		now:            time.Now,
		codeTTL:        DefaultVerificationTTL,
		maxAttempts:    DefaultVerificationMaxAttempts,
		resendInterval: DefaultVerificationResendInterval,
	}
}

func (v *EmailVerifier) WithLogger(logger Logger) *EmailVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// WithClock injects a custom clock (useful for tests).
func (v *EmailVerifier) WithClock(clock func() time.Time) *EmailVerifier {
	if clock != nil {
		v.now = clock
	}
	return v
}

// WithCodeTTL overrides the code lifetime. Negative values make codes expire
// immediately, which tests rely on.
func (v *EmailVerifier) WithCodeTTL(ttl time.Duration) *EmailVerifier {
	v.codeTTL = ttl
	return v
}

// WithMaxAttempts overrides the wrong guess limit.
func (v *EmailVerifier) WithMaxAttempts(max int) *EmailVerifier {
	if max > 0 {
		v.maxAttempts = max
	}
	return v
}

// WithResendInterval overrides the minimum gap between sends.
func (v *EmailVerifier) WithResendInterval(interval time.Duration) *EmailVerifier {
	if interval > 0 {
		v.resendInterval = interval
	}
	return v
}

// GenerateAndSend creates a new verification code for the email and dispatches
// it. Older unverified codes for the same email are discarded so the new code
// starts with a clean attempt counter.
func (v *EmailVerifier) GenerateAndSend(ctx context.Context, email string) (*EmailVerification, error) {
	code, err := generateVerificationCode()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	if err := v.store.DeleteUnverified(ctx, email); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discard stale verification codes")
	}

	record, err := v.store.CreateCode(ctx, email, code, v.now().Add(v.codeTTL))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist verification code")
	}

	if err := v.sender.SendVerificationCode(ctx, email, code); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send verification code")
	}

	v.logger.Debug("verification code sent", "email", email)

	return record, nil
}

// Verify checks the submitted code against the newest unverified row for the
// email. A mismatch burns one attempt even though the call fails. A match
// marks the code verified and promotes the account out of pending status.
func (v *EmailVerifier) Verify(ctx context.Context, email, code string) error {
	record, err := v.store.GetLatestUnverified(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrVerificationNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load verification code")
	}

	if record.IsExpired(v.now()) {
		return ErrVerificationCodeExpired
	}

	if !record.CanAttempt(v.maxAttempts) {
		return ErrVerificationAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		if err := v.store.IncrementAttempts(ctx, record.ID); err != nil {
			v.logger.Error("failed to persist verification attempt", "email", email, "error", err)
		}
		return ErrVerificationCodeInvalid
	}

	if err := v.store.MarkVerified(ctx, record.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark verification complete")
	}

	return v.promoteUser(ctx, email)
}

// Resend applies the per email rate limit before issuing a fresh code.
func (v *EmailVerifier) Resend(ctx context.Context, email string) (*EmailVerification, error) {
	latest, err := v.store.GetLatest(ctx, email)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load verification history")
	}

	if latest != nil && latest.CreatedAt != nil {
		if v.now().Sub(*latest.CreatedAt) < v.resendInterval {
			return nil, ErrVerificationResendLimited
		}
	}

	return v.GenerateAndSend(ctx, email)
}

// promoteUser moves a pending verification account to active. Users already
// past pending are left untouched so repeated verifies stay idempotent.
func (v *EmailVerifier) promoteUser(ctx context.Context, email string) error {
	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for activation")
	}

	user.EnsureStatus()
	if user.Status != UserStatusPendingVerification {
		return nil
	}

	if _, err := v.users.Activate(ctx, ActorRef{Type: "system"}, user, WithTransitionReason("email verified")); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate user account")
	}

	return nil
}

// generateVerificationCode returns 6 random decimal digits from crypto/rand.
func generateVerificationCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < verificationCodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", verificationCodeLength, n), nil
}
