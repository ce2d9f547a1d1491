package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultResetTokenTTL is how long a password reset link stays usable.
const DefaultResetTokenTTL = 30 * time.Minute

// InitializePasswordResetMessage starts a reset flow for an email address.
type InitializePasswordResetMessage struct {
	Email string `json:"email"`
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// Validate checks the payload before any store access.
func (p InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
	)
}

// FinalizePasswordResetMessage consumes a reset token and sets the new password.
type FinalizePasswordResetMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// Validate checks the payload before any store access.
func (p FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required),
		validation.Field(&p.Password, validation.Required, validation.Length(10, 72)),
	)
}

// PasswordResetService issues opaque reset tokens by email and finalizes the
// password change. Initialization is deliberately silent on unknown emails.
type PasswordResetService struct {
	repo     RepositoryManager
	sender   EmailSender
	logger   Logger
	now      func() time.Time
	tokenTTL time.Duration
}

// NewPasswordResetService returns a new PasswordResetService.
func NewPasswordResetService(repo RepositoryManager, sender EmailSender) *PasswordResetService {
	return &PasswordResetService{
		repo:     repo,
		sender:   sender,
		logger:   defLogger{},
		now:      time.Now,
		tokenTTL: DefaultResetTokenTTL,
	}
}

func (s *PasswordResetService) WithLogger(logger Logger) *PasswordResetService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *PasswordResetService) WithClock(clock func() time.Time) *PasswordResetService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithTokenTTL overrides the reset token lifetime.
func (s *PasswordResetService) WithTokenTTL(ttl time.Duration) *PasswordResetService {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
	return s
}

// Initialize creates a reset request for the email and dispatches the link.
// Unknown emails return success without side effects so the endpoint does not
// leak which addresses are registered.
func (s *PasswordResetService) Initialize(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := s.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	reset := &PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		Email:     user.Email,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.tokenTTL),
	}

	if _, err := s.repo.PasswordResets().Create(ctx, reset); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
	}

	if err := s.sender.SendPasswordResetLink(ctx, reset.Email, reset.Token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send password reset link")
	}

	return nil
}

// Finalize consumes the token and replaces the password hash in one
// transaction. Used or expired tokens fail without touching the account.
func (s *PasswordResetService) Finalize(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	reset, err := s.repo.PasswordResets().GetByIdentifier(ctx, event.Token)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrResetTokenInvalid
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up password reset token")
	}

	now := s.now()
	if reset.UsedAt != nil {
		return ErrResetTokenInvalid
	}
	if now.After(reset.ExpiresAt) {
		return ErrResetTokenExpired
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Users().ResetPasswordTx(ctx, tx, reset.UserID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
		}

		used := &PasswordReset{
			ID:     reset.ID,
			UsedAt: &now,
		}
		if _, err := s.repo.PasswordResets().UpdateTx(ctx, tx, used, repository.UpdateByID(reset.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume reset token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	return nil
}
