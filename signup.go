package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// defaultPhoneRegion is the region used to normalize national phone numbers.
const defaultPhoneRegion = "KR"

// SignupMessage carries a new member registration request.
type SignupMessage struct {
	StudentID      string `json:"student_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Department     string `json:"department"`
	Motivation     string `json:"motivation"`
	Password       string `json:"password"`
	PrivacyConsent bool   `json:"privacy_consent"`
	UseHashid      bool   `json:"-"`
}

func (e SignupMessage) Type() string { return "user.signup" }

// Validate checks the payload before any store access.
func (e SignupMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.StudentID, validation.Required, validation.Length(8, 8), is.Digit),
		validation.Field(&e.Name, validation.Required, validation.Length(1, 50)),
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(10, 72)),
		validation.Field(&e.PrivacyConsent, validation.Required, validation.In(true)),
	)
}

// SignupResult reports what the caller should do next.
type SignupResult struct {
	Email                string `json:"email"`
	RequiresVerification bool   `json:"requires_verification"`
}

// SignupHandler registers new member accounts in pending verification status
// and kicks off email verification.
type SignupHandler struct {
	repo           RepositoryManager
	verifier       *EmailVerifier
	logger         Logger
	now            func() time.Time
	recoveryWindow time.Duration
}

// NewSignupHandler returns a new SignupHandler.
func NewSignupHandler(repo RepositoryManager, verifier *EmailVerifier) *SignupHandler {
	return &SignupHandler{
		repo:           repo,
		verifier:       verifier,
		logger:         defLogger{},
		now:            time.Now,
		recoveryWindow: DefaultRecoveryWindow,
	}
}

func (h *SignupHandler) WithLogger(logger Logger) *SignupHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *SignupHandler) WithClock(clock func() time.Time) *SignupHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

// WithRecoveryWindow overrides the window during which a withdrawn student id
// blocks re-registration.
func (h *SignupHandler) WithRecoveryWindow(window time.Duration) *SignupHandler {
	if window > 0 {
		h.recoveryWindow = window
	}
	return h
}

func (h *SignupHandler) Execute(ctx context.Context, event SignupMessage) (*SignupResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during signup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupHandler) execute(ctx context.Context, event SignupMessage) (*SignupResult, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid signup payload")
	}

	phone, err := normalizePhone(event.Phone)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.ensureUnregistered(ctx, tx, event, phone); err != nil {
			return err
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.StudentID = event.StudentID
		user.Name = event.Name
		user.Email = event.Email
		user.Phone = phone
		user.Department = event.Department
		user.Motivation = event.Motivation
		user.PasswordHash = hash
		user.Role = RoleAssociate
		user.Status = UserStatusPendingVerification
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		consent := &PrivacyConsent{
			UserID:        user.ID,
			PolicyVersion: PrivacyPolicyVersion,
			ConsentGiven:  true,
			ConsentDate:   h.now(),
		}
		if _, err := h.repo.PrivacyConsents().CreateTx(ctx, tx, consent); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not record privacy consent")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "signup transaction failed")
	}

	if _, err := h.verifier.GenerateAndSend(ctx, user.Email); err != nil {
		h.logger.Error("failed to send initial verification code", "email", user.Email, "error", err)
	}

	return &SignupResult{
		Email:                user.Email,
		RequiresVerification: true,
	}, nil
}

// ensureUnregistered rejects duplicates and student ids tied to a withdrawal
// that is still inside the recovery window. Every check reads through the
// open signup transaction so the check and the insert see one snapshot.
func (h *SignupHandler) ensureUnregistered(ctx context.Context, tx bun.IDB, event SignupMessage, phone string) error {
	users := h.repo.Users()

	existing, err := users.GetByStudentIDIncludingDeletedTx(ctx, tx, event.StudentID)
	if err != nil && !repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check student id")
	}
	if existing != nil {
		if existing.IsWithdrawn() {
			if existing.WithinRecoveryWindow(h.now(), h.recoveryWindow) {
				return ErrRecentWithdrawal
			}
		} else {
			return ErrDuplicateStudentID
		}
	}

	if exists, err := users.ExistsByEmailTx(ctx, tx, event.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email")
	} else if exists {
		return ErrDuplicateEmail
	}

	if phone != "" {
		if exists, err := users.ExistsByPhoneTx(ctx, tx, phone); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check phone number")
		} else if exists {
			return ErrDuplicatePhone
		}
	}

	return nil
}

// normalizePhone canonicalizes the phone number to E.164. Empty input is
// allowed, the field is optional.
func normalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(phone, defaultPhoneRegion)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithTextCode("INVALID_PHONE")
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithTextCode("INVALID_PHONE")
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
