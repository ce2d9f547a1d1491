package auth

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultPublicPaths are the endpoints that never require authentication.
// The gate is configured with these so signup, login, the recovery flows,
// the privacy policy text, and guest inquiry submit/lookup stay reachable
// without a token.
var DefaultPublicPaths = []string{
	"/auth/signup",
	"/auth/login",
	"/auth/refresh",
	"/auth/logout",
	"/auth/verify-email",
	"/auth/resend-verification",
	"/auth/recover",
	"/auth/recover/eligibility",
	"/auth/password-reset",
	"/auth/password-reset/confirm",
	"/privacy/policy",
	"/inquiries",
	"/inquiries/lookup",
}

// RegisterAuthRoutes mounts the JSON auth API on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Signup, controller.Signup).
		SetName("auth.signup")

	app.Post(controller.Routes.Login, controller.Login).
		SetName("auth.login")

	app.Post(controller.Routes.Refresh, controller.Refresh).
		SetName("auth.refresh")

	app.Post(controller.Routes.Logout, controller.Logout).
		SetName("auth.logout")

	app.Post(controller.Routes.VerifyEmail, controller.VerifyEmail).
		SetName("auth.verify-email")

	app.Post(controller.Routes.ResendVerification, controller.ResendVerification).
		SetName("auth.resend-verification")

	app.Post(controller.Routes.Recover, controller.Recover).
		SetName("auth.recover")

	app.Get(fmt.Sprintf("%s/eligibility", controller.Routes.Recover), controller.RecoveryEligibility).
		SetName("auth.recover-eligibility")

	app.Post(controller.Routes.PasswordReset, controller.PasswordResetInitialize).
		SetName("auth.password-reset")

	app.Post(fmt.Sprintf("%s/confirm", controller.Routes.PasswordReset), controller.PasswordResetFinalize).
		SetName("auth.password-reset-confirm")
}

// AuthControllerRoutes lets embedders remount the API under different paths.
type AuthControllerRoutes struct {
	Signup             string
	Login              string
	Refresh            string
	Logout             string
	VerifyEmail        string
	ResendVerification string
	Recover            string
	PasswordReset      string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Routes       *AuthControllerRoutes
	Auther       *Auther
	Signups      *SignupHandler
	Verifier     *EmailVerifier
	Recovery     *AccountRecovery
	Resets       *PasswordResetService
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: renderAPIError,
		Routes: &AuthControllerRoutes{
			Signup:             "/auth/signup",
			Login:              "/auth/login",
			Refresh:            "/auth/refresh",
			Logout:             "/auth/logout",
			VerifyEmail:        "/auth/verify-email",
			ResendVerification: "/auth/resend-verification",
			Recover:            "/auth/recover",
			PasswordReset:      "/auth/password-reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.Signups == nil {
		panic("Missing SignupHandler in auth controller...")
	}

	if c.Verifier == nil {
		panic("Missing EmailVerifier in auth controller...")
	}

	if c.Recovery == nil {
		panic("Missing AccountRecovery in auth controller...")
	}

	if c.Resets == nil {
		panic("Missing PasswordResetService in auth controller...")
	}

	return c
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerAuther(auther *Auther) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerSignupHandler(handler *SignupHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Signups = handler
		return c
	}
}

func WithControllerEmailVerifier(verifier *EmailVerifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Verifier = verifier
		return c
	}
}

func WithControllerAccountRecovery(recovery *AccountRecovery) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Recovery = recovery
		return c
	}
}

func WithControllerPasswordResets(resets *PasswordResetService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Resets = resets
		return c
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func WithControllerErrorHandler(handler router.ErrorHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// Signup registers a new member. The account stays pending until the emailed
// verification code is confirmed.
func (a *AuthController) Signup(ctx router.Context) error {
	payload := new(SignupMessage)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if a.Debug {
		a.Logger.Debug("signup payload", "payload", print.MaybePrettyJSON(payload))
	}

	result, err := a.Signups.Execute(ctx.Context(), *payload)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, result)
}

// LoginRequest payload
type LoginRequest struct {
	StudentID string `json:"student_id"`
	Password  string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.StudentID, validation.Required, validation.Length(8, 8), is.Digit),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login exchanges a student id and password for a token pair.
func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	result, err := a.Auther.Login(ctx.Context(), LoginInput{
		StudentID: payload.StudentID,
		Password:  payload.Password,
		IPAddress: ctx.IP(),
		UserAgent: requestUserAgent(ctx),
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

// RefreshRequest payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// Refresh exchanges a valid refresh token for a fresh access token.
func (a *AuthController) Refresh(ctx router.Context) error {
	payload := new(RefreshRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("refresh: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	result, err := a.Auther.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

// Logout revokes the submitted refresh token. Revoking an already revoked or
// unknown token still reports success.
func (a *AuthController) Logout(ctx router.Context) error {
	payload := new(RefreshRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("logout: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if err := a.Auther.Logout(ctx.Context(), payload.RefreshToken); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"success": true})
}

// VerifyEmailRequest payload
type VerifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Validate will run validation rules
func (r VerifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

// VerifyEmail confirms the emailed code and activates the pending account.
func (a *AuthController) VerifyEmail(ctx router.Context) error {
	payload := new(VerifyEmailRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("verify email: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	if err := a.Verifier.Verify(ctx.Context(), payload.Email, payload.Code); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"verified": true})
}

// ResendVerificationRequest payload
type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ResendVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResendVerification issues a fresh code, subject to the per email rate limit.
func (a *AuthController) ResendVerification(ctx router.Context) error {
	payload := new(ResendVerificationRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("resend verification: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	if _, err := a.Verifier.Resend(ctx.Context(), payload.Email); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"sent": true})
}

// RecoverRequest payload
type RecoverRequest struct {
	StudentID string `json:"student_id"`
	Password  string `json:"password"`
}

// Validate will run validation rules
func (r RecoverRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.StudentID, validation.Required, validation.Length(8, 8), is.Digit),
		validation.Field(&r.Password, validation.Required),
	)
}

// Recover reactivates a withdrawn account inside the recovery window and
// returns a fresh session pair.
func (a *AuthController) Recover(ctx router.Context) error {
	payload := new(RecoverRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("recover: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, validationError(err))
	}

	result, err := a.Recovery.RecoverAccount(ctx.Context(), payload.StudentID, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

// RecoveryEligibility reports whether the student id can still be recovered.
func (a *AuthController) RecoveryEligibility(ctx router.Context) error {
	studentID := ctx.Query("student_id")
	if studentID == "" {
		return a.ErrorHandler(ctx, goerrors.New("student_id is required", goerrors.CategoryBadInput).
			WithTextCode("MISSING_STUDENT_ID").
			WithCode(goerrors.CodeBadRequest))
	}

	eligibility, err := a.Recovery.CheckEligibility(ctx.Context(), studentID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, eligibility)
}

// PasswordResetInitialize dispatches a reset link. Responds identically for
// known and unknown emails.
func (a *AuthController) PasswordResetInitialize(ctx router.Context) error {
	payload := new(InitializePasswordResetMessage)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if err := a.Resets.Initialize(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"sent": true})
}

// PasswordResetFinalize consumes the reset token and sets the new password.
func (a *AuthController) PasswordResetFinalize(ctx router.Context) error {
	payload := new(FinalizePasswordResetMessage)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset confirm: failed to parse payload", "error", err)
		return a.ErrorHandler(ctx, badRequestError(err))
	}

	if err := a.Resets.Finalize(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{"success": true})
}

// requestUserAgent returns the User-Agent header as an optional value so the
// audit log can distinguish "absent" from "empty".
func requestUserAgent(ctx router.Context) *string {
	ua := ctx.GetString("User-Agent", "")
	if ua == "" {
		return nil
	}
	return &ua
}

func badRequestError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
		WithTextCode("INVALID_REQUEST_BODY").
		WithCode(goerrors.CodeBadRequest)
}

func validationError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithTextCode("VALIDATION_FAILED").
		WithCode(goerrors.CodeBadRequest)
}

type apiErrorBody struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// renderAPIError maps rich errors onto a machine readable JSON body. The
// embedded HTTP code drives the response status.
func renderAPIError(c router.Context, err error) error {
	status := router.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "internal error"

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code != 0 {
			status = richErr.Code
		}
		if richErr.TextCode != "" {
			code = richErr.TextCode
		}
		message = richErr.Message
	}

	return c.JSON(status, apiErrorBody{
		Error: apiErrorDetail{Code: code, Message: message},
	})
}
