package auth

import (
	"context"
	"encoding/json"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// DefaultAuthScheme is the bearer scheme expected on the Authorization header.
const DefaultAuthScheme = "Bearer"

// PrincipalContextKey is the router locals key the middleware stores the
// authenticated principal under.
const PrincipalContextKey = "principal"

// Principal is the authenticated identity attached to a request. It is
// derived fresh from token claims on every request and never persisted.
type Principal struct {
	UserID    uuid.UUID `json:"user_id"`
	StudentID string    `json:"student_id"`
	Role      UserRole  `json:"role"`
}

// IsAtLeast checks if the principal's role meets the minimum required role.
func (p *Principal) IsAtLeast(minRole UserRole) bool {
	return p.Role.IsAtLeast(minRole)
}

// AccountDirectory is the single status read the gate performs per request.
// The lookup must see soft deleted rows: a withdrawn user fails with the
// account state, never with record-not-found.
type AccountDirectory interface {
	GetByUserID(ctx context.Context, id uuid.UUID) (*User, error)
}

// Gate authenticates inbound requests. Structurally broken, expired, or
// mistyped tokens pass through unauthenticated; account state problems on a
// validly named user are hard errors.
type Gate struct {
	validator   TokenValidator
	directory   AccountDirectory
	scheme      string
	publicPaths []string
	logger      Logger
}

// NewGate returns a new Gate over the validator and account directory.
func NewGate(validator TokenValidator, directory AccountDirectory, publicPaths []string) *Gate {
	return &Gate{
		validator:   validator,
		directory:   directory,
		scheme:      DefaultAuthScheme,
		publicPaths: publicPaths,
		logger:      defLogger{},
	}
}

func (g *Gate) WithLogger(logger Logger) *Gate {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithAuthScheme overrides the expected Authorization scheme.
func (g *Gate) WithAuthScheme(scheme string) *Gate {
	if scheme != "" {
		g.scheme = scheme
	}
	return g
}

// Authenticate resolves the request to an optional principal. A nil principal
// with a nil error means the request proceeds unauthenticated. The returned
// error is non nil only for the hard account state failures and for store
// errors, which propagate as distinct infrastructure failures instead of
// being folded into "invalid token".
func (g *Gate) Authenticate(ctx context.Context, path, authorization string) (*Principal, error) {
	if g.isPublicPath(path) {
		return nil, nil
	}

	token, ok := g.extractBearerToken(authorization)
	if !ok {
		return nil, nil
	}

	claims, err := g.validator.ValidateAccessToken(token)
	if err != nil {
		g.logger.Debug("gate dropped token", "path", path, "error", err)
		return nil, nil
	}

	userID, err := claims.UserUUID()
	if err != nil {
		g.logger.Debug("gate dropped token with malformed subject", "path", path)
		return nil, nil
	}

	user, err := g.directory.GetByUserID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account status lookup failed")
	}

	user.EnsureStatus()
	if err := statusAuthError(user.Status); err != nil {
		return nil, err
	}

	return &Principal{
		UserID:    user.ID,
		StudentID: user.StudentID,
		Role:      user.Role,
	}, nil
}

// Middleware adapts the gate into router middleware. The downstream chain is
// always invoked except for the hard failures, which terminate the request
// with a machine readable error body.
func (g *Gate) Middleware() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			principal, err := g.Authenticate(c.Context(), c.Path(), c.GetString(router.HeaderAuthorization, ""))
			if err != nil {
				return g.renderError(c, err)
			}

			if principal != nil {
				c.Locals(PrincipalContextKey, principal)
				c.SetContext(WithPrincipalContext(c.Context(), principal))
			}

			return c.Next()
		}
	}
}

// extractBearerToken requires the exact case sensitive scheme prefix and a
// non empty token value.
func (g *Gate) extractBearerToken(authorization string) (string, bool) {
	prefix := g.scheme + " "
	if !strings.HasPrefix(authorization, prefix) {
		return "", false
	}

	token := strings.TrimSpace(authorization[len(prefix):])
	if token == "" {
		return "", false
	}

	return token, true
}

func (g *Gate) isPublicPath(path string) bool {
	for _, pattern := range g.publicPaths {
		if matchPath(pattern, path) {
			return true
		}
	}
	return false
}

// matchPath supports exact matches and a trailing /** wildcard.
func matchPath(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return pattern == path
}

type gateErrorBody struct {
	Error gateErrorDetail `json:"error"`
}

type gateErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *Gate) renderError(c router.Context, err error) error {
	status := router.StatusUnauthorized
	code := "UNAUTHORIZED"
	message := "unauthorized"

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code != 0 {
			status = richErr.Code
		}
		if richErr.TextCode != "" {
			code = richErr.TextCode
		}
		message = richErr.Message
	} else {
		status = router.StatusInternalServerError
		code = "INTERNAL_ERROR"
		message = "internal error"
	}

	body, merr := json.Marshal(gateErrorBody{
		Error: gateErrorDetail{Code: code, Message: message},
	})
	if merr != nil {
		return c.Status(router.StatusInternalServerError).SendString("internal error")
	}

	return c.Status(status).SendString(string(body))
}
