// Package auth implements the authentication and session lifecycle for the
// igrus membership platform.
//
// Members sign up with their student id, confirm a 6 digit code emailed to
// them, and authenticate with student id and password. Sessions are a JWT
// access/refresh pair: access tokens are stateless, refresh tokens are
// persisted so they can be revoked. Withdrawn accounts stay recoverable for a
// grace period before the withdrawal becomes final.
//
// The main entry points are:
//
//   - TokenServiceImpl mints and validates the HS256 token pair.
//   - Auther drives login, refresh, and logout.
//   - SignupHandler registers accounts and records privacy consent.
//   - EmailVerifier issues and checks signup verification codes.
//   - AccountRecovery reactivates withdrawn accounts inside the window.
//   - PasswordResetService handles the emailed reset link flow.
//   - Gate authenticates inbound requests and exposes router middleware.
//
// Persistence goes through RepositoryManager, which wraps bun repositories
// for users, refresh tokens, verification codes, login history, privacy
// consents, and password resets. RegisterAuthRoutes mounts the JSON API on a
// go-router instance.
package auth
