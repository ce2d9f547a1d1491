package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/igrus/go-member-auth"
)

const newResetPassword = "BrandNewPass1!@"

type resetWorld struct {
	repo   *stubRepoManager
	sender *fakeSender
	resets *auth.PasswordResetService
	clock  *time.Time
}

func newResetWorld(t *testing.T) *resetWorld {
	t.Helper()

	now := time.Now()
	clock := &now
	tick := func() time.Time { return *clock }

	repo := newStubRepoManager()
	sender := newFakeSender()
	resets := auth.NewPasswordResetService(repo, sender).WithClock(tick)

	return &resetWorld{
		repo:   repo,
		sender: sender,
		resets: resets,
		clock:  clock,
	}
}

func (w *resetWorld) initialize(t *testing.T, email string) string {
	t.Helper()
	require.NoError(t, w.resets.Initialize(context.Background(), auth.InitializePasswordResetMessage{Email: email}))
	token := w.sender.resetLinks[email]
	require.NotEmpty(t, token)
	return token
}

func TestPasswordReset_FullFlow(t *testing.T) {
	w := newResetWorld(t)
	user := newActiveUser(t)
	w.repo.users.add(user)

	token := w.initialize(t, user.Email)

	err := w.resets.Finalize(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    token,
		Password: newResetPassword,
	})
	require.NoError(t, err)

	assert.NoError(t, auth.ComparePasswordAndHash(newResetPassword, user.PasswordHash))
	assert.ErrorIs(t, auth.ComparePasswordAndHash(testPassword, user.PasswordHash), auth.ErrInvalidCredentials)

	require.Len(t, w.repo.resets.rows, 1)
	assert.NotNil(t, w.repo.resets.rows[0].UsedAt)
}

func TestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	w := newResetWorld(t)

	err := w.resets.Initialize(context.Background(), auth.InitializePasswordResetMessage{
		Email: "ghost@example.com",
	})
	require.NoError(t, err, "unknown emails must not be distinguishable")

	assert.Empty(t, w.sender.resetLinks)
	assert.Empty(t, w.repo.resets.rows)
}

func TestPasswordReset_InitializeRejectsBadEmail(t *testing.T) {
	w := newResetWorld(t)

	err := w.resets.Initialize(context.Background(), auth.InitializePasswordResetMessage{
		Email: "not-an-email",
	})
	require.Error(t, err)
}

func TestPasswordReset_StoreFailureSurfaces(t *testing.T) {
	w := newResetWorld(t)
	w.repo.users.getByEmailErr = errStoreDown

	err := w.resets.Initialize(context.Background(), auth.InitializePasswordResetMessage{
		Email: "jiwoo@example.com",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestPasswordReset_FinalizeRejectsBadTokens(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		w := newResetWorld(t)

		err := w.resets.Finalize(context.Background(), auth.FinalizePasswordResetMessage{
			Token:    "never-issued",
			Password: newResetPassword,
		})
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("already used token", func(t *testing.T) {
		w := newResetWorld(t)
		user := newActiveUser(t)
		w.repo.users.add(user)

		token := w.initialize(t, user.Email)

		msg := auth.FinalizePasswordResetMessage{Token: token, Password: newResetPassword}
		require.NoError(t, w.resets.Finalize(context.Background(), msg))

		err := w.resets.Finalize(context.Background(), msg)
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		w := newResetWorld(t)
		user := newActiveUser(t)
		w.repo.users.add(user)

		token := w.initialize(t, user.Email)
		*w.clock = w.clock.Add(auth.DefaultResetTokenTTL + time.Second)

		err := w.resets.Finalize(context.Background(), auth.FinalizePasswordResetMessage{
			Token:    token,
			Password: newResetPassword,
		})
		assert.ErrorIs(t, err, auth.ErrResetTokenExpired)
	})

	t.Run("weak password", func(t *testing.T) {
		w := newResetWorld(t)
		user := newActiveUser(t)
		w.repo.users.add(user)

		token := w.initialize(t, user.Email)

		err := w.resets.Finalize(context.Background(), auth.FinalizePasswordResetMessage{
			Token:    token,
			Password: "short",
		})
		require.Error(t, err)
		assert.NoError(t, auth.ComparePasswordAndHash(testPassword, user.PasswordHash),
			"the old password stays in place")
	})
}

func TestPasswordReset_EachRequestIssuesDistinctToken(t *testing.T) {
	w := newResetWorld(t)
	user := newActiveUser(t)
	w.repo.users.add(user)

	first := w.initialize(t, user.Email)
	second := w.initialize(t, user.Email)

	assert.NotEqual(t, first, second)
	assert.Len(t, w.repo.resets.rows, 2)

	// the older token remains valid until used or expired
	err := w.resets.Finalize(context.Background(), auth.FinalizePasswordResetMessage{
		Token:    first,
		Password: newResetPassword,
	})
	assert.NoError(t, err)
}
