package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/igrus/go-member-auth"
)

func newWithdrawnUser(t *testing.T, deletedAt time.Time) *auth.User {
	t.Helper()
	user := newActiveUser(t)
	user.Status = auth.UserStatusWithdrawn
	user.DeletedAt = &deletedAt
	return user
}

func newRecoveryWorld(t *testing.T) (*authWorld, *auth.AccountRecovery) {
	t.Helper()
	w := newAuthWorld(t)
	recovery := auth.NewAccountRecovery(w.repo, w.auther).WithClock(func() time.Time { return *w.clock })
	return w, recovery
}

func TestRecoverAccount_InsideWindow(t *testing.T) {
	w, recovery := newRecoveryWorld(t)

	user := newWithdrawnUser(t, w.clock.Add(-3*24*time.Hour))
	user.Role = auth.RoleOperator
	w.repo.users.add(user)

	result, err := recovery.RecoverAccount(context.Background(), testStudentID, testPassword)
	require.NoError(t, err)

	assert.Equal(t, auth.UserStatusActive, user.Status)
	assert.Nil(t, user.DeletedAt)
	assert.Equal(t, auth.RoleOperator, user.Role, "role survives withdrawal untouched")

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, auth.RoleOperator, result.Role)

	claims, err := w.tokens.ValidateAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, string(auth.RoleOperator), claims.Role())

	record := w.repo.histories.last()
	require.NotNil(t, record)
	assert.True(t, record.Success)

	// the recovered account can immediately log in again
	_, err = w.auther.Login(context.Background(), auth.LoginInput{
		StudentID: testStudentID,
		Password:  testPassword,
	})
	assert.NoError(t, err)
}

func TestRecoverAccount_WindowExpired(t *testing.T) {
	w, recovery := newRecoveryWorld(t)
	w.repo.users.add(newWithdrawnUser(t, w.clock.Add(-6*24*time.Hour)))

	_, err := recovery.RecoverAccount(context.Background(), testStudentID, testPassword)
	assert.ErrorIs(t, err, auth.ErrRecoveryWindowExpired)
}

func TestRecoverAccount_NotWithdrawn(t *testing.T) {
	w, recovery := newRecoveryWorld(t)
	w.repo.users.add(newActiveUser(t))

	_, err := recovery.RecoverAccount(context.Background(), testStudentID, testPassword)
	assert.ErrorIs(t, err, auth.ErrAccountNotRecoverable)
}

func TestRecoverAccount_BadCredentials(t *testing.T) {
	t.Run("wrong password", func(t *testing.T) {
		w, recovery := newRecoveryWorld(t)
		user := newWithdrawnUser(t, w.clock.Add(-time.Hour))
		w.repo.users.add(user)

		_, err := recovery.RecoverAccount(context.Background(), testStudentID, "not-the-password")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Equal(t, auth.UserStatusWithdrawn, user.Status, "account stays withdrawn")
	})

	t.Run("unknown student id", func(t *testing.T) {
		_, recovery := newRecoveryWorld(t)

		_, err := recovery.RecoverAccount(context.Background(), "00000000", testPassword)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestCheckEligibility(t *testing.T) {
	t.Run("recoverable with deadline", func(t *testing.T) {
		w, recovery := newRecoveryWorld(t)
		deletedAt := w.clock.Add(-2 * 24 * time.Hour)
		w.repo.users.add(newWithdrawnUser(t, deletedAt))

		eligibility, err := recovery.CheckEligibility(context.Background(), testStudentID)
		require.NoError(t, err)
		assert.True(t, eligibility.Recoverable)
		assert.Equal(t, deletedAt.Add(auth.DefaultRecoveryWindow), eligibility.Deadline)
	})

	t.Run("window elapsed", func(t *testing.T) {
		w, recovery := newRecoveryWorld(t)
		w.repo.users.add(newWithdrawnUser(t, w.clock.Add(-10*24*time.Hour)))

		eligibility, err := recovery.CheckEligibility(context.Background(), testStudentID)
		require.NoError(t, err)
		assert.False(t, eligibility.Recoverable)
	})

	t.Run("unknown account is simply not recoverable", func(t *testing.T) {
		_, recovery := newRecoveryWorld(t)

		eligibility, err := recovery.CheckEligibility(context.Background(), "00000000")
		require.NoError(t, err)
		assert.False(t, eligibility.Recoverable)
		assert.True(t, eligibility.Deadline.IsZero())
	})

	t.Run("active account is not recoverable", func(t *testing.T) {
		w, recovery := newRecoveryWorld(t)
		w.repo.users.add(newActiveUser(t))

		eligibility, err := recovery.CheckEligibility(context.Background(), testStudentID)
		require.NoError(t, err)
		assert.False(t, eligibility.Recoverable)
	})
}
