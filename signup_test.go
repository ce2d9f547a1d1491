package auth_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/igrus/go-member-auth"
)

func validSignup() auth.SignupMessage {
	return auth.SignupMessage{
		StudentID:      "12251234",
		Name:           "Park Minseo",
		Email:          "minseo@example.com",
		Phone:          "010-1234-5678",
		Department:     "Computer Engineering",
		Motivation:     "I want to build things with people who care.",
		Password:       "SignupPass1!@",
		PrivacyConsent: true,
	}
}

type signupWorld struct {
	repo    *stubRepoManager
	sender  *fakeSender
	handler *auth.SignupHandler
	clock   *time.Time
}

func newSignupWorld(t *testing.T) *signupWorld {
	t.Helper()

	now := time.Now()
	clock := &now
	tick := func() time.Time { return *clock }

	repo := newStubRepoManager()
	repo.verifications = newFakeVerifications(tick)
	sender := newFakeSender()

	verifier := auth.NewEmailVerifier(repo, sender).WithClock(tick)
	handler := auth.NewSignupHandler(repo, verifier).WithClock(tick)

	return &signupWorld{
		repo:    repo,
		sender:  sender,
		handler: handler,
		clock:   clock,
	}
}

func TestSignup_HappyPath(t *testing.T) {
	w := newSignupWorld(t)
	msg := validSignup()

	result, err := w.handler.Execute(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, msg.Email, result.Email)
	assert.True(t, result.RequiresVerification)

	require.Len(t, w.repo.users.rows, 1)
	user := w.repo.users.rows[0]
	assert.Equal(t, msg.StudentID, user.StudentID)
	assert.Equal(t, auth.UserStatusPendingVerification, user.Status)
	assert.Equal(t, auth.RoleAssociate, user.Role)
	assert.Equal(t, "+821012345678", user.Phone, "phone is normalized to E.164")
	assert.NotEqual(t, msg.Password, user.PasswordHash)
	assert.NoError(t, auth.ComparePasswordAndHash(msg.Password, user.PasswordHash))

	require.Len(t, w.repo.consents.rows, 1)
	consent := w.repo.consents.rows[0]
	assert.Equal(t, user.ID, consent.UserID)
	assert.Equal(t, auth.PrivacyPolicyVersion, consent.PolicyVersion)
	assert.True(t, consent.ConsentGiven)
	assert.Equal(t, *w.clock, consent.ConsentDate)

	assert.NotEmpty(t, w.sender.codes[msg.Email], "a verification code went out")
}

func TestSignup_ValidationFailures(t *testing.T) {
	mutations := map[string]func(*auth.SignupMessage){
		"short student id":  func(m *auth.SignupMessage) { m.StudentID = "1234" },
		"non digit id":      func(m *auth.SignupMessage) { m.StudentID = "12a51234" },
		"missing name":      func(m *auth.SignupMessage) { m.Name = "" },
		"bad email":         func(m *auth.SignupMessage) { m.Email = "not-an-email" },
		"short password":    func(m *auth.SignupMessage) { m.Password = "short" },
		"consent not given": func(m *auth.SignupMessage) { m.PrivacyConsent = false },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			w := newSignupWorld(t)
			msg := validSignup()
			mutate(&msg)

			_, err := w.handler.Execute(context.Background(), msg)
			require.Error(t, err)
			assert.Empty(t, w.repo.users.rows, "no user is created on validation failure")
		})
	}
}

func TestSignup_InvalidPhone(t *testing.T) {
	w := newSignupWorld(t)
	msg := validSignup()
	msg.Phone = "not-a-phone"

	_, err := w.handler.Execute(context.Background(), msg)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "INVALID_PHONE", richErr.TextCode)
}

func TestSignup_PhoneIsOptional(t *testing.T) {
	w := newSignupWorld(t)
	msg := validSignup()
	msg.Phone = ""

	_, err := w.handler.Execute(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, w.repo.users.rows[0].Phone)
}

func TestSignup_Duplicates(t *testing.T) {
	t.Run("student id", func(t *testing.T) {
		w := newSignupWorld(t)
		existing := newActiveUser(t)
		existing.StudentID = "12251234"
		w.repo.users.add(existing)

		_, err := w.handler.Execute(context.Background(), validSignup())
		assert.ErrorIs(t, err, auth.ErrDuplicateStudentID)
	})

	t.Run("email", func(t *testing.T) {
		w := newSignupWorld(t)
		existing := newActiveUser(t)
		existing.Email = "minseo@example.com"
		w.repo.users.add(existing)

		_, err := w.handler.Execute(context.Background(), validSignup())
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("phone", func(t *testing.T) {
		w := newSignupWorld(t)
		existing := newActiveUser(t)
		existing.Phone = "+821012345678"
		w.repo.users.add(existing)

		_, err := w.handler.Execute(context.Background(), validSignup())
		assert.ErrorIs(t, err, auth.ErrDuplicatePhone)
	})
}

func TestSignup_RecentWithdrawalBlocksReRegistration(t *testing.T) {
	w := newSignupWorld(t)

	withdrawn := newActiveUser(t)
	withdrawn.StudentID = "12251234"
	withdrawn.Email = "old@example.com"
	withdrawn.Status = auth.UserStatusWithdrawn
	deletedAt := w.clock.Add(-24 * time.Hour)
	withdrawn.DeletedAt = &deletedAt
	w.repo.users.add(withdrawn)

	_, err := w.handler.Execute(context.Background(), validSignup())
	assert.ErrorIs(t, err, auth.ErrRecentWithdrawal)
}

func TestSignup_ExpiredWithdrawalAllowsReRegistration(t *testing.T) {
	w := newSignupWorld(t)

	withdrawn := newActiveUser(t)
	withdrawn.StudentID = "12251234"
	withdrawn.Email = "old@example.com"
	withdrawn.Phone = ""
	withdrawn.Status = auth.UserStatusWithdrawn
	deletedAt := w.clock.Add(-10 * 24 * time.Hour)
	withdrawn.DeletedAt = &deletedAt
	w.repo.users.add(withdrawn)

	result, err := w.handler.Execute(context.Background(), validSignup())
	require.NoError(t, err)
	assert.True(t, result.RequiresVerification)
}

func TestSignup_CancelledContext(t *testing.T) {
	w := newSignupWorld(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.handler.Execute(ctx, validSignup())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
