package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// RecoveryEligibility reports whether a withdrawn account can still be
// reactivated and until when.
type RecoveryEligibility struct {
	Recoverable bool      `json:"recoverable"`
	Deadline    time.Time `json:"deadline,omitempty"`
}

// AccountRecovery reactivates withdrawn accounts inside the recovery window.
// A successful recovery restores the pre withdrawal role unchanged and issues
// a session pair identical in shape to a login.
type AccountRecovery struct {
	users    Users
	auther   *Auther
	logger   Logger
	now      func() time.Time
	window   time.Duration
	recorder LoginRecorder
}

// NewAccountRecovery returns a new AccountRecovery sharing the authenticator's
// token and session plumbing.
func NewAccountRecovery(repo RepositoryManager, auther *Auther) *AccountRecovery {
	return &AccountRecovery{
		users:    repo.Users(),
		auther:   auther,
		logger:   defLogger{},
		now:      time.Now,
		window:   DefaultRecoveryWindow,
		recorder: NewLoginRecorder(repo.LoginHistories()),
	}
}

func (r *AccountRecovery) WithLogger(logger Logger) *AccountRecovery {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithClock injects a custom clock (useful for tests).
func (r *AccountRecovery) WithClock(clock func() time.Time) *AccountRecovery {
	if clock != nil {
		r.now = clock
	}
	return r
}

// WithWindow overrides the recovery window.
func (r *AccountRecovery) WithWindow(window time.Duration) *AccountRecovery {
	if window > 0 {
		r.window = window
	}
	return r
}

// RecoverAccount reactivates a withdrawn account after re-verifying the
// password. The deleted marker is cleared, status returns to active, and the
// stored role is preserved exactly as it was before withdrawal.
func (r *AccountRecovery) RecoverAccount(ctx context.Context, studentID, password string) (*LoginResult, error) {
	user, err := r.users.GetByStudentIDIncludingDeleted(ctx, studentID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during recovery")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsWithdrawn() {
		return nil, ErrAccountNotRecoverable
	}

	if !user.WithinRecoveryWindow(r.now(), r.window) {
		return nil, ErrRecoveryWindowExpired
	}

	restored, err := r.users.Restore(ctx, user.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to restore user account")
	}

	r.logger.Info("account recovered", "user_id", restored.ID.String(), "role", restored.Role)

	result, err := r.auther.issueSessionPair(ctx, restored)
	if err != nil {
		return nil, err
	}

	r.recorder.RecordSuccess(ctx, restored.ID, restored.StudentID, "", nil)

	return result, nil
}

// CheckEligibility reports whether the account tied to studentID can be
// recovered. Unknown or not withdrawn accounts are simply not recoverable.
func (r *AccountRecovery) CheckEligibility(ctx context.Context, studentID string) (*RecoveryEligibility, error) {
	user, err := r.users.GetByStudentIDIncludingDeleted(ctx, studentID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return &RecoveryEligibility{Recoverable: false}, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for eligibility check")
	}

	deadline, ok := user.RecoverableUntil(r.window)
	if !ok || r.now().After(deadline) {
		return &RecoveryEligibility{Recoverable: false}, nil
	}

	return &RecoveryEligibility{
		Recoverable: true,
		Deadline:    deadline,
	}, nil
}
