package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var restoreUserSQL = `UPDATE "users" AS "usr"
SET
	"status" = ?,
	"deleted_at" = NULL,
	"updated_at" = ?
WHERE
	"usr"."id" = ?
RETURNING *;`

var resetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*User]

	GetByUserID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByStudentID(ctx context.Context, studentID string) (*User, error)
	GetByStudentIDIncludingDeleted(ctx context.Context, studentID string) (*User, error)
	GetByStudentIDIncludingDeletedTx(ctx context.Context, tx bun.IDB, studentID string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	ExistsByStudentID(ctx context.Context, studentID string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	ExistsByPhoneTx(ctx context.Context, tx bun.IDB, phone string) (bool, error)

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)

	Suspend(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
	Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
	Withdraw(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
	Activate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)

	Restore(ctx context.Context, id uuid.UUID) (*User, error)
	RestoreTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type users struct {
	repository.Repository[*User]
	db                  *bun.DB
	now                 func() time.Time
	stateMachine        UserStateMachine
	stateMachineOptions []StateMachineOption
	revokeSessions      func(ctx context.Context, userID uuid.UUID) error
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "student_id"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func WithUsersClock(clock func() time.Time) UsersOption {
	return func(u *users) {
		if clock != nil {
			u.now = clock
		}
	}
}

func WithUsersStateMachineOptions(options ...StateMachineOption) UsersOption {
	return func(u *users) {
		if len(options) == 0 {
			return
		}
		u.stateMachineOptions = append(u.stateMachineOptions, options...)
		u.stateMachine = nil
	}
}

func WithUsersStateMachine(sm UserStateMachine) UsersOption {
	return func(u *users) {
		u.stateMachine = sm
	}
}

// WithUsersSessionRevoker wires refresh session revocation into withdrawal so
// a withdrawn member cannot keep minting access tokens.
func WithUsersSessionRevoker(revoke func(ctx context.Context, userID uuid.UUID) error) UsersOption {
	return func(u *users) {
		u.revokeSessions = revoke
	}
}

// GetByUserID bypasses the soft delete filter. The gate and the refresh
// exchange read account status through it and need the row back for a
// withdrawn user so they can fail with the account state instead of
// record-not-found.
func (a *users) GetByUserID(ctx context.Context, id uuid.UUID) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		WhereAllWithDeleted().
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByStudentID(ctx context.Context, studentID string) (*User, error) {
	return a.getByColumn(ctx, a.db, "student_id", strings.TrimSpace(studentID), false)
}

// GetByStudentIDIncludingDeleted also matches soft deleted rows, which login
// and recovery need to tell a withdrawn account apart from an unknown one.
func (a *users) GetByStudentIDIncludingDeleted(ctx context.Context, studentID string) (*User, error) {
	return a.getByColumn(ctx, a.db, "student_id", strings.TrimSpace(studentID), true)
}

// GetByStudentIDIncludingDeletedTx is the same lookup inside an open
// transaction, so signup duplicate checks read through the tx they run in.
func (a *users) GetByStudentIDIncludingDeletedTx(ctx context.Context, tx bun.IDB, studentID string) (*User, error) {
	return a.getByColumn(ctx, tx, "student_id", strings.TrimSpace(studentID), true)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.getByColumn(ctx, a.db, "email", strings.TrimSpace(email), false)
}

func (a *users) getByColumn(ctx context.Context, idb bun.IDB, column, value string, includeDeleted bool) (*User, error) {
	record := &User{}
	q := idb.NewSelect().Model(record)

	if includeDeleted {
		q = q.WhereAllWithDeleted()
	}

	err := q.
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) ExistsByStudentID(ctx context.Context, studentID string) (bool, error) {
	return a.existsByColumn(ctx, a.db, "student_id", studentID)
}

func (a *users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return a.existsByColumn(ctx, a.db, "email", email)
}

func (a *users) ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	return a.existsByColumn(ctx, tx, "email", email)
}

func (a *users) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	return a.existsByColumn(ctx, a.db, "phone_number", phone)
}

func (a *users) ExistsByPhoneTx(ctx context.Context, tx bun.IDB, phone string) (bool, error) {
	return a.existsByColumn(ctx, tx, "phone_number", phone)
}

func (a *users) existsByColumn(ctx context.Context, idb bun.IDB, column, value string) (bool, error) {
	return idb.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias."+column+" = ?", strings.TrimSpace(value)).
		Exists(ctx)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

// UpdateStatusTx updates lifecycle columns with raw SQL so it can both set
// and clear suspended_at/deleted_at on rows the soft delete filter would
// otherwise hide.
func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	update := &statusUpdate{}
	for _, opt := range opts {
		if opt != nil {
			opt(update)
		}
	}

	sets := []string{`"status" = ?`, `"updated_at" = ?`}
	args := []any{string(status), a.now()}

	if update.setSuspendedAt {
		sets = append(sets, `"suspended_at" = ?`)
		args = append(args, update.suspendedAt)
	}
	if update.setDeletedAt {
		sets = append(sets, `"deleted_at" = ?`)
		args = append(args, update.deletedAt)
	}

	args = append(args, id.String())

	sql := `UPDATE "users" AS "usr" SET ` + strings.Join(sets, ", ") +
		` WHERE "usr"."id" = ? RETURNING *;`

	res, err := a.Repository.RawTx(ctx, tx, sql, args...)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *users) Restore(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.RestoreTx(ctx, a.db, id)
}

// RestoreTx clears the soft delete marker and reactivates the account. The
// stored role is untouched so recovery keeps the pre withdrawal role intact.
func (a *users) RestoreTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, restoreUserSQL, string(UserStatusActive), a.now(), id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return res[0], nil
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, resetUserPasswordSQL, passwordHash, a.now(), id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) Suspend(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusSuspended, opts...)
}

func (a *users) Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusActive, opts...)
}

// Withdraw soft deletes the account and invalidates every live refresh
// session for it, so only recovery can bring the member back.
func (a *users) Withdraw(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	updated, err := a.lifecycleMachine().Transition(ctx, actor, user, UserStatusWithdrawn, opts...)
	if err != nil {
		return nil, err
	}

	if a.revokeSessions != nil {
		if err := a.revokeSessions(ctx, updated.ID); err != nil {
			return updated, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke sessions on withdrawal")
		}
	}

	return updated, nil
}

// Activate promotes a pending verification account once its email code has
// been confirmed.
func (a *users) Activate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusActive, opts...)
}

type statusUpdate struct {
	suspendedAt    *time.Time
	setSuspendedAt bool
	deletedAt      *time.Time
	setDeletedAt   bool
}

// StatusUpdateOption allows callers to adjust lifecycle timestamps alongside a status change.
type StatusUpdateOption func(*statusUpdate)

// WithSuspendedAt sets or clears the SuspendedAt timestamp during a status transition.
func WithSuspendedAt(at *time.Time) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.suspendedAt = at
		u.setSuspendedAt = true
	}
}

// WithDeletedAt sets or clears the DeletedAt timestamp during a status transition.
func WithDeletedAt(at *time.Time) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.deletedAt = at
		u.setDeletedAt = true
	}
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleAssociate
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func (a *users) lifecycleMachine() UserStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewUserStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}
