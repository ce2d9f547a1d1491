package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EmailVerifications stores signup verification codes. Every send creates a
// fresh row; the newest unverified row is the authoritative one.
type EmailVerifications interface {
	repository.Repository[*EmailVerification]

	CreateCode(ctx context.Context, email, code string, expiresAt time.Time) (*EmailVerification, error)
	CreateCodeTx(ctx context.Context, tx bun.IDB, email, code string, expiresAt time.Time) (*EmailVerification, error)

	GetLatestUnverified(ctx context.Context, email string) (*EmailVerification, error)
	GetLatest(ctx context.Context, email string) (*EmailVerification, error)

	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	MarkVerified(ctx context.Context, id uuid.UUID) error

	DeleteUnverified(ctx context.Context, email string) error
	DeleteUnverifiedTx(ctx context.Context, tx bun.IDB, email string) error
}

type emailVerifications struct {
	repository.Repository[*EmailVerification]
	db *bun.DB
}

var _ EmailVerifications = (*emailVerifications)(nil)

func NewEmailVerificationsRepository(db *bun.DB) EmailVerifications {
	repo := repository.NewRepository[*EmailVerification](db, repository.ModelHandlers[*EmailVerification]{
		NewRecord: func() *EmailVerification { return &EmailVerification{} },
		GetID: func(ev *EmailVerification) uuid.UUID {
			if ev == nil {
				return uuid.Nil
			}
			return ev.ID
		},
		SetID: func(ev *EmailVerification, id uuid.UUID) {
			if ev != nil {
				ev.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &emailVerifications{
		Repository: repo,
		db:         db,
	}
}

func (r *emailVerifications) CreateCode(ctx context.Context, email, code string, expiresAt time.Time) (*EmailVerification, error) {
	return r.CreateCodeTx(ctx, r.db, email, code, expiresAt)
}

func (r *emailVerifications) CreateCodeTx(ctx context.Context, tx bun.IDB, email, code string, expiresAt time.Time) (*EmailVerification, error) {
	record := &EmailVerification{
		ID:        uuid.New(),
		Email:     email,
		Code:      code,
		ExpiresAt: expiresAt,
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *emailVerifications) GetLatestUnverified(ctx context.Context, email string) (*EmailVerification, error) {
	return r.getLatest(ctx, email, true)
}

func (r *emailVerifications) GetLatest(ctx context.Context, email string) (*EmailVerification, error) {
	return r.getLatest(ctx, email, false)
}

func (r *emailVerifications) getLatest(ctx context.Context, email string, unverifiedOnly bool) (*EmailVerification, error) {
	record := &EmailVerification{}
	q := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email)

	if unverifiedOnly {
		q = q.Where("?TableAlias.verified = ?", false)
	}

	err := q.
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}

	return record, nil
}

// IncrementAttempts persists one failed attempt. The counter survives even
// when the verify call itself fails.
func (r *emailVerifications) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*EmailVerification)(nil)).
		Set("attempts = attempts + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	return err
}

func (r *emailVerifications) MarkVerified(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*EmailVerification)(nil)).
		Set("verified = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	return err
}

func (r *emailVerifications) DeleteUnverified(ctx context.Context, email string) error {
	return r.DeleteUnverifiedTx(ctx, r.db, email)
}

// DeleteUnverifiedTx clears stale codes so a new send starts from a clean slate.
func (r *emailVerifications) DeleteUnverifiedTx(ctx context.Context, tx bun.IDB, email string) error {
	_, err := tx.NewDelete().
		Model((*EmailVerification)(nil)).
		Where("email = ?", email).
		Where("verified = ?", false).
		Exec(ctx)

	return err
}
