package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshTokens is the persistence contract for refresh sessions. Rows are
// revoked in place, never physically deleted, so expiry and revocation are
// always re-checked against the store at exchange time.
type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	Issue(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (*RefreshToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string, expiresAt time.Time) (*RefreshToken, error)

	GetActive(ctx context.Context, token string) (*RefreshToken, error)

	Revoke(ctx context.Context, token string) error
	RevokeTx(ctx context.Context, tx bun.IDB, token string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
	RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db *bun.DB
}

var _ RefreshTokens = (*refreshTokens)(nil)

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(rt *RefreshToken) uuid.UUID {
			if rt == nil {
				return uuid.Nil
			}
			return rt.ID
		},
		SetID: func(rt *RefreshToken, id uuid.UUID) {
			if rt != nil {
				rt.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &refreshTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *refreshTokens) Issue(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) (*RefreshToken, error) {
	return r.IssueTx(ctx, r.db, userID, token, expiresAt)
}

func (r *refreshTokens) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string, expiresAt time.Time) (*RefreshToken, error) {
	record := &RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

// GetActive finds the non revoked row matching token. Expiry is left to the
// caller, which compares against its own clock.
func (r *refreshTokens) GetActive(ctx context.Context, token string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Where("?TableAlias.revoked = ?", false).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *refreshTokens) Revoke(ctx context.Context, token string) error {
	return r.RevokeTx(ctx, r.db, token)
}

// RevokeTx marks the row revoked. Idempotent: unknown or already revoked
// tokens are not an error.
func (r *refreshTokens) RevokeTx(ctx context.Context, tx bun.IDB, token string) error {
	_, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("token = ?", token).
		Where("revoked = ?", false).
		Exec(ctx)

	return err
}

func (r *refreshTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return r.RevokeAllForUserTx(ctx, r.db, userID)
}

// RevokeAllForUserTx revokes every live session for the user in one update.
func (r *refreshTokens) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ?", userID).
		Where("revoked = ?", false).
		Exec(ctx)

	return err
}

// DeleteExpired is optional housekeeping. Correctness never depends on it
// since expiry is re-checked on every exchange.
func (r *refreshTokens) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("expires_at < ?", before).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
