package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	RefreshTokens() RefreshTokens
	EmailVerifications() EmailVerifications
	LoginHistories() repository.Repository[*LoginHistory]
	PrivacyConsents() repository.Repository[*PrivacyConsent]
	PasswordResets() repository.Repository[*PasswordReset]
}

func NewLoginHistoriesRepository(db *bun.DB) repository.Repository[*LoginHistory] {
	handlers := repository.ModelHandlers[*LoginHistory]{
		NewRecord: func() *LoginHistory {
			return &LoginHistory{}
		},
		GetID: func(record *LoginHistory) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *LoginHistory, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "student_id"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewPrivacyConsentsRepository(db *bun.DB) repository.Repository[*PrivacyConsent] {
	handlers := repository.ModelHandlers[*PrivacyConsent]{
		NewRecord: func() *PrivacyConsent {
			return &PrivacyConsent{}
		},
		GetID: func(record *PrivacyConsent) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PrivacyConsent, id uuid.UUID) {
			record.ID = id
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewPasswordResetsRepository(db *bun.DB) repository.Repository[*PasswordReset] {
	handlers := repository.ModelHandlers[*PasswordReset]{
		NewRecord: func() *PasswordReset {
			return &PasswordReset{}
		},
		GetID: func(record *PasswordReset) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordReset, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db                 *bun.DB
	users              Users
	refreshTokens      RefreshTokens
	emailVerifications EmailVerifications
	loginHistories     repository.Repository[*LoginHistory]
	privacyConsents    repository.Repository[*PrivacyConsent]
	passwordResets     repository.Repository[*PasswordReset]
}

func NewRepositoryManager(db *bun.DB, opts ...UsersOption) RepositoryManager {
	refreshTokens := NewRefreshTokensRepository(db)

	// withdrawing an account kills every live session for it
	usersOpts := append([]UsersOption{
		WithUsersSessionRevoker(refreshTokens.RevokeAllForUser),
	}, opts...)

	return &mngr{
		db:                 db,
		users:              NewUsersRepository(db, usersOpts...),
		refreshTokens:      refreshTokens,
		emailVerifications: NewEmailVerificationsRepository(db),
		loginHistories:     NewLoginHistoriesRepository(db),
		privacyConsents:    NewPrivacyConsentsRepository(db),
		passwordResets:     NewPasswordResetsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.refreshTokens == nil {
		return errors.New("repository refreshTokens should be initialized")
	}

	if m.emailVerifications == nil {
		return errors.New("repository emailVerifications should be initialized")
	}

	if m.loginHistories == nil {
		return errors.New("repository loginHistories should be initialized")
	}

	if m.privacyConsents == nil {
		return errors.New("repository privacyConsents should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) RefreshTokens() RefreshTokens {
	return m.refreshTokens
}

func (m mngr) EmailVerifications() EmailVerifications {
	return m.emailVerifications
}

func (m mngr) LoginHistories() repository.Repository[*LoginHistory] {
	return m.loginHistories
}

func (m mngr) PrivacyConsents() repository.Repository[*PrivacyConsent] {
	return m.privacyConsents
}

func (m mngr) PasswordResets() repository.Repository[*PasswordReset] {
	return m.passwordResets
}
