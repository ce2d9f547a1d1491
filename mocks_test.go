package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/igrus/go-member-auth"
)

// The fakes embed the repository interfaces so only the methods the code
// under test actually reaches need an implementation. Anything else panics,
// which is exactly what we want in a unit test.

type fakeUsers struct {
	auth.Users
	rows []*auth.User

	getByEmailErr error
	resetHashes   map[uuid.UUID]string
}

func newFakeUsers(users ...*auth.User) *fakeUsers {
	return &fakeUsers{
		rows:        users,
		resetHashes: map[uuid.UUID]string{},
	}
}

func (f *fakeUsers) add(u *auth.User) *fakeUsers {
	f.rows = append(f.rows, u)
	return f
}

// GetByUserID sees soft deleted rows, mirroring the real repository, so the
// gate and refresh paths observe withdrawn accounts instead of a miss.
func (f *fakeUsers) GetByUserID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	for _, u := range f.rows {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByStudentID(_ context.Context, studentID string) (*auth.User, error) {
	for _, u := range f.rows {
		if u.StudentID == studentID && u.DeletedAt == nil {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByStudentIDIncludingDeleted(_ context.Context, studentID string) (*auth.User, error) {
	for _, u := range f.rows {
		if u.StudentID == studentID {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) GetByStudentIDIncludingDeletedTx(ctx context.Context, _ bun.IDB, studentID string) (*auth.User, error) {
	return f.GetByStudentIDIncludingDeleted(ctx, studentID)
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	if f.getByEmailErr != nil {
		return nil, f.getByEmailErr
	}
	for _, u := range f.rows {
		if u.Email == email && u.DeletedAt == nil {
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) ExistsByStudentID(_ context.Context, studentID string) (bool, error) {
	for _, u := range f.rows {
		if u.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	for _, u := range f.rows {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) ExistsByEmailTx(ctx context.Context, _ bun.IDB, email string) (bool, error) {
	return f.ExistsByEmail(ctx, email)
}

func (f *fakeUsers) ExistsByPhone(_ context.Context, phone string) (bool, error) {
	for _, u := range f.rows {
		if u.Phone == phone && phone != "" {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) ExistsByPhoneTx(ctx context.Context, _ bun.IDB, phone string) (bool, error) {
	return f.ExistsByPhone(ctx, phone)
}

func (f *fakeUsers) CreateTx(_ context.Context, _ bun.IDB, record *auth.User, _ ...repository.InsertCriteria) (*auth.User, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Role == "" {
		record.Role = auth.RoleAssociate
	}
	record.EnsureStatus()
	f.rows = append(f.rows, record)
	return record, nil
}

func (f *fakeUsers) Restore(_ context.Context, id uuid.UUID) (*auth.User, error) {
	for _, u := range f.rows {
		if u.ID == id {
			u.Status = auth.UserStatusActive
			u.DeletedAt = nil
			return u, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeUsers) Activate(_ context.Context, _ auth.ActorRef, user *auth.User, _ ...auth.TransitionOption) (*auth.User, error) {
	user.Status = auth.UserStatusActive
	return user, nil
}

func (f *fakeUsers) ResetPasswordTx(_ context.Context, _ bun.IDB, id uuid.UUID, passwordHash string) error {
	for _, u := range f.rows {
		if u.ID == id {
			u.PasswordHash = passwordHash
			f.resetHashes[id] = passwordHash
			return nil
		}
	}
	return repository.NewRecordNotFound()
}

type fakeSessions struct {
	auth.RefreshTokens
	rows map[string]*auth.RefreshToken

	getActiveErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: map[string]*auth.RefreshToken{}}
}

func (f *fakeSessions) Issue(_ context.Context, userID uuid.UUID, token string, expiresAt time.Time) (*auth.RefreshToken, error) {
	record := &auth.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	f.rows[token] = record
	return record, nil
}

func (f *fakeSessions) GetActive(_ context.Context, token string) (*auth.RefreshToken, error) {
	if f.getActiveErr != nil {
		return nil, f.getActiveErr
	}
	record, ok := f.rows[token]
	if !ok || record.Revoked {
		return nil, repository.NewRecordNotFound()
	}
	return record, nil
}

func (f *fakeSessions) Revoke(_ context.Context, token string) error {
	if record, ok := f.rows[token]; ok {
		record.Revoked = true
	}
	return nil
}

func (f *fakeSessions) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	for _, record := range f.rows {
		if record.UserID == userID {
			record.Revoked = true
		}
	}
	return nil
}

func (f *fakeSessions) activeCount() int {
	n := 0
	for _, record := range f.rows {
		if !record.Revoked {
			n++
		}
	}
	return n
}

type fakeHistories struct {
	repository.Repository[*auth.LoginHistory]
	rows      []*auth.LoginHistory
	createErr error
}

func newFakeHistories() *fakeHistories {
	return &fakeHistories{}
}

func (f *fakeHistories) Create(_ context.Context, record *auth.LoginHistory, _ ...repository.InsertCriteria) (*auth.LoginHistory, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.rows = append(f.rows, record)
	return record, nil
}

func (f *fakeHistories) last() *auth.LoginHistory {
	if len(f.rows) == 0 {
		return nil
	}
	return f.rows[len(f.rows)-1]
}

type fakeVerifications struct {
	auth.EmailVerifications
	rows []*auth.EmailVerification
	now  func() time.Time
}

func newFakeVerifications(clock func() time.Time) *fakeVerifications {
	if clock == nil {
		clock = time.Now
	}
	return &fakeVerifications{now: clock}
}

func (f *fakeVerifications) CreateCode(_ context.Context, email, code string, expiresAt time.Time) (*auth.EmailVerification, error) {
	createdAt := f.now()
	record := &auth.EmailVerification{
		ID:        uuid.New(),
		Email:     email,
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: &createdAt,
	}
	f.rows = append(f.rows, record)
	return record, nil
}

func (f *fakeVerifications) GetLatestUnverified(_ context.Context, email string) (*auth.EmailVerification, error) {
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].Email == email && !f.rows[i].Verified {
			return f.rows[i], nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeVerifications) GetLatest(_ context.Context, email string) (*auth.EmailVerification, error) {
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].Email == email {
			return f.rows[i], nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeVerifications) IncrementAttempts(_ context.Context, id uuid.UUID) error {
	for _, record := range f.rows {
		if record.ID == id {
			record.Attempts++
			return nil
		}
	}
	return repository.NewRecordNotFound()
}

func (f *fakeVerifications) MarkVerified(_ context.Context, id uuid.UUID) error {
	for _, record := range f.rows {
		if record.ID == id {
			record.Verified = true
			return nil
		}
	}
	return repository.NewRecordNotFound()
}

func (f *fakeVerifications) DeleteUnverified(_ context.Context, email string) error {
	kept := f.rows[:0]
	for _, record := range f.rows {
		if record.Email != email || record.Verified {
			kept = append(kept, record)
		}
	}
	f.rows = kept
	return nil
}

type fakeConsents struct {
	repository.Repository[*auth.PrivacyConsent]
	rows []*auth.PrivacyConsent
}

func (f *fakeConsents) CreateTx(_ context.Context, _ bun.IDB, record *auth.PrivacyConsent, _ ...repository.InsertCriteria) (*auth.PrivacyConsent, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	f.rows = append(f.rows, record)
	return record, nil
}

type fakeResets struct {
	repository.Repository[*auth.PasswordReset]
	rows []*auth.PasswordReset
}

func (f *fakeResets) Create(_ context.Context, record *auth.PasswordReset, _ ...repository.InsertCriteria) (*auth.PasswordReset, error) {
	f.rows = append(f.rows, record)
	return record, nil
}

func (f *fakeResets) GetByIdentifier(_ context.Context, identifier string, _ ...repository.SelectCriteria) (*auth.PasswordReset, error) {
	for _, record := range f.rows {
		if record.Token == identifier {
			return record, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (f *fakeResets) UpdateTx(_ context.Context, _ bun.IDB, record *auth.PasswordReset, _ ...repository.UpdateCriteria) (*auth.PasswordReset, error) {
	for _, existing := range f.rows {
		if existing.ID == record.ID {
			if record.UsedAt != nil {
				existing.UsedAt = record.UsedAt
			}
			return existing, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

type fakeSender struct {
	codes      map[string]string
	resetLinks map[string]string
	sendErr    error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		codes:      map[string]string{},
		resetLinks: map[string]string{},
	}
}

func (f *fakeSender) SendVerificationCode(_ context.Context, email, code string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.codes[email] = code
	return nil
}

func (f *fakeSender) SendPasswordResetLink(_ context.Context, email, token string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.resetLinks[email] = token
	return nil
}

// stubRepoManager wires the fakes behind the RepositoryManager interface.
type stubRepoManager struct {
	users         *fakeUsers
	sessions      *fakeSessions
	histories     *fakeHistories
	verifications *fakeVerifications
	consents      *fakeConsents
	resets        *fakeResets
}

func newStubRepoManager() *stubRepoManager {
	return &stubRepoManager{
		users:         newFakeUsers(),
		sessions:      newFakeSessions(),
		histories:     newFakeHistories(),
		verifications: newFakeVerifications(nil),
		consents:      &fakeConsents{},
		resets:        &fakeResets{},
	}
}

func (m *stubRepoManager) Validate() error { return nil }
func (m *stubRepoManager) MustValidate()   {}

func (m *stubRepoManager) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *stubRepoManager) Users() auth.Users                       { return m.users }
func (m *stubRepoManager) RefreshTokens() auth.RefreshTokens       { return m.sessions }
func (m *stubRepoManager) EmailVerifications() auth.EmailVerifications {
	return m.verifications
}

func (m *stubRepoManager) LoginHistories() repository.Repository[*auth.LoginHistory] {
	return m.histories
}

func (m *stubRepoManager) PrivacyConsents() repository.Repository[*auth.PrivacyConsent] {
	return m.consents
}

func (m *stubRepoManager) PasswordResets() repository.Repository[*auth.PasswordReset] {
	return m.resets
}

var errStoreDown = errors.New("store unavailable")
