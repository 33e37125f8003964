package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"clubdesk/internal/platform/audit"
	"clubdesk/internal/platform/auth"
	"clubdesk/internal/platform/config"
	"clubdesk/internal/platform/database"
	"clubdesk/internal/platform/models"
	apperrors "clubdesk/internal/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const setConfig = `SELECT set_config\('app.tenant_id', \$1, false\)`

type fakeLookup map[string]*models.Credentials

func (f fakeLookup) Lookup(_ context.Context, email string) (*models.Credentials, error) {
	if c, ok := f[email]; ok {
		return c, nil
	}
	return nil, apperrors.NotFound("accounts.lookup")
}

type fakeNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = map[string]string{}
	}
	n.tokens[email] = token
	return nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Log(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, e.Action)
}

type fixture struct {
	svc      *Service
	mock     sqlmock.Sqlmock
	lookup   fakeLookup
	notifier *fakeNotifier
	auditor  *recordingAuditor
	tokens   *auth.TokenService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		mock:     mock,
		lookup:   fakeLookup{},
		notifier: &fakeNotifier{},
		auditor:  &recordingAuditor{},
		tokens:   auth.NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour}),
	}
	manager := database.NewManager(sqlx.NewDb(db, "postgres"), f.auditor)
	f.svc = NewService(manager, f.lookup, f.tokens, f.notifier, f.auditor)
	return f
}

func (f *fixture) expectBypass() {
	f.mock.ExpectExec(setConfig).WithArgs("", "", "on").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectBegin()
}

func (f *fixture) expectCleared() {
	f.mock.ExpectExec(setConfig).WithArgs("", "", "off").WillReturnResult(sqlmock.NewResult(0, 1))
}

func (f *fixture) addAccount(t *testing.T, email, password string) *models.Credentials {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	c := &models.Credentials{AccountID: uuid.New(), SchoolID: uuid.New(), PasswordHash: hash}
	f.lookup[email] = c
	return c
}

func TestLogin_DerivesStatusInsideTenant(t *testing.T) {
	tests := []struct {
		name   string
		rows   *sqlmock.Rows
		status auth.CoordinatorStatus
	}{
		{"active", sqlmock.NewRows([]string{"account_id", "school_id", "active", "created_at"}), auth.ActiveCoordinator},
		{"inactive", sqlmock.NewRows([]string{"account_id", "school_id", "active", "created_at"}), auth.InactiveCoordinator},
		{"not a coordinator", sqlmock.NewRows([]string{"account_id", "school_id", "active", "created_at"}), auth.NoAccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			creds := f.addAccount(t, "coord@school.example", "correct horse")
			if tt.status != auth.NoAccess {
				tt.rows.AddRow(creds.AccountID.String(), creds.SchoolID.String(), tt.status == auth.ActiveCoordinator, time.Now())
			}

			f.mock.ExpectExec(setConfig).
				WithArgs(creds.SchoolID.String(), creds.AccountID.String(), "off").
				WillReturnResult(sqlmock.NewResult(0, 1))
			f.mock.ExpectBegin()
			f.mock.ExpectQuery("FROM coordinators").WithArgs(creds.AccountID).WillReturnRows(tt.rows)
			f.mock.ExpectCommit()
			f.expectCleared()

			session, err := f.svc.Login(context.Background(), " Coord@School.example ", "correct horse")
			require.NoError(t, err)
			assert.Equal(t, tt.status, session.Principal.Status)

			claims, err := f.tokens.ValidateToken(session.Token)
			require.NoError(t, err)
			assert.Equal(t, tt.status, claims.Status)
			assert.Equal(t, creds.SchoolID.String(), claims.TenantID)
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestLogin_BadCredentialsNeverOpenSession(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "coord@school.example", "correct horse")

	_, err := f.svc.Login(context.Background(), "coord@school.example", "wrong horse")
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)

	_, err = f.svc.Login(context.Background(), "nobody@school.example", "correct horse")
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRequestPasswordReset(t *testing.T) {
	f := newFixture(t)
	account, school := uuid.New(), uuid.New()

	f.expectBypass()
	f.mock.ExpectQuery("FROM accounts WHERE lower\\(email\\)").
		WithArgs("coord@school.example").
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "email", "password_hash", "full_name", "created_at", "updated_at"}).
			AddRow(account.String(), school.String(), "coord@school.example", "hash", "Coord", time.Now(), time.Now()))
	f.mock.ExpectExec("INSERT INTO password_resets").
		WithArgs(sqlmock.AnyArg(), account, school, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.expectCleared()

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "Coord@school.example"))

	token := f.notifier.tokens["coord@school.example"]
	assert.NotEmpty(t, token)
	assert.Equal(t, []string{audit.ActionBypass, audit.ActionPasswordReset}, f.auditor.actions)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRequestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)

	f.expectBypass()
	f.mock.ExpectQuery("FROM accounts WHERE lower\\(email\\)").
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "email", "password_hash", "full_name", "created_at", "updated_at"}))
	f.mock.ExpectCommit()
	f.expectCleared()

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "nobody@school.example"))
	assert.Empty(t, f.notifier.tokens)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResetPassword_InvalidTokenRollsBack(t *testing.T) {
	f := newFixture(t)

	f.expectBypass()
	f.mock.ExpectQuery("UPDATE password_resets SET used_at").
		WithArgs(hashToken("stale"), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "school_id", "token_hash", "expires_at", "used_at", "created_at"}))
	f.mock.ExpectRollback()
	f.expectCleared()

	err := f.svc.ResetPassword(context.Background(), "stale", "a new password")
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResetPassword_WeakPasswordRejectedFirst(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ResetPassword(context.Background(), "token", "short")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_CreatesSchoolAndInactiveCoordinator(t *testing.T) {
	f := newFixture(t)

	f.expectBypass()
	f.mock.ExpectExec("INSERT INTO schools").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO coordinators").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.expectCleared()

	reg, err := f.svc.Register(context.Background(), RegisterInput{
		SchoolName: "Hillview High",
		FullName:   "Sam Coordinator",
		Email:      "Sam@Hillview.example",
		Password:   "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "sam@hillview.example", reg.Account.Email)
	assert.Equal(t, reg.School.ID, reg.Account.SchoolID)
	assert.Contains(t, f.auditor.actions, audit.ActionRegistered)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_DuplicateEmailLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)

	f.expectBypass()
	f.mock.ExpectExec("INSERT INTO schools").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO accounts").WillReturnError(&pq.Error{Code: "23505"})
	f.mock.ExpectRollback()
	f.expectCleared()

	_, err := f.svc.Register(context.Background(), RegisterInput{
		SchoolName: "Hillview High",
		Email:      "sam@hillview.example",
		Password:   "correct horse",
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.ErrorIs(t, err, apperrors.ErrTransaction)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{SchoolName: "X", Email: "bad", Password: "correct horse"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Register(context.Background(), RegisterInput{SchoolName: " ", Email: "a@b.example", Password: "correct horse"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Register(context.Background(), RegisterInput{SchoolName: "X", Email: "a@b.example", Password: "short"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}
