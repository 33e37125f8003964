package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"clubdesk/internal/platform/models"
	apperrors "clubdesk/internal/pkg/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr("op", nil))
	assert.ErrorIs(t, mapErr("op", &pq.Error{Code: uniqueViolation}), apperrors.ErrConflict)
	assert.ErrorIs(t, mapErr("op", &pq.Error{Code: foreignKeyViolation}), apperrors.ErrNotFound)
	assert.ErrorIs(t, mapErr("op", &pq.Error{Code: checkViolation}), apperrors.ErrInvalidInput)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapErr("op", other))
}

func TestClubRepository_CreateTakesSchoolFromSession(t *testing.T) {
	db, mock := newMockDB(t)
	school := uuid.New()
	club := &models.Club{ID: uuid.New(), Name: "Chess", CreatedBy: uuid.New(), CreatedAt: time.Now()}

	mock.ExpectQuery("INSERT INTO clubs").
		WithArgs(club.ID, "Chess", "", club.CreatedBy, club.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"school_id"}).AddRow(school.String()))

	require.NoError(t, NewClubRepository(db).Create(context.Background(), club))
	assert.Equal(t, school, club.SchoolID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClubRepository_CreateDuplicateName(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("INSERT INTO clubs").WillReturnError(&pq.Error{Code: uniqueViolation})

	err := NewClubRepository(db).Create(context.Background(), &models.Club{ID: uuid.New(), Name: "Chess"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestClubRepository_DeleteInvisibleRowIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()
	mock.ExpectExec("DELETE FROM clubs").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewClubRepository(db).Delete(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestScheduleRepository_CreateForUnknownClub(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("INSERT INTO schedules").WillReturnRows(sqlmock.NewRows([]string{"school_id"}))

	err := NewScheduleRepository(db).Create(context.Background(), &models.Schedule{
		ID: uuid.New(), ClubID: uuid.New(), Weekday: 2, StartsAt: "15:00", EndsAt: "16:00",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCoordinatorRepository_GetMissingIsNil(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT account_id, school_id, active, created_at FROM coordinators").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "school_id", "active", "created_at"}))

	c, err := NewCoordinatorRepository(db).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestAccountRepository_Lookup(t *testing.T) {
	db, mock := newMockDB(t)
	account, school := uuid.New(), uuid.New()
	mock.ExpectQuery(`FROM auth_lookup\(\$1\)`).
		WithArgs("coord@school.example").
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "school_id", "password_hash"}).
			AddRow(account.String(), school.String(), "$2a$10$hash"))

	c, err := NewAccountRepository(db).Lookup(context.Background(), "coord@school.example")
	require.NoError(t, err)
	assert.Equal(t, account, c.AccountID)
	assert.Equal(t, school, c.SchoolID)
}

func TestPasswordResetRepository_ConsumeExpiredOrUsed(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE password_resets SET used_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "school_id", "token_hash", "expires_at", "used_at", "created_at"}))

	_, err := NewPasswordResetRepository(db).Consume(context.Background(), "hash", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAuditRepository_ListForTenant(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery("FROM audit_logs\\s+WHERE tenant_id = app_tenant\\(\\)").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "action", "resource_type", "resource_id", "metadata", "created_at"}).
			AddRow("audit_1", "t1", "u1", "webhook.config_saved", "webhook_config", "", []byte(`{"source":"registration"}`), now).
			AddRow("audit_2", "t1", "", "account.registered", "school", "t1", []byte(`{}`), now))

	entries, err := NewAuditRepository(db).ListForTenant(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "registration", entries[0].Metadata["source"])
	assert.Equal(t, "account.registered", entries[1].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_PurgeBefore(t *testing.T) {
	db, mock := newMockDB(t)
	cutoff := time.Now()

	mock.ExpectExec("DELETE FROM password_resets WHERE expires_at < \\$1 OR used_at < \\$1").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewPasswordResetRepository(db).PurgeBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
