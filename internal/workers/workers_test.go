package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"clubdesk/internal/platform/database"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	Start(ctx, Job{
		Name:     "count",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("keeps going")
		},
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
}

func TestPurgePasswordResets(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	const setConfig = `SELECT set_config\('app.tenant_id', \$1, false\)`
	mock.ExpectExec(setConfig).WithArgs("", "", "on").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM password_resets").WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()
	mock.ExpectExec(setConfig).WithArgs("", "", "off").WillReturnResult(sqlmock.NewResult(0, 1))

	manager := database.NewManager(sqlx.NewDb(db, "postgres"), nil)
	job := PurgePasswordResets(manager, 24*time.Hour, time.Hour)

	require.NoError(t, job.Run(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
