package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/models"
)

func TestSettingsRepositoryFindByAcademy(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewSettingsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM academy_settings WHERE academy_id = $1")).
		WithArgs("academy-1").
		WillReturnRows(sqlmock.NewRows([]string{"academy_id", "default_due_day", "timezone", "trial_grace_days"}).
			AddRow("academy-1", 25, "Asia/Seoul", 5))
	mock.ExpectQuery("FROM academy_settings").WithArgs("academy-2").WillReturnError(sql.ErrNoRows)

	settings, err := repo.FindByAcademy(context.Background(), "academy-1")
	require.NoError(t, err)
	assert.Equal(t, models.AcademySettings{AcademyID: "academy-1", DefaultDueDay: 25, Timezone: "Asia/Seoul", TrialGraceDays: 5}, *settings)

	_, err = repo.FindByAcademy(context.Background(), "academy-2")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewSettingsRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (academy_id) DO UPDATE")).WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.AcademySettings{AcademyID: "academy-1", DefaultDueDay: 5, Timezone: "UTC"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeasonEnrollmentRepositoryCancelOpenByStudent(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewSeasonEnrollmentRepository(db)
	at := time.Date(2026, 6, 17, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE season_enrollments SET status = $1")).
		WithArgs(models.SeasonEnrollmentCancelled, at, "student-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	cancelled, err := repo.CancelOpenByStudent(context.Background(), nil, "student-1", at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
