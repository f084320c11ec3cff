package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workstead/portal-api/internal/models"
)

func newReminderRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestReminderRepositoryListByOwner(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "date", "plans", "time", "importance", "associated_people", "created_at", "updated_at"}).
		AddRow("rem-1", "user-1", date, "Quarterly review prep", "14:00", "High", "Finance team", date, date)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reminders WHERE owner_id = $1 ORDER BY date ASC")).
		WithArgs("user-1").
		WillReturnRows(rows)

	reminders, err := repo.ListByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, models.ReminderImportance("High"), reminders[0].Importance)
}

func TestReminderRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reminders")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Reminder{
		OwnerID:    "user-1",
		Date:       time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Plans:      "Budget meeting",
		Importance: models.ImportanceMedium,
	})
	require.ErrorIs(t, err, ErrDuplicateReminder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReminderRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reminders")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	reminder := &models.Reminder{
		OwnerID:    "user-1",
		Date:       time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Plans:      "Budget meeting",
		Importance: models.ImportanceLow,
	}
	err := repo.Create(context.Background(), reminder)
	require.NoError(t, err)
	assert.NotEmpty(t, reminder.ID)
}

func TestReminderRepositoryGetByIDMissing(t *testing.T) {
	db, mock, cleanup := newReminderRepoMock(t)
	defer cleanup()
	repo := NewReminderRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reminders WHERE id = $1")).
		WithArgs("rem-99").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "rem-99")
	require.ErrorIs(t, err, sql.ErrNoRows)
}
