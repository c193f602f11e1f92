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

	"github.com/nidocare/nido-api/internal/models"
)

func reportRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "date", "meals", "nap", "activities", "mood", "notes", "created_by", "created_at", "updated_at"})
}

func TestReportRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewReportRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := reportRows().
		AddRow("r1", "s1", date, "Almorzó bien", "Durmió 1 hora", "Pintura", "Feliz", "", "u1", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, date)")).
		WithArgs(sqlmock.AnyArg(), "s1", date, "Almorzó bien", "Durmió 1 hora", "Pintura", "Feliz", "", "u1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	stored, err := repo.Upsert(context.Background(), &models.DailyReport{
		StudentID:  "s1",
		Date:       date,
		Meals:      "Almorzó bien",
		Nap:        "Durmió 1 hora",
		Activities: "Pintura",
		Mood:       "Feliz",
		CreatedBy:  "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", stored.ID)
	assert.Equal(t, "Feliz", stored.Mood)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryFindByStudentAndDate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewReportRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := reportRows().
		AddRow("r1", "s1", date, "Almorzó bien", "Durmió 1 hora", "Pintura", "Feliz", "", "u1", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM daily_reports WHERE student_id = $1 AND date = $2")).
		WithArgs("s1", date).
		WillReturnRows(rows)

	report, err := repo.FindByStudentAndDate(context.Background(), "s1", date)
	require.NoError(t, err)
	assert.Equal(t, "s1", report.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryFindMissingDay(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewReportRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM daily_reports").
		WithArgs("s1", date).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByStudentAndDate(context.Background(), "s1", date)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
