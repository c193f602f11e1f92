package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nidocare/nido-api/internal/models"
)

// ReportRepository persists daily reports, one per (student, date).
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = "id, student_id, date, meals, nap, activities, mood, notes, created_by, created_at, updated_at"

// Upsert inserts or overwrites the report for the record's (student, date).
func (r *ReportRepository) Upsert(ctx context.Context, report *models.DailyReport) (*models.DailyReport, error) {
	now := time.Now().UTC()
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO daily_reports (id, student_id, date, meals, nap, activities, mood, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (student_id, date)
DO UPDATE SET meals = EXCLUDED.meals, nap = EXCLUDED.nap, activities = EXCLUDED.activities,
        mood = EXCLUDED.mood, notes = EXCLUDED.notes, created_by = EXCLUDED.created_by, updated_at = EXCLUDED.updated_at
RETURNING %s`, reportColumns)
	var stored models.DailyReport
	if err := r.db.GetContext(ctx, &stored, query, report.ID, report.StudentID, report.Date, report.Meals, report.Nap, report.Activities, report.Mood, report.Notes, report.CreatedBy, report.CreatedAt, report.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert daily report: %w", err)
	}
	return &stored, nil
}

// FindByStudentAndDate fetches the report for a day, or sql.ErrNoRows.
func (r *ReportRepository) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.DailyReport, error) {
	query := fmt.Sprintf("SELECT %s FROM daily_reports WHERE student_id = $1 AND date = $2", reportColumns)
	var report models.DailyReport
	if err := r.db.GetContext(ctx, &report, query, studentID, date); err != nil {
		return nil, err
	}
	return &report, nil
}
