package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nidocare/nido-api/internal/models"
)

// AttendanceRepository owns the attendance ledger. Records are created open
// on check-in and closed exactly once on check-out; nothing deletes them.
//
// The table carries a partial unique index:
//
//	CREATE UNIQUE INDEX attendance_open_uniq
//	ON attendance_records (student_id, date) WHERE check_out IS NULL
//
// so the "at most one open record per student per day" invariant holds even
// against concurrent writers outside this process.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = "id, student_id, date, check_in, check_out, checked_in_by, checked_out_by, signature_in, signature_out, created_at, updated_at"

// FindOpen returns the open record for a student on a date, or sql.ErrNoRows.
func (r *AttendanceRepository) FindOpen(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE student_id = $1 AND date = $2 AND check_out IS NULL", attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, date); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByStudentAndDate returns the day's record regardless of state, or
// sql.ErrNoRows when the student never checked in that day.
func (r *AttendanceRepository) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE student_id = $1 AND date = $2 ORDER BY check_in DESC LIMIT 1", attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, date); err != nil {
		return nil, err
	}
	return &record, nil
}

// InsertOpen creates a new open record. It relies on the partial unique
// index: when another open record already exists for the (student, date) the
// insert inserts nothing and sql.ErrNoRows is returned, which callers map to
// the duplicate check-in error.
func (r *AttendanceRepository) InsertOpen(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO attendance_records (id, student_id, date, check_in, checked_in_by, signature_in, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, date) WHERE check_out IS NULL DO NOTHING
RETURNING %s`, attendanceColumns)
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query, record.ID, record.StudentID, record.Date, record.CheckIn, record.CheckedInBy, record.SignatureIn, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Close populates the check-out fields of the open record. sql.ErrNoRows
// means there was no open record to close.
func (r *AttendanceRepository) Close(ctx context.Context, studentID string, date time.Time, checkedOutBy, signature string, at time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`UPDATE attendance_records
SET check_out = $3, checked_out_by = $4, signature_out = $5, updated_at = $6
WHERE student_id = $1 AND date = $2 AND check_out IS NULL
RETURNING %s`, attendanceColumns)
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query, studentID, date, at, checkedOutBy, signature, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Roster lists every active student with their record for the date, if any.
func (r *AttendanceRepository) Roster(ctx context.Context, date time.Time) ([]models.RosterEntry, error) {
	query := `SELECT s.id AS student_id, s.full_name AS student_name, s.guardian_name, s.birth_date,
        ar.check_in, ar.check_out, ar.checked_out_by
FROM students s
LEFT JOIN attendance_records ar ON ar.student_id = s.id AND ar.date = $1
WHERE s.active = TRUE
ORDER BY s.full_name ASC`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, date); err != nil {
		return nil, fmt.Errorf("attendance roster: %w", err)
	}
	for i := range entries {
		switch {
		case entries[i].CheckIn == nil:
			entries[i].State = models.SessionAbsent
		case entries[i].CheckOut == nil:
			entries[i].State = models.SessionPresent
		default:
			entries[i].State = models.SessionDeparted
		}
	}
	return entries, nil
}

// StudentHistory returns past visits for a student, newest first.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{studentID}
	if from != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT date, check_in, check_out, checked_out_by
FROM attendance_records
WHERE %s
ORDER BY date DESC`, strings.Join(where, " AND "))
	var rows []models.AttendanceHistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return rows, nil
}

// DaySummary aggregates presence counts for a date across active students.
func (r *AttendanceRepository) DaySummary(ctx context.Context, date time.Time) (*models.DaySummary, error) {
	query := `SELECT
        COUNT(*) FILTER (WHERE ar.check_in IS NOT NULL AND ar.check_out IS NULL) AS present,
        COUNT(*) FILTER (WHERE ar.check_out IS NOT NULL) AS departed,
        COUNT(*) AS total
FROM students s
LEFT JOIN attendance_records ar ON ar.student_id = s.id AND ar.date = $1
WHERE s.active = TRUE`
	row := struct {
		Present  int `db:"present"`
		Departed int `db:"departed"`
		Total    int `db:"total"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, date); err != nil {
		if err == sql.ErrNoRows {
			return &models.DaySummary{Date: date}, nil
		}
		return nil, fmt.Errorf("attendance day summary: %w", err)
	}
	return &models.DaySummary{
		Date:     date,
		Present:  row.Present,
		Departed: row.Departed,
		Expected: row.Total - row.Present - row.Departed,
		Total:    row.Total,
	}, nil
}
