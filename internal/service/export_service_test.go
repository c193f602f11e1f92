package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
)

type mockRoster struct {
	entries []models.RosterEntry
}

func (m *mockRoster) Roster(context.Context, time.Time) ([]models.RosterEntry, error) {
	return m.entries, nil
}

type mockExportReports struct {
	reports map[string]*models.DailyReport
}

func (m *mockExportReports) FindByStudentAndDate(_ context.Context, studentID string, _ time.Time) (*models.DailyReport, error) {
	report, ok := m.reports[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return report, nil
}

type mockExportStudents struct {
	students map[string]*models.Student
}

func (m *mockExportStudents) FindByID(_ context.Context, id string) (*models.Student, error) {
	student, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

func TestExportServiceRosterCSV(t *testing.T) {
	tegucigalpa, err := time.LoadLocation("America/Tegucigalpa")
	require.NoError(t, err)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	checkIn := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	pickedUpBy := "Rosa García"

	svc := NewExportService(&mockRoster{entries: []models.RosterEntry{
		{StudentName: "Ana García", GuardianName: "Rosa García", State: models.SessionPresent, CheckIn: &checkIn},
		{StudentName: "Luis Pérez", GuardianName: "Marta Pérez", State: models.SessionAbsent, CheckedOutBy: &pickedUpBy},
	}}, &mockExportReports{}, &mockExportStudents{}, tegucigalpa, zap.NewNop())

	payload, filename, err := svc.RosterCSV(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, "asistencia_2026-03-02.csv", filename)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Guardian,State,Check In,Check Out,Picked Up By", strings.TrimSpace(lines[0]))
	// 15:30 UTC is 09:30 local
	assert.Contains(t, lines[1], "09:30")
	assert.Contains(t, lines[1], "PRESENT")
}

func TestExportServiceReportPDF(t *testing.T) {
	svc := NewExportService(&mockRoster{},
		&mockExportReports{reports: map[string]*models.DailyReport{
			"s1": {StudentID: "s1", Meals: "Almorzó bien", Nap: "Durmió 1 hora", Activities: "Pintura", Mood: "Feliz"},
		}},
		&mockExportStudents{students: map[string]*models.Student{
			"s1": {ID: "s1", FullName: "Ana García"},
		}}, time.UTC, zap.NewNop())

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	payload, filename, err := svc.ReportPDF(context.Background(), "s1", date)
	require.NoError(t, err)
	assert.Equal(t, "reporte_s1_2026-03-02.pdf", filename)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestExportServiceReportPDFMissingReport(t *testing.T) {
	svc := NewExportService(&mockRoster{}, &mockExportReports{},
		&mockExportStudents{students: map[string]*models.Student{
			"s1": {ID: "s1", FullName: "Ana García"},
		}}, time.UTC, zap.NewNop())

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, _, err := svc.ReportPDF(context.Background(), "s1", date)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestExportServiceReportPDFUnknownStudent(t *testing.T) {
	svc := NewExportService(&mockRoster{}, &mockExportReports{}, &mockExportStudents{}, time.UTC, zap.NewNop())

	_, _, err := svc.ReportPDF(context.Background(), "missing", time.Now())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
