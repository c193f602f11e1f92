package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
	"github.com/nidocare/nido-api/pkg/export"
)

type rosterReader interface {
	Roster(ctx context.Context, date time.Time) ([]models.RosterEntry, error)
}

type exportReportReader interface {
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.DailyReport, error)
}

type exportStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ExportService renders attendance and report data into downloadable files.
type ExportService struct {
	roster   rosterReader
	reports  exportReportReader
	students exportStudentReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	location *time.Location
	logger   *zap.Logger
}

// NewExportService constructs an ExportService instance. Clock times in the
// rendered files are shown in the school's local timezone.
func NewExportService(roster rosterReader, reports exportReportReader, students exportStudentReader, location *time.Location, logger *zap.Logger) *ExportService {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		roster:   roster,
		reports:  reports,
		students: students,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		location: location,
		logger:   logger,
	}
}

var rosterHeaders = []string{"Student", "Guardian", "State", "Check In", "Check Out", "Picked Up By"}

// RosterCSV renders the day's attendance roster as a CSV file.
func (s *ExportService) RosterCSV(ctx context.Context, date time.Time) ([]byte, string, error) {
	entries, err := s.roster.Roster(ctx, date)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch roster")
	}

	data := export.Dataset{Headers: rosterHeaders, Rows: make([]map[string]string, 0, len(entries))}
	for _, entry := range entries {
		data.Rows = append(data.Rows, map[string]string{
			"Student":      entry.StudentName,
			"Guardian":     entry.GuardianName,
			"State":        string(entry.State),
			"Check In":     s.formatClock(entry.CheckIn),
			"Check Out":    s.formatClock(entry.CheckOut),
			"Picked Up By": stringOrEmpty(entry.CheckedOutBy),
		})
	}

	payload, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	filename := fmt.Sprintf("asistencia_%s.csv", date.Format("2006-01-02"))
	return payload, filename, nil
}

// ReportPDF renders a student's daily report as a printable PDF.
func (s *ExportService) ReportPDF(ctx context.Context, studentID string, date time.Time) ([]byte, string, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	report, err := s.reports.FindByStudentAndDate(ctx, studentID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "no report for that date")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch report")
	}

	doc := export.Document{
		Title:    "Reporte del Dia",
		Subtitle: fmt.Sprintf("%s - %s", student.FullName, date.Format("02/01/2006")),
		Sections: []export.Section{
			{Label: "Comidas", Body: report.Meals},
			{Label: "Siesta", Body: report.Nap},
			{Label: "Actividades", Body: report.Activities},
			{Label: "Estado de Animo", Body: report.Mood},
		},
	}
	if report.Notes != "" {
		doc.Sections = append(doc.Sections, export.Section{Label: "Notas", Body: report.Notes})
	}

	payload, err := s.pdf.RenderDocument(doc)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	filename := fmt.Sprintf("reporte_%s_%s.pdf", student.ID, date.Format("2006-01-02"))
	return payload, filename, nil
}

func (s *ExportService) formatClock(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(s.location).Format("15:04")
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
