package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
)

type reportRepository interface {
	Upsert(ctx context.Context, report *models.DailyReport) (*models.DailyReport, error)
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.DailyReport, error)
}

type reportAttendanceReader interface {
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error)
}

// ReportService handles staff authoring and guardian reads of daily reports.
type ReportService struct {
	reports    reportRepository
	attendance reportAttendanceReader
	students   sessionStudentReader
	dispatcher Dispatcher
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(reports reportRepository, attendance reportAttendanceReader, students sessionStudentReader, dispatcher Dispatcher, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:    reports,
		attendance: attendance,
		students:   students,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
	}
}

// UpsertReportRequest is the staff payload; resubmitting for the same day
// overwrites the previous report.
type UpsertReportRequest struct {
	Meals      string `json:"meals" validate:"required"`
	Nap        string `json:"nap" validate:"required"`
	Activities string `json:"activities" validate:"required"`
	Mood       string `json:"mood" validate:"required"`
	Notes      string `json:"notes"`
	AuthorID   string `json:"-" validate:"required"`
}

// Upsert writes the report for (student, date) and fires a best-effort
// report-ready notification.
func (s *ReportService) Upsert(ctx context.Context, studentID string, date time.Time, req UpsertReportRequest) (*models.DailyReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	report := &models.DailyReport{
		StudentID:  studentID,
		Date:       date,
		Meals:      req.Meals,
		Nap:        req.Nap,
		Activities: req.Activities,
		Mood:       req.Mood,
		Notes:      req.Notes,
		CreatedBy:  req.AuthorID,
	}
	stored, err := s.reports.Upsert(ctx, report)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save report")
	}

	s.dispatcher.Notify(models.Event{
		Kind:        models.EventReportReady,
		StudentID:   student.ID,
		StudentName: student.FullName,
		OccurredAt:  stored.UpdatedAt,
	})

	return stored, nil
}

// Get returns the report for staff consumers, or NotFound.
func (s *ReportService) Get(ctx context.Context, studentID string, date time.Time) (*models.DailyReport, error) {
	report, err := s.reports.FindByStudentAndDate(ctx, studentID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

// GetForGuardian returns the guardian view. A missing report is the normal
// "not yet available" state, and the report stays hidden until the student
// has an attendance record for the date, since reports are written during
// the visit.
func (s *ReportService) GetForGuardian(ctx context.Context, studentID string, date time.Time) (*models.TodayReport, error) {
	if _, err := s.attendance.FindByStudentAndDate(ctx, studentID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.TodayReport{Available: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attendance ledger")
	}

	report, err := s.reports.FindByStudentAndDate(ctx, studentID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.TodayReport{Available: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return &models.TodayReport{Available: true, Report: report}, nil
}
