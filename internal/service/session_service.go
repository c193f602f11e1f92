package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
)

type attendanceLedger interface {
	FindOpen(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error)
	FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error)
	InsertOpen(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	Close(ctx context.Context, studentID string, date time.Time, checkedOutBy, signature string, at time.Time) (*models.AttendanceRecord, error)
	Roster(ctx context.Context, date time.Time) ([]models.RosterEntry, error)
	StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error)
	DaySummary(ctx context.Context, date time.Time) (*models.DaySummary, error)
}

type sessionStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// Dispatcher receives attendance events after the transition has committed.
// Implementations must not block and must never fail the caller.
type Dispatcher interface {
	Notify(event models.Event)
}

// SessionService is the single authority over the check-in/check-out state
// machine. Every transition for a given (student, date) is serialized behind
// a keyed mutex, and the ledger's partial unique index backs the same
// invariant across processes.
type SessionService struct {
	ledger     attendanceLedger
	students   sessionStudentReader
	dispatcher Dispatcher
	validator  *validator.Validate
	logger     *zap.Logger
	location   *time.Location
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessionService constructs the session coordinator.
func NewSessionService(ledger attendanceLedger, students sessionStudentReader, dispatcher Dispatcher, validate *validator.Validate, logger *zap.Logger, location *time.Location) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &SessionService{
		ledger:     ledger,
		students:   students,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
		location:   location,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// CheckInRequest describes a staff-initiated arrival.
type CheckInRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	StaffID   string  `json:"-" validate:"required"`
	Signature *string `json:"signature"`
}

// CheckOutRequest describes a departure. Pickup name and signature mirror
// the two required fields on the sign-out form.
type CheckOutRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	PickedUpBy string `json:"picked_up_by" validate:"required"`
	Signature  string `json:"signature" validate:"required"`
}

// CheckIn opens a new attendance record. Only valid from the Absent state.
func (s *SessionService) CheckIn(ctx context.Context, req CheckInRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	date := s.dateOf(now)

	unlock := s.lock(req.StudentID, date)
	defer unlock()

	existing, err := s.ledger.FindByStudentAndDate(ctx, req.StudentID, date)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attendance ledger")
	}
	switch existing.State() {
	case models.SessionPresent:
		return nil, appErrors.ErrAlreadyPresent
	case models.SessionDeparted:
		// Single visit per day; a second arrival after departure is rejected.
		return nil, appErrors.ErrAlreadyDeparted
	}

	record := &models.AttendanceRecord{
		StudentID:   req.StudentID,
		Date:        date,
		CheckIn:     now.UTC(),
		CheckedInBy: req.StaffID,
		SignatureIn: req.Signature,
	}
	stored, err := s.ledger.InsertOpen(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Another writer won the race for the open slot.
			return nil, appErrors.ErrAlreadyPresent
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-in")
	}

	s.dispatcher.Notify(models.Event{
		Kind:        models.EventArrival,
		StudentID:   student.ID,
		StudentName: student.FullName,
		OccurredAt:  stored.CheckIn,
	})

	return stored, nil
}

// CheckOut closes the open attendance record. Only valid from Present.
func (s *SessionService) CheckOut(ctx context.Context, req CheckOutRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "pickup name and signature are required")
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	date := s.dateOf(now)

	unlock := s.lock(req.StudentID, date)
	defer unlock()

	stored, err := s.ledger.Close(ctx, req.StudentID, date, req.PickedUpBy, req.Signature, now.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if record, findErr := s.ledger.FindByStudentAndDate(ctx, req.StudentID, date); findErr == nil && record.State() == models.SessionDeparted {
				return nil, appErrors.ErrAlreadyDeparted
			}
			return nil, appErrors.ErrNotPresent
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-out")
	}

	s.dispatcher.Notify(models.Event{
		Kind:        models.EventDeparture,
		StudentID:   student.ID,
		StudentName: student.FullName,
		PickedUpBy:  req.PickedUpBy,
		OccurredAt:  now.UTC(),
	})

	return stored, nil
}

// Status derives the student's session state for today.
func (s *SessionService) Status(ctx context.Context, studentID string) (*models.SessionStatus, error) {
	if _, err := s.loadStudent(ctx, studentID); err != nil {
		return nil, err
	}
	date := s.dateOf(s.now())
	record, err := s.ledger.FindByStudentAndDate(ctx, studentID, date)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read attendance ledger")
	}
	status := &models.SessionStatus{StudentID: studentID, Date: date, State: record.State()}
	if record.State() != models.SessionAbsent {
		status.Record = record
	}
	return status, nil
}

// Roster returns the per-student presence list for a date.
func (s *SessionService) Roster(ctx context.Context, date time.Time) ([]models.RosterEntry, error) {
	entries, err := s.ledger.Roster(ctx, s.dateOf(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return entries, nil
}

// History returns a student's past visits.
func (s *SessionService) History(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	if _, err := s.loadStudent(ctx, studentID); err != nil {
		return nil, err
	}
	rows, err := s.ledger.StudentHistory(ctx, studentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return rows, nil
}

// Summary aggregates presence counts for a date.
func (s *SessionService) Summary(ctx context.Context, date time.Time) (*models.DaySummary, error) {
	summary, err := s.ledger.DaySummary(ctx, s.dateOf(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance summary")
	}
	return summary, nil
}

// Today reports the calendar date attendance is currently being recorded for.
func (s *SessionService) Today() time.Time {
	return s.dateOf(s.now())
}

func (s *SessionService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}

// dateOf normalizes a moment to the calendar date it belongs to in the
// nido's timezone, stored as midnight UTC.
func (s *SessionService) dateOf(t time.Time) time.Time {
	local := t.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *SessionService) lock(studentID string, date time.Time) func() {
	key := fmt.Sprintf("%s|%s", studentID, date.Format("2006-01-02"))
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}
