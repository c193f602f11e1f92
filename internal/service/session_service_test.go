package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
)

type mockLedger struct {
	records   map[string]*models.AttendanceRecord
	insertErr error
	closeErr  error
}

func newMockLedger() *mockLedger {
	return &mockLedger{records: make(map[string]*models.AttendanceRecord)}
}

func ledgerKey(studentID string, date time.Time) string {
	return fmt.Sprintf("%s|%s", studentID, date.Format("2006-01-02"))
}

func (m *mockLedger) FindOpen(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	record, ok := m.records[ledgerKey(studentID, date)]
	if !ok || record.CheckOut != nil {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (m *mockLedger) FindByStudentAndDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceRecord, error) {
	record, ok := m.records[ledgerKey(studentID, date)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return record, nil
}

func (m *mockLedger) InsertOpen(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	key := ledgerKey(record.StudentID, record.Date)
	if existing, ok := m.records[key]; ok && existing.CheckOut == nil {
		return nil, sql.ErrNoRows
	}
	stored := *record
	stored.ID = "rec-" + key
	m.records[key] = &stored
	return &stored, nil
}

func (m *mockLedger) Close(ctx context.Context, studentID string, date time.Time, checkedOutBy, signature string, at time.Time) (*models.AttendanceRecord, error) {
	if m.closeErr != nil {
		return nil, m.closeErr
	}
	record, ok := m.records[ledgerKey(studentID, date)]
	if !ok || record.CheckOut != nil {
		return nil, sql.ErrNoRows
	}
	out := at
	record.CheckOut = &out
	record.CheckedOutBy = &checkedOutBy
	record.SignatureOut = &signature
	return record, nil
}

func (m *mockLedger) Roster(ctx context.Context, date time.Time) ([]models.RosterEntry, error) {
	return nil, nil
}

func (m *mockLedger) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error) {
	return nil, nil
}

func (m *mockLedger) DaySummary(ctx context.Context, date time.Time) (*models.DaySummary, error) {
	return &models.DaySummary{Date: date}, nil
}

type mockStudents struct {
	students map[string]*models.Student
}

func (m *mockStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	student, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

type recordingDispatcher struct {
	events []models.Event
}

func (d *recordingDispatcher) Notify(event models.Event) {
	d.events = append(d.events, event)
}

func newSessionFixture(t *testing.T) (*SessionService, *mockLedger, *recordingDispatcher) {
	t.Helper()
	ledger := newMockLedger()
	students := &mockStudents{students: map[string]*models.Student{
		"s1": {ID: "s1", FullName: "Ana García", GuardianName: "Rosa García", Active: true},
		"s2": {ID: "s2", FullName: "Luis Pérez", GuardianName: "Carla Pérez", Active: false},
	}}
	dispatcher := &recordingDispatcher{}
	svc := NewSessionService(ledger, students, dispatcher, validator.New(), zap.NewNop(), time.UTC)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }
	return svc, ledger, dispatcher
}

func TestSessionCheckInFromAbsent(t *testing.T) {
	svc, _, dispatcher := newSessionFixture(t)

	record, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionPresent, record.State())
	assert.Equal(t, "staff-1", record.CheckedInBy)

	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, models.EventArrival, dispatcher.events[0].Kind)
	assert.Equal(t, "Ana García", dispatcher.events[0].StudentName)
}

func TestSessionDoubleCheckInRejected(t *testing.T) {
	svc, _, dispatcher := newSessionFixture(t)

	_, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	require.NoError(t, err)

	_, err = svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyPresent)
	assert.Len(t, dispatcher.events, 1, "rejected transition must not notify")
}

func TestSessionCheckInLostRaceMapsToAlreadyPresent(t *testing.T) {
	svc, ledger, _ := newSessionFixture(t)
	ledger.insertErr = sql.ErrNoRows

	_, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyPresent)
}

func TestSessionCheckOutRequiresPickupAndSignature(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	_, err := svc.CheckOut(context.Background(), CheckOutRequest{StudentID: "s1", PickedUpBy: "", Signature: "sig"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = svc.CheckOut(context.Background(), CheckOutRequest{StudentID: "s1", PickedUpBy: "Rosa García", Signature: ""})
	require.Error(t, err)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestSessionCheckOutWhenAbsentRejected(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	_, err := svc.CheckOut(context.Background(), CheckOutRequest{StudentID: "s1", PickedUpBy: "Rosa García", Signature: "sig"})
	assert.ErrorIs(t, err, appErrors.ErrNotPresent)
}

func TestSessionFullDayRoundTrip(t *testing.T) {
	svc, _, dispatcher := newSessionFixture(t)
	ctx := context.Background()

	status, err := svc.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionAbsent, status.State)

	_, err = svc.CheckIn(ctx, CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	require.NoError(t, err)

	status, err = svc.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionPresent, status.State)

	record, err := svc.CheckOut(ctx, CheckOutRequest{StudentID: "s1", PickedUpBy: "Rosa García", Signature: "firma"})
	require.NoError(t, err)
	assert.Equal(t, models.SessionDeparted, record.State())
	require.NotNil(t, record.CheckedOutBy)
	assert.Equal(t, "Rosa García", *record.CheckedOutBy)

	status, err = svc.Status(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionDeparted, status.State)

	require.Len(t, dispatcher.events, 2)
	assert.Equal(t, models.EventArrival, dispatcher.events[0].Kind)
	assert.Equal(t, models.EventDeparture, dispatcher.events[1].Kind)
	assert.Equal(t, "Rosa García", dispatcher.events[1].PickedUpBy)
}

func TestSessionCheckInAfterDepartureRejected(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	require.NoError(t, err)
	_, err = svc.CheckOut(ctx, CheckOutRequest{StudentID: "s1", PickedUpBy: "Rosa García", Signature: "firma"})
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyDeparted)
}

func TestSessionDoubleCheckOutRejected(t *testing.T) {
	svc, _, _ := newSessionFixture(t)
	ctx := context.Background()

	_, err := svc.CheckIn(ctx, CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	require.NoError(t, err)
	_, err = svc.CheckOut(ctx, CheckOutRequest{StudentID: "s1", PickedUpBy: "Rosa García", Signature: "firma"})
	require.NoError(t, err)

	_, err = svc.CheckOut(ctx, CheckOutRequest{StudentID: "s1", PickedUpBy: "Rosa García", Signature: "firma"})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyDeparted)
}

func TestSessionInactiveStudentHidden(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	_, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s2", StaffID: "staff-1"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSessionUnknownStudentNotFound(t *testing.T) {
	svc, _, _ := newSessionFixture(t)

	_, err := svc.Status(context.Background(), "missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestSessionDateFollowsConfiguredTimezone(t *testing.T) {
	location, err := time.LoadLocation("America/Tegucigalpa")
	require.NoError(t, err)

	ledger := newMockLedger()
	students := &mockStudents{students: map[string]*models.Student{
		"s1": {ID: "s1", FullName: "Ana García", Active: true},
	}}
	svc := NewSessionService(ledger, students, &recordingDispatcher{}, validator.New(), zap.NewNop(), location)
	// 03:30 UTC on March 3rd is still the evening of March 2nd in Tegucigalpa.
	svc.now = func() time.Time { return time.Date(2026, 3, 3, 3, 30, 0, 0, time.UTC) }

	record, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s1", StaffID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), record.Date)
}
