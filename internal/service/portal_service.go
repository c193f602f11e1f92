package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
)

type portalStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByAccessCode(ctx context.Context, code string) (*models.Student, error)
}

type portalCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type sessionCoordinator interface {
	Status(ctx context.Context, studentID string) (*models.SessionStatus, error)
	CheckOut(ctx context.Context, req CheckOutRequest) (*models.AttendanceRecord, error)
	Today() time.Time
}

type guardianReportReader interface {
	GetForGuardian(ctx context.Context, studentID string, date time.Time) (*models.TodayReport, error)
}

type deviceRegistrar interface {
	Register(ctx context.Context, token *models.DeviceToken) error
}

// PortalService backs the guardian-facing surface. The access code is the
// only credential: every child-scoped call re-verifies it against the
// student it claims to act for.
type PortalService struct {
	students portalStudentReader
	cache    portalCache
	sessions sessionCoordinator
	reports  guardianReportReader
	devices  deviceRegistrar
	logger   *zap.Logger
	codeTTL  time.Duration
	now      func() time.Time
}

// NewPortalService constructs the portal service.
func NewPortalService(students portalStudentReader, cache portalCache, sessions sessionCoordinator, reports guardianReportReader, devices deviceRegistrar, logger *zap.Logger, codeTTL time.Duration) *PortalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codeTTL <= 0 {
		codeTTL = time.Hour
	}
	return &PortalService{
		students: students,
		cache:    cache,
		sessions: sessions,
		reports:  reports,
		devices:  devices,
		logger:   logger,
		codeTTL:  codeTTL,
		now:      time.Now,
	}
}

// ChildToday is the portal home payload: who the child is, whether they are
// at the nido right now, and today's report when it exists.
type ChildToday struct {
	Student models.StudentSummary `json:"student"`
	Status  models.SessionStatus  `json:"status"`
	Report  models.TodayReport    `json:"report"`
}

// Resolve maps an access code to the student it belongs to. The code is
// upper-cased before lookup, and unknown and malformed codes are reported
// identically.
func (s *PortalService) Resolve(ctx context.Context, rawCode string) (*models.StudentSummary, error) {
	student, err := s.resolveStudent(ctx, rawCode)
	if err != nil {
		return nil, err
	}
	summary := s.summarize(student)
	return &summary, nil
}

// Today assembles the portal view for a child after re-verifying the code.
func (s *PortalService) Today(ctx context.Context, studentID, rawCode string) (*ChildToday, error) {
	student, err := s.verify(ctx, studentID, rawCode)
	if err != nil {
		return nil, err
	}

	status, err := s.sessions.Status(ctx, studentID)
	if err != nil {
		return nil, err
	}
	report, err := s.reports.GetForGuardian(ctx, studentID, s.sessions.Today())
	if err != nil {
		return nil, err
	}

	return &ChildToday{
		Student: s.summarize(student),
		Status:  *status,
		Report:  *report,
	}, nil
}

// CheckOut signs the child out on behalf of the guardian.
func (s *PortalService) CheckOut(ctx context.Context, studentID, rawCode, pickedUpBy, signature string) (*models.AttendanceRecord, error) {
	if _, err := s.verify(ctx, studentID, rawCode); err != nil {
		return nil, err
	}
	return s.sessions.CheckOut(ctx, CheckOutRequest{
		StudentID:  studentID,
		PickedUpBy: strings.TrimSpace(pickedUpBy),
		Signature:  strings.TrimSpace(signature),
	})
}

// RegisterDevice stores a guardian device push token for the child.
func (s *PortalService) RegisterDevice(ctx context.Context, studentID, rawCode, pushToken string) error {
	if _, err := s.verify(ctx, studentID, rawCode); err != nil {
		return err
	}
	pushToken = strings.TrimSpace(pushToken)
	if pushToken == "" {
		return appErrors.Clone(appErrors.ErrValidation, "push token is required")
	}
	if err := s.devices.Register(ctx, &models.DeviceToken{StudentID: studentID, PushToken: pushToken}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register device")
	}
	return nil
}

func (s *PortalService) verify(ctx context.Context, studentID, rawCode string) (*models.Student, error) {
	student, err := s.resolveStudent(ctx, rawCode)
	if err != nil {
		return nil, err
	}
	if student.ID != studentID {
		return nil, appErrors.ErrInvalidAccessCode
	}
	return student, nil
}

func (s *PortalService) resolveStudent(ctx context.Context, rawCode string) (*models.Student, error) {
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if code == "" {
		return nil, appErrors.ErrInvalidAccessCode
	}

	if s.cache != nil {
		var studentID string
		if err := s.cache.Get(ctx, accessCodeCacheKey(code), &studentID); err == nil && studentID != "" {
			student, err := s.students.FindByID(ctx, studentID)
			if err == nil && student.Active && student.AccessCode == code {
				return student, nil
			}
		}
	}

	student, err := s.students.FindByAccessCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidAccessCode
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve access code")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, accessCodeCacheKey(code), student.ID, s.codeTTL); err != nil {
			s.logger.Warn("failed to cache access code", zap.Error(err))
		}
	}
	return student, nil
}

func (s *PortalService) summarize(student *models.Student) models.StudentSummary {
	return models.StudentSummary{
		ID:           student.ID,
		FullName:     student.FullName,
		AgeYears:     student.Age(s.now()),
		GuardianName: student.GuardianName,
		PhotoURL:     student.PhotoURL,
	}
}

func accessCodeCacheKey(code string) string {
	return fmt.Sprintf("portal:access_code:%s", code)
}
