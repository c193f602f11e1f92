package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByAccessCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

type studentCacheInvalidator interface {
	Delete(ctx context.Context, key string) error
}

// StudentService handles director-side enrollment.
type StudentService struct {
	repo      studentRepository
	cache     studentCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, cache studentCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// CreateStudentRequest holds payload for enrolling a child. When AccessCode
// is empty a unique one is generated from the child's first name.
type CreateStudentRequest struct {
	FullName      string    `json:"full_name" validate:"required"`
	BirthDate     time.Time `json:"birth_date" validate:"required"`
	GuardianName  string    `json:"guardian_name" validate:"required"`
	GuardianPhone string    `json:"guardian_phone" validate:"required"`
	AccessCode    string    `json:"access_code"`
	PhotoURL      *string   `json:"photo_url"`
}

// UpdateStudentRequest holds payload for updating guardian and contact
// fields; identity fields stay as enrolled.
type UpdateStudentRequest struct {
	GuardianName  string  `json:"guardian_name" validate:"required"`
	GuardianPhone string  `json:"guardian_phone" validate:"required"`
	AccessCode    string  `json:"access_code"`
	PhotoURL      *string `json:"photo_url"`
	Active        bool    `json:"active"`
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create enrolls a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	code := strings.ToUpper(strings.TrimSpace(req.AccessCode))
	if code != "" {
		taken, err := s.repo.ExistsByAccessCode(ctx, code, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate access code")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "access code already in use")
		}
	} else {
		generated, err := s.generateAccessCode(ctx, req.FullName)
		if err != nil {
			return nil, err
		}
		code = generated
	}

	student := &models.Student{
		FullName:      req.FullName,
		BirthDate:     req.BirthDate,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		AccessCode:    code,
		PhotoURL:      req.PhotoURL,
		Active:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies guardian, contact and access fields of a student.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previousCode := student.AccessCode
	if code := strings.ToUpper(strings.TrimSpace(req.AccessCode)); code != "" && code != student.AccessCode {
		taken, err := s.repo.ExistsByAccessCode(ctx, code, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate access code")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "access code already in use")
		}
		student.AccessCode = code
	}

	student.GuardianName = req.GuardianName
	student.GuardianPhone = req.GuardianPhone
	student.PhotoURL = req.PhotoURL
	student.Active = req.Active

	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.invalidateAccessCode(ctx, previousCode)
	s.invalidateAccessCode(ctx, student.AccessCode)

	return student, nil
}

// Deactivate removes a student from the active roster.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	student, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	s.invalidateAccessCode(ctx, student.AccessCode)
	return nil
}

func (s *StudentService) invalidateAccessCode(ctx context.Context, code string) {
	if s.cache == nil || code == "" {
		return
	}
	if err := s.cache.Delete(ctx, accessCodeCacheKey(code)); err != nil {
		s.logger.Warn("failed to invalidate access code cache", zap.Error(err))
	}
}

var accentFolder = strings.NewReplacer(
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U", "Ñ", "N",
)

// generateAccessCode derives a code like MARIA2024 from the child's first
// name and the current year, appending random digits on collision. Accented
// letters are folded so codes stay typeable on any keyboard.
func (s *StudentService) generateAccessCode(ctx context.Context, fullName string) (string, error) {
	first := accentFolder.Replace(strings.ToUpper(firstName(fullName)))
	base := fmt.Sprintf("%s%d", first, s.now().Year())

	candidate := base
	for attempt := 0; attempt < 5; attempt++ {
		taken, err := s.repo.ExistsByAccessCode(ctx, candidate, "")
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access code")
		}
		if !taken {
			return candidate, nil
		}
		n, err := rand.Int(rand.Reader, big.NewInt(100))
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access code")
		}
		candidate = fmt.Sprintf("%s%02d", base, n.Int64())
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique access code")
}

func firstName(fullName string) string {
	fields := strings.FieldsFunc(fullName, unicode.IsSpace)
	if len(fields) == 0 {
		return "NIDO"
	}
	return fields[0]
}
