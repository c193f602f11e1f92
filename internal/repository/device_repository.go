package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nidocare/nido-api/internal/models"
)

// DeviceRepository stores guardian push tokens per student.
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository constructs the repository.
func NewDeviceRepository(db *sqlx.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Register saves a push token for a student. Re-registering the same token
// refreshes its timestamp instead of duplicating it.
func (r *DeviceRepository) Register(ctx context.Context, token *models.DeviceToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO device_tokens (id, student_id, push_token, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (student_id, push_token) DO UPDATE SET created_at = EXCLUDED.created_at`
	if _, err := r.db.ExecContext(ctx, query, token.ID, token.StudentID, token.PushToken, token.CreatedAt); err != nil {
		return fmt.Errorf("register device token: %w", err)
	}
	return nil
}

// ListByStudent returns every push token registered for a student.
func (r *DeviceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.DeviceToken, error) {
	query := "SELECT id, student_id, push_token, created_at FROM device_tokens WHERE student_id = $1 ORDER BY created_at DESC"
	var tokens []models.DeviceToken
	if err := r.db.SelectContext(ctx, &tokens, query, studentID); err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	return tokens, nil
}
