package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	"github.com/nidocare/nido-api/pkg/config"
	"github.com/nidocare/nido-api/pkg/jobs"
)

type pushSender interface {
	Send(ctx context.Context, tokens []string, title, body string) error
}

type deviceTokenLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.DeviceToken, error)
}

// NotificationService is the notification dispatcher: it turns attendance
// events into guardian push notifications via a background worker queue.
// Notify never blocks the originating transition and never propagates
// failure; a lost notification is logged and forgotten.
type NotificationService struct {
	queue   *jobs.Queue
	devices deviceTokenLister
	sender  pushSender
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the dispatcher and its worker queue.
func NewNotificationService(devices deviceTokenLister, sender pushSender, logger *zap.Logger, cfg config.NotificationsConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		devices: devices,
		sender:  sender,
		logger:  logger,
		enabled: cfg.Enabled,
	}
	s.queue = jobs.NewQueue("notifications", s.process, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues an event for asynchronous delivery. Errors are swallowed.
func (s *NotificationService) Notify(event models.Event) {
	if !s.enabled {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Kind),
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("dropped notification",
			zap.String("kind", string(event.Kind)),
			zap.String("student_id", event.StudentID),
			zap.Error(err))
	}
}

func (s *NotificationService) process(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.Event)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}

	tokens, err := s.devices.ListByStudent(ctx, event.StudentID)
	if err != nil {
		return fmt.Errorf("load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		s.logger.Debug("no devices registered for student", zap.String("student_id", event.StudentID))
		return nil
	}

	values := make([]string, 0, len(tokens))
	for _, t := range tokens {
		values = append(values, t.PushToken)
	}

	title, body := composeMessage(event)
	if err := s.sender.Send(ctx, values, title, body); err != nil {
		return fmt.Errorf("send push notification: %w", err)
	}

	s.logger.Info("notification sent",
		zap.String("kind", string(event.Kind)),
		zap.String("student_id", event.StudentID),
		zap.Int("devices", len(values)))
	return nil
}

func composeMessage(event models.Event) (title, body string) {
	switch event.Kind {
	case models.EventArrival:
		return "✅ Llegada registrada", fmt.Sprintf("%s ha llegado al Nido Montessori", event.StudentName)
	case models.EventDeparture:
		return "👋 Salida registrada", fmt.Sprintf("%s fue recogido por %s", event.StudentName, event.PickedUpBy)
	case models.EventReportReady:
		return "📝 Reporte del día", fmt.Sprintf("El reporte diario de %s está listo", event.StudentName)
	default:
		return "Nido", event.StudentName
	}
}
