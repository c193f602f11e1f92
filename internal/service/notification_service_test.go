package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	"github.com/nidocare/nido-api/pkg/config"
)

type mockDeviceLister struct {
	tokens map[string][]models.DeviceToken
}

func (m *mockDeviceLister) ListByStudent(ctx context.Context, studentID string) ([]models.DeviceToken, error) {
	return m.tokens[studentID], nil
}

type capturingSender struct {
	mu     sync.Mutex
	sent   []sentPush
	err    error
	sendCh chan struct{}
}

type sentPush struct {
	tokens []string
	title  string
	body   string
}

func (s *capturingSender) Send(ctx context.Context, tokens []string, title, body string) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentPush{tokens: tokens, title: title, body: body})
	s.mu.Unlock()
	if s.sendCh != nil {
		s.sendCh <- struct{}{}
	}
	return s.err
}

func notificationConfig() config.NotificationsConfig {
	return config.NotificationsConfig{
		Enabled:           true,
		WorkerConcurrency: 1,
		WorkerRetries:     1,
	}
}

func TestNotifyDeliversArrivalMessage(t *testing.T) {
	devices := &mockDeviceLister{tokens: map[string][]models.DeviceToken{
		"s1": {{StudentID: "s1", PushToken: "ExponentPushToken[abc]"}},
	}}
	sender := &capturingSender{sendCh: make(chan struct{}, 1)}
	svc := NewNotificationService(devices, sender, zap.NewNop(), notificationConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Notify(models.Event{Kind: models.EventArrival, StudentID: "s1", StudentName: "Ana García"})

	select {
	case <-sender.sendCh:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not dispatched")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ExponentPushToken[abc]"}, sender.sent[0].tokens)
	assert.Equal(t, "✅ Llegada registrada", sender.sent[0].title)
	assert.Equal(t, "Ana García ha llegado al Nido Montessori", sender.sent[0].body)
}

func TestNotifyNeverPropagatesSendFailure(t *testing.T) {
	devices := &mockDeviceLister{tokens: map[string][]models.DeviceToken{
		"s1": {{StudentID: "s1", PushToken: "tok"}},
	}}
	sender := &capturingSender{err: errors.New("expo unreachable")}
	svc := NewNotificationService(devices, sender, zap.NewNop(), notificationConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	// Notify must return immediately and without error regardless of what
	// happens during delivery.
	svc.Notify(models.Event{Kind: models.EventDeparture, StudentID: "s1", StudentName: "Ana García", PickedUpBy: "Rosa"})
	svc.Stop()
}

func TestNotifyDisabledIsNoop(t *testing.T) {
	devices := &mockDeviceLister{}
	sender := &capturingSender{}
	cfg := notificationConfig()
	cfg.Enabled = false
	svc := NewNotificationService(devices, sender, zap.NewNop(), cfg)

	svc.Notify(models.Event{Kind: models.EventArrival, StudentID: "s1"})

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Empty(t, sender.sent)
}

func TestComposeMessages(t *testing.T) {
	title, body := composeMessage(models.Event{Kind: models.EventDeparture, StudentName: "Ana García", PickedUpBy: "Rosa García"})
	assert.Equal(t, "👋 Salida registrada", title)
	assert.Equal(t, "Ana García fue recogido por Rosa García", body)

	title, body = composeMessage(models.Event{Kind: models.EventReportReady, StudentName: "Ana García"})
	assert.Equal(t, "📝 Reporte del día", title)
	assert.Equal(t, "El reporte diario de Ana García está listo", body)
}
