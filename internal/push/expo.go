package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nidocare/nido-api/pkg/config"
)

// Sender delivers a composed push message to a set of device tokens.
type Sender interface {
	Send(ctx context.Context, tokens []string, title, body string) error
}

// ExpoSender delivers push notifications through the Expo push service,
// matching the Expo client the mobile app registers its tokens with.
type ExpoSender struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewExpoSender constructs the sender.
func NewExpoSender(cfg config.NotificationsConfig, logger *zap.Logger) *ExpoSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExpoSender{
		url:    cfg.ExpoPushURL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type expoMessage struct {
	To    []string `json:"to"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Sound string   `json:"sound"`
}

// Send posts one message addressed to all tokens at once.
func (s *ExpoSender) Send(ctx context.Context, tokens []string, title, body string) error {
	if len(tokens) == 0 {
		return nil
	}

	payload, err := json.Marshal(expoMessage{To: tokens, Title: title, Body: body, Sound: "default"})
	if err != nil {
		return fmt.Errorf("marshal expo message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post expo message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("expo push returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender is a development stand-in that only logs the message.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs the log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the notification instead of delivering it.
func (s *LogSender) Send(_ context.Context, tokens []string, title, body string) error {
	s.logger.Info("push notification (log only)",
		zap.Int("devices", len(tokens)),
		zap.String("title", title),
		zap.String("body", body))
	return nil
}
