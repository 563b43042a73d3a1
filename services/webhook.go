package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"smartoffice/models"

	"go.uber.org/zap"
)

// WebhookService POSTs every alert to an HTTP endpoint.
type WebhookService struct {
	logger     *zap.Logger
	apiURL     string
	httpClient *http.Client
}

// WebhookPayload is the body sent to the webhook endpoint.
type WebhookPayload struct {
	Alert      models.AlertPayload `json:"alert"`
	DeviceType string              `json:"device_type"`
	Topic      string              `json:"topic"`
	Source     string              `json:"source"`
}

func NewWebhookService(logger *zap.Logger, apiURL string, timeout time.Duration) *WebhookService {
	return &WebhookService{
		logger: logger,
		apiURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (h *WebhookService) Name() string { return "webhook" }

// Notify sends the alert; any non-2xx response is an error.
func (h *WebhookService) Notify(ctx context.Context, alert models.Alert) error {
	payload := WebhookPayload{
		Alert:      models.NewAlertPayload(&alert),
		DeviceType: alert.DeviceType,
		Topic:      alert.Topic,
		Source:     "smartoffice",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SmartOffice-DataManager/1.0")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.logger.Debug("Webhook alert sent",
			zap.String("device_id", alert.DeviceID),
			zap.String("severity", string(alert.Severity)),
			zap.Int("status_code", resp.StatusCode))
		return nil
	}

	return fmt.Errorf("webhook API error: %s", resp.Status)
}
