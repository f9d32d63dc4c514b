// Package cloud talks to the remote health-record API that device readings
// are replicated to.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vitalink/telecare/internal/models"
)

const defaultTimeout = 30 * time.Second

// ReadingDTO is the wire shape the cloud API accepts for one measurement.
type ReadingDTO struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Sensor      string   `json:"sensor"`
	Temperature *float64 `json:"temperature,omitempty"`
	HeartRate   *int     `json:"heart_rate,omitempty"`
	SpO2        *int     `json:"spo2,omitempty"`
	SystolicBP  *int     `json:"systolic_bp,omitempty"`
	DiastolicBP *int     `json:"diastolic_bp,omitempty"`
	MediaKey    string   `json:"media_key,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	TakenAt     string   `json:"taken_at"`
}

type batchRequest struct {
	Readings []ReadingDTO `json:"readings"`
}

type batchResponse struct {
	Accepted int    `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Client is a thin HTTP client for the cloud sync endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient points the client at the cloud API base URL.
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// toDTO converts a stored reading to its wire shape.
func toDTO(rd models.Reading) ReadingDTO {
	return ReadingDTO{
		ID:          rd.ID.String(),
		UserID:      rd.UserID.String(),
		Sensor:      string(rd.Sensor),
		Temperature: rd.Temperature,
		HeartRate:   rd.HeartRate,
		SpO2:        rd.SpO2,
		SystolicBP:  rd.SystolicBP,
		DiastolicBP: rd.DiastolicBP,
		MediaKey:    rd.MediaKey,
		Notes:       rd.Notes,
		TakenAt:     rd.TakenAt.UTC().Format(time.RFC3339),
	}
}

// PushReadings uploads a batch of readings. The call is all-or-nothing: a
// partial acceptance counts as failure so the worker retries the whole batch.
func (c *Client) PushReadings(ctx context.Context, batch []models.Reading) error {
	if len(batch) == 0 {
		return nil
	}
	dtos := make([]ReadingDTO, 0, len(batch))
	for _, rd := range batch {
		dtos = append(dtos, toDTO(rd))
	}
	body, err := json.Marshal(batchRequest{Readings: dtos})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/readings/batch", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push readings: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("push readings: status %d: %s", resp.StatusCode, string(raw))
	}

	var br batchResponse
	if err := json.Unmarshal(raw, &br); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if br.Accepted != len(dtos) {
		return fmt.Errorf("push readings: accepted %d of %d", br.Accepted, len(dtos))
	}
	c.logger.Debug("readings pushed", zap.Int("count", br.Accepted))
	return nil
}

// Ping checks cloud reachability, used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud health: status %d", resp.StatusCode)
	}
	return nil
}
