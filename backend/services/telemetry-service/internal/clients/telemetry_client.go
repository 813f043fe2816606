package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/models"
)

// HTTPDoer defines http.Client interface subset.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telemetry api: %d %s", e.Status, e.Message)
}

// TelemetryClient talks to the telemetry-service REST API the way a device would.
type TelemetryClient struct {
	baseURL string
	client  HTTPDoer
	logger  *zap.Logger
}

// RegisterRequest payload for POST /api/devices.
type RegisterRequest struct {
	DeviceID string `json:"deviceId"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
}

// VoltageReading payload for POST /api/devices/{id}/voltage.
type VoltageReading struct {
	Voltage   float64    `json:"voltage"`
	IsHigh    *bool      `json:"isHigh,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// NewTelemetryClient returns client wrapper. A nil doer gets a 5s-timeout http.Client.
func NewTelemetryClient(baseURL string, doer HTTPDoer, logger *zap.Logger) *TelemetryClient {
	if doer == nil {
		doer = &http.Client{Timeout: 5 * time.Second}
	}
	return &TelemetryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  doer,
		logger:  logging.OrNop(logger),
	}
}

// Register upserts the device.
func (c *TelemetryClient) Register(ctx context.Context, req RegisterRequest) (*models.Device, error) {
	var device models.Device
	if err := c.do(ctx, http.MethodPost, "/api/devices", req, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// Heartbeat refreshes liveness.
func (c *TelemetryClient) Heartbeat(ctx context.Context, deviceID string) (*models.Device, error) {
	var device models.Device
	if err := c.do(ctx, http.MethodPut, devicePath(deviceID, "status"), nil, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// SetStatus applies an administrative status.
func (c *TelemetryClient) SetStatus(ctx context.Context, deviceID string, status models.DeviceStatus) (*models.Device, error) {
	var device models.Device
	body := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPatch, devicePath(deviceID, "status"), body, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// SubmitVoltage posts a reading.
func (c *TelemetryClient) SubmitVoltage(ctx context.Context, deviceID string, reading VoltageReading) (*models.VoltageSample, error) {
	var sample models.VoltageSample
	if err := c.do(ctx, http.MethodPost, devicePath(deviceID, "voltage"), reading, &sample); err != nil {
		return nil, err
	}
	return &sample, nil
}

func devicePath(deviceID, suffix string) string {
	return fmt.Sprintf("/api/devices/%s/%s", url.PathEscape(deviceID), suffix)
}

func (c *TelemetryClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("telemetry client request failed", zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &StatusError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
