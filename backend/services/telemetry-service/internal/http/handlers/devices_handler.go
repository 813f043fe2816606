package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/models"
	"voltwatch/backend/services/telemetry-service/internal/service"
)

// DeviceService is the facade the REST handlers call.
type DeviceService interface {
	RegisterDevice(ctx context.Context, deviceID, name, location string) (*models.Device, error)
	Heartbeat(ctx context.Context, deviceID string) (*models.Device, error)
	SubmitSample(ctx context.Context, input service.SampleInput) (*models.VoltageSample, error)
	SetDeviceStatus(ctx context.Context, deviceID, status string) (*models.Device, error)
	DeviceOverview(ctx context.Context, deviceID string) (*service.Overview, error)
	DeviceList(ctx context.Context) ([]service.DeviceRow, error)
	RecentLogs(ctx context.Context, deviceID string, limit, offset int) ([]models.VoltageSample, error)
	SeriesForChart(ctx context.Context, deviceID string, limit int) ([]service.ChartPoint, error)
	Summary(ctx context.Context, deviceID string, window int) (models.Summary, error)
}

// DevicesHandler serves the device REST API.
type DevicesHandler struct {
	svc    DeviceService
	logger *zap.Logger
}

// NewDevicesHandler returns handler.
func NewDevicesHandler(svc DeviceService, logger *zap.Logger) *DevicesHandler {
	return &DevicesHandler{svc: svc, logger: logging.OrNop(logger)}
}

type registerRequest struct {
	DeviceID string `json:"deviceId"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type voltageRequest struct {
	Voltage   *float64   `json:"voltage"`
	IsHigh    *bool      `json:"isHigh"`
	Timestamp *time.Time `json:"timestamp"`
}

// List handles GET /api/devices.
func (h *DevicesHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.DeviceList(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list devices", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Register handles POST /api/devices.
func (h *DevicesHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	device, err := h.svc.RegisterDevice(r.Context(), req.DeviceID, req.Name, req.Location)
	if err != nil {
		writeServiceError(w, h.logger, "register device", err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// Get handles GET /api/devices/{id}.
func (h *DevicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.DeviceOverview(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "device overview", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// Heartbeat handles PUT /api/devices/{id}/status.
func (h *DevicesHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	device, err := h.svc.Heartbeat(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "heartbeat", err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// SetStatus handles PATCH /api/devices/{id}/status.
func (h *DevicesHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	device, err := h.svc.SetDeviceStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeServiceError(w, h.logger, "set status", err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// Voltage handles POST /api/devices/{id}/voltage.
func (h *DevicesHandler) Voltage(w http.ResponseWriter, r *http.Request) {
	var req voltageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Voltage == nil {
		writeError(w, http.StatusBadRequest, "voltage is required")
		return
	}
	input := service.SampleInput{
		DeviceID: r.PathValue("id"),
		Voltage:  *req.Voltage,
		IsHigh:   req.IsHigh,
	}
	if req.Timestamp != nil {
		input.Timestamp = *req.Timestamp
	}

	sample, err := h.svc.SubmitSample(r.Context(), input)
	if err != nil {
		writeServiceError(w, h.logger, "submit sample", err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// Logs handles GET /api/devices/{id}/logs.
func (h *DevicesHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := h.svc.RecentLogs(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, "recent logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// Series handles GET /api/devices/{id}/series.
func (h *DevicesHandler) Series(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultRecentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := h.svc.SeriesForChart(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeServiceError(w, h.logger, "series", err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// Summary handles GET /api/devices/{id}/summary.
func (h *DevicesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "window", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.svc.Summary(r.Context(), r.PathValue("id"), window)
	if err != nil {
		writeServiceError(w, h.logger, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
