package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voltwatch/backend/services/telemetry-service/internal/models"
	"voltwatch/backend/services/telemetry-service/internal/service"
)

// Ingestor is the slice of the query facade that devices may call.
type Ingestor interface {
	RegisterDevice(ctx context.Context, deviceID, name, location string) (*models.Device, error)
	Heartbeat(ctx context.Context, deviceID string) (*models.Device, error)
	SubmitSample(ctx context.Context, input service.SampleInput) (*models.VoltageSample, error)
}

// RegisterPayload is the body of a Register request.
type RegisterPayload struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// VoltagePayload is the body of a VoltageSample request.
type VoltagePayload struct {
	Voltage   *float64   `json:"voltage"`
	IsHigh    *bool      `json:"isHigh"`
	Timestamp *time.Time `json:"timestamp"`
}

// NewRegisterHandler upserts the device with optional metadata.
func NewRegisterHandler(ingestor Ingestor) HandlerFunc {
	return func(ctx context.Context, deviceID string, payload json.RawMessage) (interface{}, error) {
		req, err := Decode[RegisterPayload](payload)
		if err != nil {
			return nil, err
		}
		return ingestor.RegisterDevice(ctx, deviceID, req.Name, req.Location)
	}
}

// NewHeartbeatHandler refreshes device liveness.
func NewHeartbeatHandler(ingestor Ingestor) HandlerFunc {
	return func(ctx context.Context, deviceID string, _ json.RawMessage) (interface{}, error) {
		return ingestor.Heartbeat(ctx, deviceID)
	}
}

// NewVoltageSampleHandler ingests a reading.
func NewVoltageSampleHandler(ingestor Ingestor) HandlerFunc {
	return func(ctx context.Context, deviceID string, payload json.RawMessage) (interface{}, error) {
		req, err := Decode[VoltagePayload](payload)
		if err != nil {
			return nil, err
		}
		if req.Voltage == nil {
			return nil, fmt.Errorf("%w: voltage is required", service.ErrInvalidInput)
		}
		input := service.SampleInput{
			DeviceID: deviceID,
			Voltage:  *req.Voltage,
			IsHigh:   req.IsHigh,
		}
		if req.Timestamp != nil {
			input.Timestamp = *req.Timestamp
		}
		return ingestor.SubmitSample(ctx, input)
	}
}

// NewDeviceRouter returns a router with every device action registered.
func NewDeviceRouter(ingestor Ingestor) *Router {
	router := NewRouter()
	router.Register(ActionRegister, NewRegisterHandler(ingestor))
	router.Register(ActionHeartbeat, NewHeartbeatHandler(ingestor))
	router.Register(ActionVoltageSample, NewVoltageSampleHandler(ingestor))
	return router
}
