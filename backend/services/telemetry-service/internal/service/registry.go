package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/metrics"
	"voltwatch/backend/services/telemetry-service/internal/models"
	"voltwatch/backend/services/telemetry-service/internal/repository"
)

// Defaults applied to auto-provisioned devices.
const (
	DefaultLocation   = "Unknown"
	maxDeviceIDLength = 128
)

// Event sources recorded against a device touch.
const (
	SourceRegister  = "register"
	SourceHeartbeat = "heartbeat"
	SourceSample    = "sample"
)

// DefaultDeviceName is the display name given to a device registered without one.
func DefaultDeviceName(deviceID string) string {
	return fmt.Sprintf("Device %s", deviceID)
}

// Registry owns device records. Every mutation of a single device runs under that
// device's lock; different devices never contend.
type Registry struct {
	store   DeviceStore
	locks   *deviceLocks
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry builds a registry over store.
func NewRegistry(store DeviceStore, m *metrics.Metrics, logger *zap.Logger) *Registry {
	return &Registry{
		store:   store,
		locks:   newDeviceLocks(),
		now:     time.Now,
		logger:  logging.OrNop(logger),
		metrics: m,
	}
}

// SetClock replaces the time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Now returns the registry's current time in UTC.
func (r *Registry) Now() time.Time {
	return r.now().UTC()
}

// Register creates the device or marks it active. Non-empty name and location replace the
// stored values; empty ones leave them untouched.
func (r *Registry) Register(ctx context.Context, deviceID, name, location string) (*models.Device, error) {
	return r.touch(ctx, deviceID, SourceRegister, strings.TrimSpace(name), strings.TrimSpace(location))
}

// Heartbeat marks the device active and refreshes lastSeen, creating it when unknown.
func (r *Registry) Heartbeat(ctx context.Context, deviceID string) (*models.Device, error) {
	return r.touch(ctx, deviceID, SourceHeartbeat, "", "")
}

// RecordActivity is the heartbeat applied on sample ingestion.
func (r *Registry) RecordActivity(ctx context.Context, deviceID string) error {
	_, err := r.touch(ctx, deviceID, SourceSample, "", "")
	return err
}

// touch is the single upsert routine behind Register, Heartbeat and RecordActivity.
func (r *Registry) touch(ctx context.Context, deviceID, source, name, location string) (*models.Device, error) {
	deviceID, err := normalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	unlock, err := r.locks.lock(ctx, deviceID)
	if err != nil {
		return nil, storageError("lock device", err)
	}
	defer unlock()

	now := r.Now()
	created := false
	device, err := r.store.GetDevice(ctx, deviceID)
	switch {
	case errors.Is(err, repository.ErrDeviceNotFound):
		created = true
		device = &models.Device{
			DeviceID:  deviceID,
			Name:      DefaultDeviceName(deviceID),
			Location:  DefaultLocation,
			CreatedAt: now,
		}
	case err != nil:
		return nil, storageError("load device", err)
	}

	if name != "" {
		device.Name = name
	}
	if location != "" {
		device.Location = location
	}
	previous := device.Status
	device.Status = models.StatusActive
	device.LastSeen = now
	device.UpdatedAt = now

	if err := r.store.SaveDevice(ctx, device); err != nil {
		return nil, storageError("save device", err)
	}

	r.metrics.DeviceEvent(source)
	if created {
		r.metrics.DeviceProvisioned()
		r.logger.Info("device provisioned", zap.String("device_id", deviceID), zap.String("source", source))
	} else if previous != models.StatusActive {
		r.metrics.StatusTransition(string(models.StatusActive), source)
		r.logger.Info("device reactivated", zap.String("device_id", deviceID), zap.String("source", source))
	}
	return device, nil
}

// SetStatus overrides the status of an existing device. Unknown devices are not provisioned.
func (r *Registry) SetStatus(ctx context.Context, deviceID, status string) (*models.Device, error) {
	deviceID, err := normalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	target, err := models.ParseStatus(status)
	if err != nil {
		return nil, invalidInput("status %q: %v", status, err)
	}

	unlock, err := r.locks.lock(ctx, deviceID)
	if err != nil {
		return nil, storageError("lock device", err)
	}
	defer unlock()

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, storageError("load device", err)
	}
	if device.Status == target {
		return device, nil
	}

	device.Status = target
	device.UpdatedAt = r.Now()
	if err := r.store.SaveDevice(ctx, device); err != nil {
		return nil, storageError("save device", err)
	}

	r.metrics.StatusTransition(string(target), "admin")
	r.logger.Info("device status overridden", zap.String("device_id", deviceID), zap.String("status", string(target)))
	return device, nil
}

// Demote moves an active device to inactive when it has not been seen since cutoff.
// The check is repeated under the device lock, so a concurrent heartbeat always wins.
func (r *Registry) Demote(ctx context.Context, deviceID string, cutoff time.Time) (bool, error) {
	unlock, err := r.locks.lock(ctx, deviceID)
	if err != nil {
		return false, storageError("lock device", err)
	}
	defer unlock()

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		return false, storageError("load device", err)
	}
	if device.Status != models.StatusActive || !device.LastSeen.Before(cutoff) {
		return false, nil
	}

	device.Status = models.StatusInactive
	device.UpdatedAt = r.Now()
	if err := r.store.SaveDevice(ctx, device); err != nil {
		return false, storageError("save device", err)
	}
	r.metrics.StatusTransition(string(models.StatusInactive), "liveness")
	return true, nil
}

// Get returns the device or ErrNotFound.
func (r *Registry) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	deviceID, err := normalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, storageError("get device", err)
	}
	return device, nil
}

// List returns all devices in store order.
func (r *Registry) List(ctx context.Context) ([]models.Device, error) {
	devices, err := r.store.ListDevices(ctx)
	if err != nil {
		return nil, storageError("list devices", err)
	}
	return devices, nil
}

func normalizeDeviceID(deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", invalidInput("device id is required")
	}
	if len(deviceID) > maxDeviceIDLength {
		return "", invalidInput("device id longer than %d characters", maxDeviceIDLength)
	}
	return deviceID, nil
}
