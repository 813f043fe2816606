package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"voltwatch/backend/services/telemetry-service/internal/models"
)

// MemoryStore keeps devices and samples in process memory. It satisfies the same contracts
// as the PostgreSQL repositories and is used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]models.Device
	samples map[string][]models.VoltageSample // per device, ascending by (timestamp, id)
	nextID  int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]models.Device),
		samples: make(map[string][]models.VoltageSample),
	}
}

// GetDevice returns a copy of the device.
func (s *MemoryStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return &d, nil
}

// ListDevices returns copies of all devices ordered by id.
func (s *MemoryStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	devices := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].DeviceID < devices[j].DeviceID })
	return devices, nil
}

// SaveDevice inserts or replaces a device.
func (s *MemoryStore) SaveDevice(ctx context.Context, device *models.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.devices[device.DeviceID]; ok {
		device.CreatedAt = existing.CreatedAt
	} else if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	s.devices[device.DeviceID] = *device
	return nil
}

// DeleteDevice removes a device record, leaving its samples in place.
func (s *MemoryStore) DeleteDevice(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return ErrDeviceNotFound
	}
	delete(s.devices, deviceID)
	return nil
}

// InsertSample assigns the next id and stores the sample in order.
func (s *MemoryStore) InsertSample(ctx context.Context, sample *models.VoltageSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sample.ID = s.nextID

	log := s.samples[sample.DeviceID]
	idx := sort.Search(len(log), func(i int) bool { return sample.Before(log[i]) })
	log = append(log, models.VoltageSample{})
	copy(log[idx+1:], log[idx:])
	log[idx] = *sample
	s.samples[sample.DeviceID] = log
	return nil
}

// RecentSamples returns samples newest first.
func (s *MemoryStore) RecentSamples(ctx context.Context, deviceID string, limit, offset int) ([]models.VoltageSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.samples[deviceID]
	result := make([]models.VoltageSample, 0, limit)
	for i := len(log) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, log[i])
	}
	return result, nil
}

// SnapshotSamples returns the newest sample and the all-time summary under one read lock.
func (s *MemoryStore) SnapshotSamples(ctx context.Context, deviceID string) (*models.VoltageSample, models.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.Summary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.samples[deviceID]
	if len(log) == 0 {
		return nil, models.Summary{}, nil
	}
	latest := log[len(log)-1]
	return &latest, summarize(log), nil
}

// SummarizeSamples aggregates all samples, or the newest window when window > 0.
func (s *MemoryStore) SummarizeSamples(ctx context.Context, deviceID string, window int) (models.Summary, error) {
	if err := ctx.Err(); err != nil {
		return models.Summary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.samples[deviceID]
	if window > 0 && window < len(log) {
		log = log[len(log)-window:]
	}
	return summarize(log), nil
}

func summarize(log []models.VoltageSample) models.Summary {
	var (
		summary models.Summary
		total   float64
	)
	for _, sample := range log {
		summary.Count++
		total += sample.Voltage
		if sample.IsHigh {
			summary.HighCount++
		}
	}
	if summary.Count > 0 {
		summary.AverageVoltage = total / float64(summary.Count)
	}
	return summary
}
