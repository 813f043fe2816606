package service

import (
	"context"

	"voltwatch/backend/services/telemetry-service/internal/models"
)

// DeviceStore is the persistence collaborator for device records.
// GetDevice returns repository.ErrDeviceNotFound for unknown ids.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	SaveDevice(ctx context.Context, device *models.Device) error
}

// SampleStore is the persistence collaborator for voltage samples.
// RecentSamples orders by timestamp then id, both descending.
type SampleStore interface {
	InsertSample(ctx context.Context, sample *models.VoltageSample) error
	RecentSamples(ctx context.Context, deviceID string, limit, offset int) ([]models.VoltageSample, error)
	SummarizeSamples(ctx context.Context, deviceID string, window int) (models.Summary, error)
}

// SampleSnapshotter is implemented by sample stores that can read the newest sample and the
// all-time summary from a single consistent view. latest is nil when the device has no samples.
type SampleSnapshotter interface {
	SnapshotSamples(ctx context.Context, deviceID string) (latest *models.VoltageSample, summary models.Summary, err error)
}

// LatestCache keeps the newest sample per device for list views.
// Latest returns nil, nil on a miss. StoreLatest must never replace a newer sample.
type LatestCache interface {
	StoreLatest(ctx context.Context, sample models.VoltageSample) error
	Latest(ctx context.Context, deviceID string) (*models.VoltageSample, error)
	Invalidate(ctx context.Context, deviceID string) error
}
