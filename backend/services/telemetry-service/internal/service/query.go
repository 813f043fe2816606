package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/metrics"
	"voltwatch/backend/services/telemetry-service/internal/models"
)

// Overview is the per-device dashboard snapshot.
type Overview struct {
	Device         models.Device         `json:"device"`
	LatestSample   *models.VoltageSample `json:"latestSample"`
	Count          int64                 `json:"count"`
	HighCount      int64                 `json:"highCount"`
	AverageVoltage float64               `json:"averageVoltage"`
}

// DeviceRow is one line of the device list.
type DeviceRow struct {
	Device       models.Device         `json:"device"`
	LatestSample *models.VoltageSample `json:"latestSample"`
}

// ChartPoint is one plotted sample.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Voltage   float64   `json:"voltage"`
	IsHigh    bool      `json:"isHigh"`
}

// QueryService is the entry point used by transports: it composes the registry and the
// telemetry store and applies a default read deadline.
type QueryService struct {
	registry    *Registry
	telemetry   *TelemetryStore
	cache       LatestCache
	readTimeout time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewQueryService wires the facade. cache may be nil; readTimeout <= 0 disables the default deadline.
func NewQueryService(
	registry *Registry,
	telemetry *TelemetryStore,
	cache LatestCache,
	readTimeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		registry:    registry,
		telemetry:   telemetry,
		cache:       cache,
		readTimeout: readTimeout,
		logger:      logging.OrNop(logger),
		metrics:     m,
	}
}

// RegisterDevice upserts a device with optional metadata.
func (q *QueryService) RegisterDevice(ctx context.Context, deviceID, name, location string) (*models.Device, error) {
	return q.registry.Register(ctx, deviceID, name, location)
}

// Heartbeat refreshes a device's liveness.
func (q *QueryService) Heartbeat(ctx context.Context, deviceID string) (*models.Device, error) {
	return q.registry.Heartbeat(ctx, deviceID)
}

// SubmitSample ingests a voltage reading.
func (q *QueryService) SubmitSample(ctx context.Context, input SampleInput) (*models.VoltageSample, error) {
	return q.telemetry.Append(ctx, input)
}

// SetDeviceStatus is the administrative status override.
func (q *QueryService) SetDeviceStatus(ctx context.Context, deviceID, status string) (*models.Device, error) {
	return q.registry.SetStatus(ctx, deviceID, status)
}

// DeviceOverview returns the device with its latest sample and all-time statistics.
func (q *QueryService) DeviceOverview(ctx context.Context, deviceID string) (overview *Overview, err error) {
	ctx, done := q.startRead(ctx, "overview")
	defer func() { done(err) }()

	device, err := q.registry.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	latest, summary, err := q.telemetry.Snapshot(ctx, device.DeviceID)
	if err != nil {
		return nil, err
	}
	return &Overview{
		Device:         *device,
		LatestSample:   latest,
		Count:          summary.Count,
		HighCount:      summary.HighCount,
		AverageVoltage: summary.AverageVoltage,
	}, nil
}

// DeviceList returns every device with its newest sample, ordered by device id.
func (q *QueryService) DeviceList(ctx context.Context) (rows []DeviceRow, err error) {
	ctx, done := q.startRead(ctx, "list")
	defer func() { done(err) }()

	devices, err := q.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].DeviceID < devices[j].DeviceID })

	rows = make([]DeviceRow, 0, len(devices))
	for _, device := range devices {
		latest, err := q.latest(ctx, device.DeviceID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, DeviceRow{Device: device, LatestSample: latest})
	}
	return rows, nil
}

// latest consults the cache before the store and back-fills it on a miss. Devices whose
// cache entry missed a write are read from the store until a fill succeeds; the fill is a
// compare-and-set, so an older sample from a racing reader never replaces a newer one.
func (q *QueryService) latest(ctx context.Context, deviceID string) (*models.VoltageSample, error) {
	if q.cache == nil {
		return q.telemetry.Latest(ctx, deviceID)
	}

	gen, suspect := q.telemetry.cacheSuspect(deviceID)
	if !suspect {
		cached, err := q.cache.Latest(ctx, deviceID)
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil {
			q.logger.Debug("latest sample cache read failed", zap.String("device_id", deviceID), zap.Error(err))
		}
	}

	latest, err := q.telemetry.Latest(ctx, deviceID)
	if err != nil || latest == nil {
		return latest, err
	}
	if err := q.cache.StoreLatest(ctx, *latest); err != nil {
		q.logger.Debug("latest sample cache fill failed", zap.String("device_id", deviceID), zap.Error(err))
		return latest, nil
	}
	if suspect {
		q.telemetry.clearCacheSuspect(deviceID, gen)
	}
	return latest, nil
}

// RecentLogs returns samples newest first. Unknown devices yield an empty page.
func (q *QueryService) RecentLogs(ctx context.Context, deviceID string, limit, offset int) (samples []models.VoltageSample, err error) {
	ctx, done := q.startRead(ctx, "recent")
	defer func() { done(err) }()

	return q.telemetry.Recent(ctx, deviceID, limit, offset)
}

// SeriesForChart returns the newest limit samples in chronological order.
func (q *QueryService) SeriesForChart(ctx context.Context, deviceID string, limit int) (points []ChartPoint, err error) {
	ctx, done := q.startRead(ctx, "series")
	defer func() { done(err) }()

	samples, err := q.telemetry.Recent(ctx, deviceID, limit, 0)
	if err != nil {
		return nil, err
	}
	points = make([]ChartPoint, len(samples))
	for i, sample := range samples {
		points[len(samples)-1-i] = ChartPoint{
			Timestamp: sample.Timestamp,
			Voltage:   sample.Voltage,
			IsHigh:    sample.IsHigh,
		}
	}
	return points, nil
}

// Summary returns statistics for an existing device over all samples (window 0) or the newest window.
func (q *QueryService) Summary(ctx context.Context, deviceID string, window int) (summary models.Summary, err error) {
	ctx, done := q.startRead(ctx, "summary")
	defer func() { done(err) }()

	device, err := q.registry.Get(ctx, deviceID)
	if err != nil {
		return models.Summary{}, err
	}
	return q.telemetry.Summarize(ctx, device.DeviceID, window)
}

// startRead applies the default deadline when ctx has none and returns a completion hook
// that records latency and error kind.
func (q *QueryService) startRead(ctx context.Context, op string) (context.Context, func(error)) {
	started := time.Now()
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok && q.readTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.readTimeout)
	}
	return ctx, func(err error) {
		cancel()
		kind := ErrorKind(err)
		q.metrics.ObserveRead(op, time.Since(started), kind)
		if kind == "timeout" || kind == "unavailable" {
			q.logger.Warn("read failed", zap.String("op", op), zap.String("kind", kind), zap.Error(err))
		}
	}
}
