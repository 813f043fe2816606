package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/classifier"
	"voltwatch/backend/services/telemetry-service/internal/metrics"
	"voltwatch/backend/services/telemetry-service/internal/models"
)

// Read window bounds.
const (
	DefaultRecentLimit = 100
	MaxRecentLimit     = 1000
)

// SampleInput is an ingested voltage reading. IsHigh and Timestamp are optional.
type SampleInput struct {
	DeviceID  string
	Voltage   float64
	IsHigh    *bool
	Timestamp time.Time
}

// TelemetryStore owns the append-only sample log and its derived views.
type TelemetryStore struct {
	samples    SampleStore
	registry   *Registry
	classifier *classifier.Classifier
	cache      LatestCache
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// suspect holds devices whose cached latest sample may be older than the store,
	// keyed to the generation that marked them.
	suspectMu  sync.Mutex
	suspect    map[string]uint64
	suspectGen uint64
}

// NewTelemetryStore wires the store. cache may be nil.
func NewTelemetryStore(
	samples SampleStore,
	registry *Registry,
	cls *classifier.Classifier,
	cache LatestCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TelemetryStore {
	return &TelemetryStore{
		samples:    samples,
		registry:   registry,
		classifier: cls,
		cache:      cache,
		logger:     logging.OrNop(logger),
		metrics:    m,
		suspect:    make(map[string]uint64),
	}
}

// Append validates, classifies and persists a sample, then extends the device's liveness.
// The sample is durable before the registry is touched, so a reader never sees a freshly
// activated device without the sample that activated it.
func (s *TelemetryStore) Append(ctx context.Context, input SampleInput) (*models.VoltageSample, error) {
	deviceID, err := normalizeDeviceID(input.DeviceID)
	if err != nil {
		return nil, err
	}
	if err := classifier.ValidateVoltage(input.Voltage); err != nil {
		return nil, invalidInput("%v", err)
	}

	voltage := classifier.RoundVoltage(input.Voltage)
	if err := classifier.ValidateVoltage(voltage); err != nil {
		return nil, invalidInput("rounded %v", err)
	}
	isHigh := s.classifier.Classify(voltage)
	if input.IsHigh != nil {
		isHigh = *input.IsHigh
	}
	ts := input.Timestamp.UTC()
	if input.Timestamp.IsZero() {
		ts = s.registry.Now()
	}

	sample := &models.VoltageSample{
		DeviceID:  deviceID,
		Voltage:   voltage,
		IsHigh:    isHigh,
		Timestamp: ts,
	}
	if err := s.samples.InsertSample(ctx, sample); err != nil {
		return nil, storageError("insert sample", err)
	}
	s.metrics.SampleIngested(isHigh)
	if isHigh {
		s.logger.Warn("high voltage sample",
			zap.String("device_id", deviceID),
			zap.Float64("voltage", voltage),
			zap.Float64("threshold", s.classifier.Threshold()),
			zap.String("band", string(s.classifier.Band(voltage))),
		)
	}

	if err := s.registry.RecordActivity(ctx, deviceID); err != nil {
		s.metrics.DeviceEventFailed(SourceSample)
		s.logger.Warn("failed to record device activity", zap.String("device_id", deviceID), zap.Error(err))
	}
	s.refreshCache(ctx, *sample)

	return sample, nil
}

func (s *TelemetryStore) refreshCache(ctx context.Context, sample models.VoltageSample) {
	if s.cache == nil {
		return
	}
	if err := s.cache.StoreLatest(ctx, sample); err != nil {
		s.logger.Warn("failed to cache latest sample", zap.String("device_id", sample.DeviceID), zap.Error(err))
		s.markCacheSuspect(sample.DeviceID)
		if err := s.cache.Invalidate(ctx, sample.DeviceID); err != nil {
			s.logger.Warn("failed to invalidate latest sample", zap.String("device_id", sample.DeviceID), zap.Error(err))
		}
	}
}

// markCacheSuspect records that the cache missed a write for deviceID. Readers bypass the
// cache for the device until a store-backed fill lands.
func (s *TelemetryStore) markCacheSuspect(deviceID string) {
	s.suspectMu.Lock()
	defer s.suspectMu.Unlock()
	s.suspectGen++
	s.suspect[deviceID] = s.suspectGen
}

// cacheSuspect reports whether the cached entry for deviceID may be stale, along with the
// generation to hand back to clearCacheSuspect.
func (s *TelemetryStore) cacheSuspect(deviceID string) (uint64, bool) {
	s.suspectMu.Lock()
	defer s.suspectMu.Unlock()
	gen, ok := s.suspect[deviceID]
	return gen, ok
}

// clearCacheSuspect drops the mark unless a newer cache failure replaced it.
func (s *TelemetryStore) clearCacheSuspect(deviceID string, gen uint64) {
	s.suspectMu.Lock()
	defer s.suspectMu.Unlock()
	if s.suspect[deviceID] == gen {
		delete(s.suspect, deviceID)
	}
}

// Recent returns up to limit samples newest first, skipping offset. A zero limit means the
// default and limits above MaxRecentLimit are clamped.
func (s *TelemetryStore) Recent(ctx context.Context, deviceID string, limit, offset int) ([]models.VoltageSample, error) {
	deviceID, err := normalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	limit, err = normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, invalidInput("offset %d must not be negative", offset)
	}

	samples, err := s.samples.RecentSamples(ctx, deviceID, limit, offset)
	if err != nil {
		return nil, storageError("recent samples", err)
	}
	return samples, nil
}

// Latest returns the newest sample or nil when the device has none.
func (s *TelemetryStore) Latest(ctx context.Context, deviceID string) (*models.VoltageSample, error) {
	samples, err := s.Recent(ctx, deviceID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[0], nil
}

// Summarize aggregates the full history when window is 0, otherwise the newest window samples.
func (s *TelemetryStore) Summarize(ctx context.Context, deviceID string, window int) (models.Summary, error) {
	deviceID, err := normalizeDeviceID(deviceID)
	if err != nil {
		return models.Summary{}, err
	}
	if window < 0 {
		return models.Summary{}, invalidInput("window %d must not be negative", window)
	}
	summary, err := s.samples.SummarizeSamples(ctx, deviceID, window)
	if err != nil {
		return models.Summary{}, storageError("summarize samples", err)
	}
	return summary, nil
}

// Snapshot returns the newest sample together with the all-time summary. Stores implementing
// SampleSnapshotter answer from one view; others fall back to two reads.
func (s *TelemetryStore) Snapshot(ctx context.Context, deviceID string) (*models.VoltageSample, models.Summary, error) {
	deviceID, err := normalizeDeviceID(deviceID)
	if err != nil {
		return nil, models.Summary{}, err
	}
	if snap, ok := s.samples.(SampleSnapshotter); ok {
		latest, summary, err := snap.SnapshotSamples(ctx, deviceID)
		if err != nil {
			return nil, models.Summary{}, storageError("snapshot samples", err)
		}
		return latest, summary, nil
	}

	latest, err := s.Latest(ctx, deviceID)
	if err != nil {
		return nil, models.Summary{}, err
	}
	summary, err := s.Summarize(ctx, deviceID, 0)
	if err != nil {
		return nil, models.Summary{}, err
	}
	return latest, summary, nil
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, invalidInput("limit %d must not be negative", limit)
	case limit == 0:
		return DefaultRecentLimit, nil
	case limit > MaxRecentLimit:
		return MaxRecentLimit, nil
	default:
		return limit, nil
	}
}
