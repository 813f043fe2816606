package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/metrics"
	"voltwatch/backend/services/telemetry-service/internal/models"
)

// LivenessConfig controls the background demotion sweep.
type LivenessConfig struct {
	Enabled       bool
	Timeout       time.Duration
	Interval      time.Duration
	DeviceTimeout time.Duration
}

// DefaultLivenessConfig returns a five minute timeout checked every 30 seconds.
func DefaultLivenessConfig() LivenessConfig {
	return LivenessConfig{
		Enabled:       true,
		Timeout:       5 * time.Minute,
		Interval:      30 * time.Second,
		DeviceTimeout: 2 * time.Second,
	}
}

// PassResult reports what one sweep did.
type PassResult struct {
	Checked int
	Demoted int
	Failed  int
}

// LivenessMonitor demotes devices whose last activity is older than the timeout.
type LivenessMonitor struct {
	registry *Registry
	cfg      LivenessConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewLivenessMonitor builds a monitor; zero durations fall back to defaults.
func NewLivenessMonitor(registry *Registry, cfg LivenessConfig, m *metrics.Metrics, logger *zap.Logger) *LivenessMonitor {
	defaults := DefaultLivenessConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = defaults.DeviceTimeout
	}
	return &LivenessMonitor{
		registry: registry,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		metrics:  m,
	}
}

// Start runs a pass every interval until ctx is done. A disabled monitor returns at once.
func (m *LivenessMonitor) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("liveness monitor disabled")
		return nil
	}
	m.logger.Info("liveness monitor started",
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Duration("interval", m.cfg.Interval),
	)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Failures are per device: they are logged, counted and
// retried on the next pass without stopping the rest of this one.
func (m *LivenessMonitor) RunOnce(ctx context.Context) PassResult {
	started := time.Now()
	defer func() { m.metrics.MonitorPass(time.Since(started)) }()

	var result PassResult
	listCtx, cancel := context.WithTimeout(ctx, m.cfg.Interval)
	devices, err := m.registry.List(listCtx)
	cancel()
	if err != nil {
		m.logger.Warn("liveness pass skipped, device list failed", zap.Error(err))
		return result
	}

	cutoff := m.registry.Now().Add(-m.cfg.Timeout)
	for _, device := range devices {
		if ctx.Err() != nil {
			return result
		}
		if device.Status != models.StatusActive || !device.LastSeen.Before(cutoff) {
			continue
		}
		result.Checked++

		demoted, err := m.demote(ctx, device.DeviceID, cutoff)
		if err != nil {
			result.Failed++
			m.metrics.MonitorFailure()
			m.logger.Warn("liveness check failed", zap.String("device_id", device.DeviceID), zap.Error(err))
			continue
		}
		if demoted {
			result.Demoted++
			m.logger.Info("device marked inactive",
				zap.String("device_id", device.DeviceID),
				zap.Time("last_seen", device.LastSeen),
			)
		}
	}
	return result
}

func (m *LivenessMonitor) demote(ctx context.Context, deviceID string, cutoff time.Time) (bool, error) {
	deviceCtx, cancel := context.WithTimeout(ctx, m.cfg.DeviceTimeout)
	defer cancel()
	return m.registry.Demote(deviceCtx, deviceID, cutoff)
}
