package simulator

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/clients"
	"voltwatch/backend/services/telemetry-service/internal/classifier"
	"voltwatch/backend/services/telemetry-service/internal/models"
)

// Probability of a simulated surge.
const highVoltageChance = 0.1

// DeviceAPI is what the simulator needs from the telemetry API.
type DeviceAPI interface {
	Register(ctx context.Context, req clients.RegisterRequest) (*models.Device, error)
	Heartbeat(ctx context.Context, deviceID string) (*models.Device, error)
	SetStatus(ctx context.Context, deviceID string, status models.DeviceStatus) (*models.Device, error)
	SubmitVoltage(ctx context.Context, deviceID string, reading clients.VoltageReading) (*models.VoltageSample, error)
}

// Config describes the simulated device.
type Config struct {
	DeviceID string
	Name     string
	Location string
	Interval time.Duration
}

// Stats counts what a run sent.
type Stats struct {
	Heartbeats int
	Samples    int
	HighAlerts int
	Failures   int
}

// Simulator behaves like a field device: it registers, then heartbeats and reports a reading
// every interval, and marks itself inactive on shutdown.
type Simulator struct {
	api    DeviceAPI
	cfg    Config
	rnd    *rand.Rand
	logger *zap.Logger
}

// New builds a simulator. rnd may be nil.
func New(api DeviceAPI, cfg Config, rnd *rand.Rand, logger *zap.Logger) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{api: api, cfg: cfg, rnd: rnd, logger: logging.OrNop(logger)}
}

// Reading returns a voltage: 250-270V one time in ten, otherwise 220-240V.
func (s *Simulator) Reading() float64 {
	if s.rnd.Float64() < highVoltageChance {
		return classifier.RoundVoltage(250 + s.rnd.Float64()*20)
	}
	return classifier.RoundVoltage(220 + s.rnd.Float64()*20)
}

// Run registers the device and reports until ctx is done.
func (s *Simulator) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if _, err := s.api.Register(ctx, clients.RegisterRequest{
		DeviceID: s.cfg.DeviceID,
		Name:     s.cfg.Name,
		Location: s.cfg.Location,
	}); err != nil {
		return stats, err
	}
	s.logger.Info("device registered", zap.String("device_id", s.cfg.DeviceID))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown(stats)
			return stats, nil
		case <-ticker.C:
			s.tick(ctx, &stats)
		}
	}
}

func (s *Simulator) tick(ctx context.Context, stats *Stats) {
	if _, err := s.api.Heartbeat(ctx, s.cfg.DeviceID); err != nil {
		stats.Failures++
		s.logger.Warn("heartbeat failed", zap.Error(err))
	} else {
		stats.Heartbeats++
	}

	voltage := s.Reading()
	sample, err := s.api.SubmitVoltage(ctx, s.cfg.DeviceID, clients.VoltageReading{Voltage: voltage})
	if err != nil {
		stats.Failures++
		s.logger.Warn("voltage submit failed", zap.Float64("voltage", voltage), zap.Error(err))
		return
	}
	stats.Samples++
	if sample.IsHigh {
		stats.HighAlerts++
		s.logger.Warn("high voltage alert", zap.Float64("voltage", sample.Voltage))
		return
	}
	s.logger.Info("voltage reported", zap.Float64("voltage", sample.Voltage))
}

func (s *Simulator) shutdown(stats Stats) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.api.SetStatus(ctx, s.cfg.DeviceID, models.StatusInactive); err != nil {
		s.logger.Warn("failed to mark device inactive", zap.Error(err))
	}
	s.logger.Info("simulation stopped",
		zap.Int("heartbeats", stats.Heartbeats),
		zap.Int("samples", stats.Samples),
		zap.Int("high_alerts", stats.HighAlerts),
	)
}
