package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"voltwatch/backend/libs/logging"
	"voltwatch/backend/services/telemetry-service/internal/classifier"
	"voltwatch/backend/services/telemetry-service/internal/models"
	"voltwatch/backend/services/telemetry-service/internal/service"
)

const (
	SamplesPerDevice = 288
	SampleInterval   = 5 * time.Minute
	highChance       = 0.05
)

// Ingestor is the subset of the query service the seeder writes through.
type Ingestor interface {
	RegisterDevice(ctx context.Context, deviceID, name, location string) (*models.Device, error)
	SubmitSample(ctx context.Context, input service.SampleInput) (*models.VoltageSample, error)
}

// DemoDevice describes one demo device.
type DemoDevice struct {
	DeviceID string
	Name     string
	Location string
}

// DemoDevices are the fixtures loaded by default.
var DemoDevices = []DemoDevice{
	{DeviceID: "DEV001", Name: "Main Power Monitor", Location: "Building A - Floor 1"},
	{DeviceID: "DEV002", Name: "Backup Generator Monitor", Location: "Building A - Basement"},
	{DeviceID: "DEV003", Name: "Server Room Monitor", Location: "Building B - Floor 2"},
}

// Result summarises a seeding run.
type Result struct {
	Devices int
	Samples int
	High    int
}

// Seeder loads a day of five-minute samples for each demo device.
type Seeder struct {
	ingestor Ingestor
	devices  []DemoDevice
	rnd      *rand.Rand
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a seeder over DemoDevices. rnd may be nil.
func New(ingestor Ingestor, rnd *rand.Rand, logger *zap.Logger) *Seeder {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Seeder{
		ingestor: ingestor,
		devices:  DemoDevices,
		rnd:      rnd,
		now:      time.Now,
		logger:   logging.OrNop(logger),
	}
}

// Run registers every device and ingests its history.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var result Result
	now := s.now().UTC()
	for _, d := range s.devices {
		device, err := s.ingestor.RegisterDevice(ctx, d.DeviceID, d.Name, d.Location)
		if err != nil {
			return result, fmt.Errorf("register %s: %w", d.DeviceID, err)
		}
		result.Devices++

		high, err := s.seedSamples(ctx, device.DeviceID, now)
		if err != nil {
			return result, err
		}
		result.Samples += SamplesPerDevice
		result.High += high
		s.logger.Info("device seeded",
			zap.String("device_id", device.DeviceID),
			zap.Int("samples", SamplesPerDevice),
			zap.Int("high", high),
		)
	}
	return result, nil
}

// seedSamples writes oldest first so the final sample is the one at now.
func (s *Seeder) seedSamples(ctx context.Context, deviceID string, now time.Time) (int, error) {
	high := 0
	for i := SamplesPerDevice - 1; i >= 0; i-- {
		voltage, isHigh := s.reading()
		if isHigh {
			high++
		}
		_, err := s.ingestor.SubmitSample(ctx, service.SampleInput{
			DeviceID:  deviceID,
			Voltage:   voltage,
			IsHigh:    &isHigh,
			Timestamp: now.Add(-time.Duration(i) * SampleInterval),
		})
		if err != nil {
			return high, fmt.Errorf("sample %d for %s: %w", i, deviceID, err)
		}
	}
	return high, nil
}

func (s *Seeder) reading() (float64, bool) {
	base := 220 + s.rnd.Float64()*20
	isHigh := s.rnd.Float64() < highChance
	if isHigh {
		base += 30 + s.rnd.Float64()*20
	}
	return classifier.RoundVoltage(base), isHigh
}
