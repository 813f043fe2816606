package classifier

import (
	"errors"
	"fmt"
	"math"
)

// Defaults for mains voltage monitoring.
const (
	DefaultNominalMin = 220.0
	DefaultNominalMax = 240.0
	DefaultHighMargin = 10.0

	// MaxVoltage bounds accepted readings; anything above is a sensor or encoding fault.
	MaxVoltage = 1e6
)

// ErrInvalidVoltage is returned by ValidateVoltage for readings that cannot be stored.
var ErrInvalidVoltage = errors.New("invalid voltage")

// Band describes where a reading sits relative to the nominal band.
type Band string

// Bands, lowest first.
const (
	BandLow      Band = "low"
	BandNominal  Band = "nominal"
	BandElevated Band = "elevated"
	BandHigh     Band = "high"
)

// Config describes the nominal band and where high voltage begins.
// HighThreshold, when positive, overrides NominalMax+HighMargin.
type Config struct {
	NominalMin    float64 `yaml:"nominalMin"`
	NominalMax    float64 `yaml:"nominalMax"`
	HighMargin    float64 `yaml:"highMargin"`
	HighThreshold float64 `yaml:"highThreshold"`
}

// DefaultConfig returns the 220-240V band with high voltage starting at 250V.
func DefaultConfig() Config {
	return Config{
		NominalMin: DefaultNominalMin,
		NominalMax: DefaultNominalMax,
		HighMargin: DefaultHighMargin,
	}
}

// Validate checks the band is well formed.
func (c Config) Validate() error {
	if c.NominalMin < 0 || c.NominalMax < c.NominalMin {
		return fmt.Errorf("classifier: nominal band [%g, %g] is invalid", c.NominalMin, c.NominalMax)
	}
	if c.HighMargin < 0 {
		return fmt.Errorf("classifier: high margin %g must not be negative", c.HighMargin)
	}
	if c.HighThreshold < 0 {
		return fmt.Errorf("classifier: high threshold %g must not be negative", c.HighThreshold)
	}
	return nil
}

// Threshold is the inclusive lower bound of high voltage.
func (c Config) Threshold() float64 {
	if c.HighThreshold > 0 {
		return c.HighThreshold
	}
	return c.NominalMax + c.HighMargin
}

// Classifier maps raw readings to the high/normal flag.
type Classifier struct {
	cfg       Config
	threshold float64
}

// New builds a classifier from a validated config.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg, threshold: cfg.Threshold()}, nil
}

// Threshold returns the configured high-voltage threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify reports whether voltage is at or above the high threshold.
func (c *Classifier) Classify(voltage float64) bool {
	return voltage >= c.threshold
}

// Band places voltage relative to the nominal band and the high threshold.
func (c *Classifier) Band(voltage float64) Band {
	switch {
	case voltage >= c.threshold:
		return BandHigh
	case voltage > c.cfg.NominalMax:
		return BandElevated
	case voltage < c.cfg.NominalMin:
		return BandLow
	default:
		return BandNominal
	}
}

// RoundVoltage rounds to one decimal place, half away from zero.
func RoundVoltage(voltage float64) float64 {
	return math.Round(voltage*10) / 10
}

// ValidateVoltage rejects NaN, infinities, negative readings and readings above MaxVoltage.
func ValidateVoltage(voltage float64) error {
	if math.IsNaN(voltage) || math.IsInf(voltage, 0) {
		return fmt.Errorf("%w: %v is not a finite number", ErrInvalidVoltage, voltage)
	}
	if voltage < 0 {
		return fmt.Errorf("%w: %v is negative", ErrInvalidVoltage, voltage)
	}
	if voltage > MaxVoltage {
		return fmt.Errorf("%w: %v exceeds %v", ErrInvalidVoltage, voltage, MaxVoltage)
	}
	return nil
}
