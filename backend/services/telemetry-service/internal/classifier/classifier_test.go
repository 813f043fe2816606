package classifier

import (
	"errors"
	"math"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	if c.Threshold() != 250 {
		t.Fatalf("expected default threshold 250, got %v", c.Threshold())
	}

	cases := []struct {
		voltage float64
		high    bool
	}{
		{0, false},
		{230, false},
		{249.9, false},
		{250, true},
		{250.1, true},
		{255, true},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.voltage); got != tc.high {
			t.Fatalf("classify(%v): expected %v, got %v", tc.voltage, tc.high, got)
		}
	}
}

func TestClassifyExplicitThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HighThreshold = 245
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	if !c.Classify(245) || c.Classify(244.9) {
		t.Fatalf("explicit threshold not applied inclusively")
	}
}

func TestBand(t *testing.T) {
	c, _ := New(DefaultConfig())
	cases := map[float64]Band{
		210: BandLow,
		220: BandNominal,
		240: BandNominal,
		245: BandElevated,
		250: BandHigh,
	}
	for v, want := range cases {
		if got := c.Band(v); got != want {
			t.Fatalf("band(%v): expected %s, got %s", v, want, got)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{NominalMin: 240, NominalMax: 220},
		{NominalMin: -1, NominalMax: 220},
		{NominalMin: 220, NominalMax: 240, HighMargin: -5},
		{NominalMin: 220, NominalMax: 240, HighThreshold: -1},
	}
	for _, cfg := range bad {
		if _, err := New(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

func TestRoundVoltage(t *testing.T) {
	cases := map[float64]float64{
		230.04: 230.0,
		230.05: 230.1,
		229.96: 230.0,
		255:    255,
	}
	for in, want := range cases {
		if got := RoundVoltage(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("round(%v): expected %v, got %v", in, want, got)
		}
	}
}

func TestValidateVoltage(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.5, MaxVoltage + 0.1, 1e308, math.MaxFloat64} {
		if err := ValidateVoltage(v); !errors.Is(err, ErrInvalidVoltage) {
			t.Fatalf("expected ErrInvalidVoltage for %v, got %v", v, err)
		}
	}
	if err := ValidateVoltage(0); err != nil {
		t.Fatalf("zero voltage should be valid: %v", err)
	}
	if err := ValidateVoltage(MaxVoltage); err != nil {
		t.Fatalf("MaxVoltage should be valid: %v", err)
	}
}
