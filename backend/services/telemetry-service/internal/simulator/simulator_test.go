package simulator

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"voltwatch/backend/services/telemetry-service/internal/clients"
	"voltwatch/backend/services/telemetry-service/internal/models"
)

type fakeAPI struct {
	mu          sync.Mutex
	registered  int
	heartbeats  int
	readings    []float64
	finalStatus models.DeviceStatus
	failVoltage bool
}

func (f *fakeAPI) Register(ctx context.Context, req clients.RegisterRequest) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered++
	return &models.Device{DeviceID: req.DeviceID}, nil
}

func (f *fakeAPI) Heartbeat(ctx context.Context, deviceID string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return &models.Device{DeviceID: deviceID}, nil
}

func (f *fakeAPI) SetStatus(ctx context.Context, deviceID string, status models.DeviceStatus) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalStatus = status
	return &models.Device{DeviceID: deviceID, Status: status}, nil
}

func (f *fakeAPI) SubmitVoltage(ctx context.Context, deviceID string, reading clients.VoltageReading) (*models.VoltageSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failVoltage {
		return nil, errors.New("unavailable")
	}
	f.readings = append(f.readings, reading.Voltage)
	return &models.VoltageSample{DeviceID: deviceID, Voltage: reading.Voltage, IsHigh: reading.Voltage >= 250}, nil
}

func (f *fakeAPI) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

func TestReadingDistribution(t *testing.T) {
	sim := New(&fakeAPI{}, Config{DeviceID: "SIM01"}, rand.New(rand.NewSource(42)), nil)

	high := 0
	const n = 5000
	for i := 0; i < n; i++ {
		v := sim.Reading()
		switch {
		case v >= 250 && v <= 270:
			high++
		case v >= 220 && v <= 240:
		default:
			t.Fatalf("reading %v outside both ranges", v)
		}
	}
	if ratio := float64(high) / n; ratio < 0.07 || ratio > 0.13 {
		t.Fatalf("surge ratio %.3f far from 10%%", ratio)
	}
}

func TestRunReportsAndMarksInactive(t *testing.T) {
	api := &fakeAPI{}
	sim := New(api, Config{DeviceID: "SIM01", Interval: 5 * time.Millisecond}, rand.New(rand.NewSource(1)), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Stats, 1)
	go func() {
		stats, _ := sim.Run(ctx)
		done <- stats
	}()

	deadline := time.Now().Add(time.Second)
	for api.sampleCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	stats := <-done

	if api.registered != 1 {
		t.Fatalf("expected one registration, got %d", api.registered)
	}
	if stats.Samples < 3 || stats.Heartbeats < stats.Samples {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if api.finalStatus != models.StatusInactive {
		t.Fatalf("expected device marked inactive, got %q", api.finalStatus)
	}
}

func TestRunCountsFailures(t *testing.T) {
	api := &fakeAPI{failVoltage: true}
	sim := New(api, Config{DeviceID: "SIM01", Interval: 5 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	stats, err := sim.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failures == 0 || stats.Samples != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
