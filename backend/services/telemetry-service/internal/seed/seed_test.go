package seed

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"voltwatch/backend/services/telemetry-service/internal/classifier"
	"voltwatch/backend/services/telemetry-service/internal/repository"
	"voltwatch/backend/services/telemetry-service/internal/service"
)

func newQuery(t *testing.T) *service.QueryService {
	t.Helper()
	store := repository.NewMemoryStore()
	cls, err := classifier.New(classifier.DefaultConfig())
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	registry := service.NewRegistry(store, nil, nil)
	telemetry := service.NewTelemetryStore(store, registry, cls, nil, nil, nil)
	return service.NewQueryService(registry, telemetry, nil, time.Second, nil, nil)
}

func TestSeedLoadsDemoDevices(t *testing.T) {
	query := newQuery(t)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	seeder := New(query, rand.New(rand.NewSource(7)), nil)
	seeder.now = func() time.Time { return now }

	ctx := context.Background()
	result, err := seeder.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Devices != 3 || result.Samples != 3*SamplesPerDevice {
		t.Fatalf("unexpected result %+v", result)
	}

	rows, err := query.DeviceList(ctx)
	if err != nil {
		t.Fatalf("DeviceList: %v", err)
	}
	if len(rows) != 3 || rows[0].Device.Name != "Main Power Monitor" {
		t.Fatalf("unexpected devices %+v", rows)
	}

	overview, err := query.DeviceOverview(ctx, "DEV002")
	if err != nil {
		t.Fatalf("DeviceOverview: %v", err)
	}
	if overview.Count != SamplesPerDevice {
		t.Fatalf("expected %d samples, got %d", SamplesPerDevice, overview.Count)
	}
	if !overview.LatestSample.Timestamp.Equal(now) {
		t.Fatalf("latest sample at %v, want %v", overview.LatestSample.Timestamp, now)
	}

	series, err := query.SeriesForChart(ctx, "DEV002", SamplesPerDevice)
	if err != nil {
		t.Fatalf("SeriesForChart: %v", err)
	}
	if got := series[1].Timestamp.Sub(series[0].Timestamp); got != SampleInterval {
		t.Fatalf("expected %v spacing, got %v", SampleInterval, got)
	}
	for _, p := range series {
		if p.IsHigh && p.Voltage < 250 {
			t.Fatalf("high sample below surge band: %+v", p)
		}
		if !p.IsHigh && (p.Voltage < 220 || p.Voltage > 240) {
			t.Fatalf("normal sample outside base band: %+v", p)
		}
	}
}

func TestSeedIsRepeatable(t *testing.T) {
	query := newQuery(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := New(query, nil, nil).Run(ctx); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	summary, err := query.Summary(ctx, "DEV001", 0)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Count != 2*SamplesPerDevice {
		t.Fatalf("expected samples to accumulate, got %d", summary.Count)
	}
}
