package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voltwatch/backend/services/telemetry-service/internal/classifier"
	"voltwatch/backend/services/telemetry-service/internal/models"
	"voltwatch/backend/services/telemetry-service/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEngine struct {
	store     *repository.MemoryStore
	clock     *fakeClock
	registry  *Registry
	telemetry *TelemetryStore
	query     *QueryService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineWith(t, nil, nil, nil)
}

// newTestEngineWith builds an engine over a memory store; nil overrides fall back to it.
func newTestEngineWith(t *testing.T, devices DeviceStore, samples SampleStore, cache LatestCache) *testEngine {
	t.Helper()
	store := repository.NewMemoryStore()
	if devices == nil {
		devices = store
	}
	if samples == nil {
		samples = store
	}
	cls, err := classifier.New(classifier.DefaultConfig())
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	clock := newFakeClock(time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	registry := NewRegistry(devices, nil, nil)
	registry.SetClock(clock.Now)
	telemetry := NewTelemetryStore(samples, registry, cls, cache, nil, nil)
	return &testEngine{
		store:     store,
		clock:     clock,
		registry:  registry,
		telemetry: telemetry,
		query:     NewQueryService(registry, telemetry, cache, time.Second, nil, nil),
	}
}

func boolPtr(v bool) *bool { return &v }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

var errStorageDown = errors.New("connection refused")

// flakyDevices fails GetDevice for the listed ids and records store calls.
type flakyDevices struct {
	*repository.MemoryStore
	mu      sync.Mutex
	failIDs map[string]bool
	events  *[]string
}

func (f *flakyDevices) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	f.mu.Lock()
	fail := f.failIDs[deviceID]
	f.mu.Unlock()
	if fail {
		return nil, errStorageDown
	}
	return f.MemoryStore.GetDevice(ctx, deviceID)
}

func (f *flakyDevices) SaveDevice(ctx context.Context, device *models.Device) error {
	if f.events != nil {
		f.mu.Lock()
		*f.events = append(*f.events, "save-device")
		f.mu.Unlock()
	}
	return f.MemoryStore.SaveDevice(ctx, device)
}

// recordingSamples records inserts and can fail or stall reads.
type recordingSamples struct {
	*repository.MemoryStore
	mu     sync.Mutex
	events *[]string
	fail   bool
	stall  bool
}

func (r *recordingSamples) InsertSample(ctx context.Context, sample *models.VoltageSample) error {
	if r.fail {
		return errStorageDown
	}
	r.mu.Lock()
	if r.events != nil {
		*r.events = append(*r.events, "insert-sample")
	}
	r.mu.Unlock()
	return r.MemoryStore.InsertSample(ctx, sample)
}

func (r *recordingSamples) RecentSamples(ctx context.Context, deviceID string, limit, offset int) ([]models.VoltageSample, error) {
	if r.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.fail {
		return nil, errStorageDown
	}
	return r.MemoryStore.RecentSamples(ctx, deviceID, limit, offset)
}

func (r *recordingSamples) SnapshotSamples(ctx context.Context, deviceID string) (*models.VoltageSample, models.Summary, error) {
	if r.stall {
		<-ctx.Done()
		return nil, models.Summary{}, ctx.Err()
	}
	if r.fail {
		return nil, models.Summary{}, errStorageDown
	}
	return r.MemoryStore.SnapshotSamples(ctx, deviceID)
}

// twoReadSamples hides the memory store's snapshot support.
type twoReadSamples struct {
	store *repository.MemoryStore
}

func (s twoReadSamples) InsertSample(ctx context.Context, sample *models.VoltageSample) error {
	return s.store.InsertSample(ctx, sample)
}

func (s twoReadSamples) RecentSamples(ctx context.Context, deviceID string, limit, offset int) ([]models.VoltageSample, error) {
	return s.store.RecentSamples(ctx, deviceID, limit, offset)
}

func (s twoReadSamples) SummarizeSamples(ctx context.Context, deviceID string, window int) (models.Summary, error) {
	return s.store.SummarizeSamples(ctx, deviceID, window)
}

// fakeCache is an in-memory LatestCache.
type fakeCache struct {
	mu             sync.Mutex
	latest         map[string]models.VoltageSample
	failStore      bool
	failInvalidate bool
	stores         int
	invalidated    []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{latest: make(map[string]models.VoltageSample)}
}

func (c *fakeCache) StoreLatest(_ context.Context, sample models.VoltageSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	if c.failStore {
		return errStorageDown
	}
	if cur, ok := c.latest[sample.DeviceID]; ok && sample.Before(cur) {
		return nil
	}
	c.latest[sample.DeviceID] = sample
	return nil
}

func (c *fakeCache) Latest(_ context.Context, deviceID string) (*models.VoltageSample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.latest[deviceID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *fakeCache) Invalidate(_ context.Context, deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failInvalidate {
		return errStorageDown
	}
	delete(c.latest, deviceID)
	c.invalidated = append(c.invalidated, deviceID)
	return nil
}
