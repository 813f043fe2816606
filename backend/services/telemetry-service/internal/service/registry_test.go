package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"voltwatch/backend/services/telemetry-service/internal/models"
)

func TestRegisterCreatesDeviceWithDefaults(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	device, err := e.registry.Register(ctx, "  DEV001 ", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if device.DeviceID != "DEV001" {
		t.Fatalf("expected trimmed id, got %q", device.DeviceID)
	}
	if device.Name != "Device DEV001" || device.Location != DefaultLocation {
		t.Fatalf("unexpected defaults: name=%q location=%q", device.Name, device.Location)
	}
	if device.Status != models.StatusActive {
		t.Fatalf("expected active, got %s", device.Status)
	}
	if !device.LastSeen.Equal(e.clock.Now()) {
		t.Fatalf("expected lastSeen %s, got %s", e.clock.Now(), device.LastSeen)
	}
}

func TestRegisterIsIdempotentAndKeepsMetadata(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.registry.Register(ctx, "DEV001", "Main Power Monitor", "Building A - Floor 1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e.clock.Advance(time.Minute)
	if _, err := e.registry.Register(ctx, "DEV001", "Main Power Monitor", "Building A - Floor 1"); err != nil {
		t.Fatalf("Register again: %v", err)
	}
	e.clock.Advance(time.Minute)
	device, err := e.registry.Register(ctx, "DEV001", "", "")
	if err != nil {
		t.Fatalf("Register without metadata: %v", err)
	}

	if device.Name != "Main Power Monitor" || device.Location != "Building A - Floor 1" {
		t.Fatalf("metadata was overwritten: %+v", device)
	}
	if !device.LastSeen.Equal(e.clock.Now()) {
		t.Fatalf("lastSeen not refreshed: %s", device.LastSeen)
	}

	devices, err := e.registry.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected one device, got %d", len(devices))
	}
}

func TestRegisterReplacesProvidedMetadata(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.registry.Register(ctx, "DEV002", "Generator", "Basement"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	device, err := e.registry.Register(ctx, "DEV002", "", "Building A - Basement")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if device.Name != "Generator" || device.Location != "Building A - Basement" {
		t.Fatalf("unexpected metadata: %+v", device)
	}
}

func TestHeartbeatProvisionsAndReactivates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	device, err := e.registry.Heartbeat(ctx, "DEV003")
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if device.Name != DefaultDeviceName("DEV003") || device.Status != models.StatusActive {
		t.Fatalf("unexpected provisioned device: %+v", device)
	}

	if _, err := e.registry.SetStatus(ctx, "DEV003", "inactive"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	e.clock.Advance(10 * time.Second)
	device, err = e.registry.Heartbeat(ctx, "DEV003")
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if device.Status != models.StatusActive {
		t.Fatalf("expected heartbeat to reactivate, got %s", device.Status)
	}
	if !device.LastSeen.Equal(e.clock.Now()) {
		t.Fatalf("lastSeen not refreshed")
	}
}

func TestRegistryRejectsInvalidDeviceID(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"", "   ", strings.Repeat("x", maxDeviceIDLength+1)} {
		if _, err := e.registry.Heartbeat(ctx, id); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("id %q: expected ErrInvalidInput, got %v", id, err)
		}
	}
	devices, _ := e.registry.List(ctx)
	if len(devices) != 0 {
		t.Fatalf("invalid ids must not create devices, got %d", len(devices))
	}
}

func TestSetStatus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.registry.Register(ctx, "DEV001", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	seen := e.clock.Now()
	e.clock.Advance(time.Minute)

	device, err := e.registry.SetStatus(ctx, "DEV001", "INACTIVE")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if device.Status != models.StatusInactive {
		t.Fatalf("expected inactive, got %s", device.Status)
	}
	if !device.LastSeen.Equal(seen) {
		t.Fatalf("admin override must not touch lastSeen")
	}

	if _, err := e.registry.SetStatus(ctx, "DEV001", "broken"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := e.registry.SetStatus(ctx, "UNKNOWN", "active"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.registry.Get(ctx, "UNKNOWN"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetStatus must not provision unknown devices, got %v", err)
	}
}

func TestDemoteRespectsCutoff(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.registry.Register(ctx, "DEV001", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	seen := e.clock.Now()

	demoted, err := e.registry.Demote(ctx, "DEV001", seen)
	if err != nil || demoted {
		t.Fatalf("device seen at cutoff must stay active: demoted=%v err=%v", demoted, err)
	}
	demoted, err = e.registry.Demote(ctx, "DEV001", seen.Add(time.Nanosecond))
	if err != nil || !demoted {
		t.Fatalf("expected demotion: demoted=%v err=%v", demoted, err)
	}
	demoted, err = e.registry.Demote(ctx, "DEV001", seen.Add(time.Hour))
	if err != nil || demoted {
		t.Fatalf("inactive device must not be demoted twice: demoted=%v err=%v", demoted, err)
	}
}

func TestConcurrentTouchesDoNotLoseDevices(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	const devices = 20
	const perDevice = 25
	var wg sync.WaitGroup
	errs := make(chan error, devices*perDevice)
	for d := 0; d < devices; d++ {
		for i := 0; i < perDevice; i++ {
			wg.Add(1)
			go func(d, i int) {
				defer wg.Done()
				id := fmt.Sprintf("DEV%03d", d)
				var err error
				if i%2 == 0 {
					_, err = e.registry.Heartbeat(ctx, id)
				} else {
					_, err = e.registry.Register(ctx, id, "Monitor "+id, "")
				}
				if err != nil {
					errs <- err
				}
			}(d, i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("touch failed: %v", err)
	}

	list, err := e.registry.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != devices {
		t.Fatalf("expected %d devices, got %d", devices, len(list))
	}
	for _, device := range list {
		if device.Name != "Monitor "+device.DeviceID {
			t.Fatalf("name lost for %s: %q", device.DeviceID, device.Name)
		}
		if device.Status != models.StatusActive {
			t.Fatalf("expected active, got %s", device.Status)
		}
	}
}

func TestHeartbeatRacingDemoteEndsActive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("RACE%02d", i)
		if _, err := e.registry.Register(ctx, id, "", ""); err != nil {
			t.Fatalf("Register: %v", err)
		}
		cutoff := e.clock.Now().Add(time.Second)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = e.registry.Demote(ctx, id, cutoff)
		}()
		go func() {
			defer wg.Done()
			e.clock.Advance(2 * time.Second)
			_, _ = e.registry.Heartbeat(ctx, id)
		}()
		wg.Wait()

		device, err := e.registry.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if device.Status != models.StatusActive {
			t.Fatalf("%s: heartbeat was overwritten by demotion", id)
		}
	}
}

func TestDeviceLocksHonourContext(t *testing.T) {
	locks := newDeviceLocks()

	unlock, err := locks.lock(context.Background(), "DEV001")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locks.lock(ctx, "DEV001"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	other, err := locks.lock(context.Background(), "DEV002")
	if err != nil {
		t.Fatalf("different devices must not contend: %v", err)
	}
	other()
	unlock()

	again, err := locks.lock(context.Background(), "DEV001")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}
