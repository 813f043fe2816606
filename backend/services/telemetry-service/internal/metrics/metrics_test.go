package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SampleIngested(true)
	m.SampleIngested(false)
	m.SampleIngested(true)
	if got := testutil.ToFloat64(m.samplesIngested.WithLabelValues("high")); got != 2 {
		t.Fatalf("expected 2 high samples, got %f", got)
	}

	m.DeviceEvent("heartbeat")
	m.DeviceEventFailed("sample")
	if got := testutil.ToFloat64(m.deviceEventErrors.WithLabelValues("sample")); got != 1 {
		t.Fatalf("expected 1 failed device event, got %f", got)
	}
	m.DeviceProvisioned()
	if got := testutil.ToFloat64(m.devicesProvisioned); got != 1 {
		t.Fatalf("expected 1 provisioned device, got %f", got)
	}

	m.StatusTransition("inactive", "liveness")
	if got := testutil.ToFloat64(m.statusTransitions.WithLabelValues("inactive", "liveness")); got != 1 {
		t.Fatalf("expected 1 transition, got %f", got)
	}

	m.MonitorPass(5 * time.Millisecond)
	if samples := testutil.CollectAndCount(m.monitorPass); samples != 1 {
		t.Fatalf("expected monitor histogram to be collected, got %d", samples)
	}

	m.ObserveRead("recent", time.Millisecond, "timeout")
	if got := testutil.ToFloat64(m.readErrors.WithLabelValues("recent", "timeout")); got != 1 {
		t.Fatalf("expected 1 read error, got %f", got)
	}

	m.TransportMessage("mqtt", "ok")
	if got := testutil.ToFloat64(m.transportMessages.WithLabelValues("mqtt", "ok")); got != 1 {
		t.Fatalf("expected 1 transport message, got %f", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.SampleIngested(true)
	m.DeviceEvent("register")
	m.DeviceEventFailed("sample")
	m.DeviceProvisioned()
	m.StatusTransition("active", "admin")
	m.MonitorPass(time.Second)
	m.MonitorFailure()
	m.ObserveRead("list", time.Second, "")
	m.TransportMessage("ws", "error")
}
