package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. All methods are safe on a nil receiver
// so components can run without instrumentation.
type Metrics struct {
	samplesIngested    *prometheus.CounterVec
	deviceEvents       *prometheus.CounterVec
	deviceEventErrors  *prometheus.CounterVec
	devicesProvisioned prometheus.Counter
	statusTransitions  *prometheus.CounterVec
	monitorPass        prometheus.Histogram
	monitorFailures    prometheus.Counter
	readLatency        *prometheus.HistogramVec
	readErrors         *prometheus.CounterVec
	transportMessages  *prometheus.CounterVec
}

// New creates collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samplesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltwatch_samples_ingested_total",
			Help: "Voltage samples persisted, by classification.",
		}, []string{"classification"}),
		deviceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltwatch_device_events_total",
			Help: "Device activity events applied to the registry, by source.",
		}, []string{"source"}),
		deviceEventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltwatch_device_event_failures_total",
			Help: "Device activity events that could not be applied to the registry, by source.",
		}, []string{"source"}),
		devicesProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltwatch_devices_provisioned_total",
			Help: "Devices created implicitly or by registration.",
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltwatch_status_transitions_total",
			Help: "Device status changes, by target status and cause.",
		}, []string{"status", "cause"}),
		monitorPass: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voltwatch_liveness_pass_seconds",
			Help:    "Duration of liveness monitor passes.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		monitorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voltwatch_liveness_device_failures_total",
			Help: "Per-device failures during liveness passes, retried next interval.",
		}),
		readLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voltwatch_read_seconds",
			Help:    "Latency of query operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltwatch_read_errors_total",
			Help: "Failed query operations, by operation and error kind.",
		}, []string{"op", "kind"}),
		transportMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voltwatch_transport_messages_total",
			Help: "Device messages received per transport and outcome.",
		}, []string{"transport", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.samplesIngested,
			m.deviceEvents,
			m.deviceEventErrors,
			m.devicesProvisioned,
			m.statusTransitions,
			m.monitorPass,
			m.monitorFailures,
			m.readLatency,
			m.readErrors,
			m.transportMessages,
		)
	}
	return m
}

// SampleIngested counts a persisted sample.
func (m *Metrics) SampleIngested(high bool) {
	if m == nil {
		return
	}
	label := "normal"
	if high {
		label = "high"
	}
	m.samplesIngested.WithLabelValues(label).Inc()
}

// DeviceEvent counts a registry touch from source (register, heartbeat, sample).
func (m *Metrics) DeviceEvent(source string) {
	if m == nil {
		return
	}
	m.deviceEvents.WithLabelValues(source).Inc()
}

// DeviceEventFailed counts an activity event from source that left the device untouched.
func (m *Metrics) DeviceEventFailed(source string) {
	if m == nil {
		return
	}
	m.deviceEventErrors.WithLabelValues(source).Inc()
}

// DeviceProvisioned counts a newly created device.
func (m *Metrics) DeviceProvisioned() {
	if m == nil {
		return
	}
	m.devicesProvisioned.Inc()
}

// StatusTransition counts a status change.
func (m *Metrics) StatusTransition(status, cause string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status, cause).Inc()
}

// MonitorPass records the duration of one liveness pass.
func (m *Metrics) MonitorPass(d time.Duration) {
	if m == nil {
		return
	}
	m.monitorPass.Observe(d.Seconds())
}

// MonitorFailure counts a device the monitor could not process.
func (m *Metrics) MonitorFailure() {
	if m == nil {
		return
	}
	m.monitorFailures.Inc()
}

// ObserveRead records latency for op and, when kind is non-empty, an error of that kind.
func (m *Metrics) ObserveRead(op string, d time.Duration, kind string) {
	if m == nil {
		return
	}
	m.readLatency.WithLabelValues(op).Observe(d.Seconds())
	if kind != "" {
		m.readErrors.WithLabelValues(op, kind).Inc()
	}
}

// TransportMessage counts a device message received over transport.
func (m *Metrics) TransportMessage(transport, outcome string) {
	if m == nil {
		return
	}
	m.transportMessages.WithLabelValues(transport, outcome).Inc()
}
