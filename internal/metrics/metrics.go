// Package metrics exposes Prometheus instrumentation for the live-session flow
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Access check outcomes
const (
	OutcomeGranted = "granted"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
)

// Metrics groups every collector the application records into.
// All methods are safe on a nil receiver.
type Metrics struct {
	AccessChecks         *prometheus.CounterVec
	StaleAccessResponses prometheus.Counter
	RoomMounts           prometheus.Counter
	RoomTeardowns        prometheus.Counter
	RoomFailures         *prometheus.CounterVec
	ActiveRooms          prometheus.Gauge
	PanelMutations       *prometheus.CounterVec
	BackendRequests      *prometheus.HistogramVec
}

var (
	defaultOnce     sync.Once
	defaultInstance *Metrics
)

// Default returns the process-wide metrics registered on the default registry
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInstance = New(prometheus.DefaultRegisterer)
	})
	return defaultInstance
}

// New registers a fresh set of collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AccessChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liveroom_access_checks_total",
			Help: "Live session access checks by outcome",
		}, []string{"outcome"}),
		StaleAccessResponses: factory.NewCounter(prometheus.CounterOpts{
			Name: "liveroom_access_stale_responses_total",
			Help: "Access check responses discarded because a newer check was issued",
		}),
		RoomMounts: factory.NewCounter(prometheus.CounterOpts{
			Name: "liveroom_room_mounts_total",
			Help: "Video room widget instances created",
		}),
		RoomTeardowns: factory.NewCounter(prometheus.CounterOpts{
			Name: "liveroom_room_teardowns_total",
			Help: "Video room widget instances torn down",
		}),
		RoomFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liveroom_room_failures_total",
			Help: "Video room initialization failures by stage",
		}, []string{"stage"}),
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "liveroom_active_rooms",
			Help: "Video room widget instances currently alive",
		}),
		PanelMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "liveroom_panel_mutations_total",
			Help: "Organizer session mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		BackendRequests: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liveroom_backend_request_duration_seconds",
			Help:    "Latency of conference backend requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// RecordAccessCheck counts an access check outcome
func (m *Metrics) RecordAccessCheck(outcome string) {
	if m == nil || m.AccessChecks == nil {
		return
	}
	m.AccessChecks.WithLabelValues(outcome).Inc()
}

// RecordStaleAccessResponse counts a discarded out-of-order response
func (m *Metrics) RecordStaleAccessResponse() {
	if m == nil || m.StaleAccessResponses == nil {
		return
	}
	m.StaleAccessResponses.Inc()
}

// RoomMounted records a created widget instance
func (m *Metrics) RoomMounted() {
	if m == nil || m.RoomMounts == nil {
		return
	}
	m.RoomMounts.Inc()
	m.ActiveRooms.Inc()
}

// RoomTornDown records a destroyed widget instance
func (m *Metrics) RoomTornDown() {
	if m == nil || m.RoomTeardowns == nil {
		return
	}
	m.RoomTeardowns.Inc()
	m.ActiveRooms.Dec()
}

// RecordRoomFailure counts an initialization failure at the given stage
func (m *Metrics) RecordRoomFailure(stage string) {
	if m == nil || m.RoomFailures == nil {
		return
	}
	m.RoomFailures.WithLabelValues(stage).Inc()
}

// RecordPanelMutation counts an organizer mutation
func (m *Metrics) RecordPanelMutation(operation string, err error) {
	if m == nil || m.PanelMutations == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.PanelMutations.WithLabelValues(operation, outcome).Inc()
}

// ObserveBackendRequest records the latency of one backend call.
// status is 0 when no response was received.
func (m *Metrics) ObserveBackendRequest(method string, status int, elapsed time.Duration) {
	if m == nil || m.BackendRequests == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.BackendRequests.WithLabelValues(method, label).Observe(elapsed.Seconds())
}
