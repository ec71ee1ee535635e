// Package metrics holds the Prometheus instruments of the control plane.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all control plane metrics.
type Registry struct {
	// Jamming controller
	JamCommands   *prometheus.CounterVec
	JamRejections *prometheus.CounterVec
	JamActive     prometheus.Gauge
	JamPending    prometheus.Gauge

	// Traffic ingestion
	TrafficPackets      *prometheus.CounterVec
	TrafficBytes        prometheus.Counter
	TrafficSpeed        prometheus.Gauge
	TrafficBuffer       *prometheus.GaugeVec
	TrafficDecodeErrors prometheus.Counter
	TrafficActive       prometheus.Gauge

	// API
	WSClients   prometheus.Gauge
	APIRequests *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry(prometheus.DefaultRegisterer)
	})
	return registry
}

func newRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	r := &Registry{}

	r.JamCommands = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "netaudit_jam_commands_total",
		Help: "Jam commands issued to the backend by outcome",
	}, []string{"command", "result"})

	r.JamRejections = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "netaudit_jam_rejections_total",
		Help: "Toggle requests rejected before any command was issued",
	}, []string{"reason"})

	r.JamActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "netaudit_jam_active_targets",
		Help: "Targets currently marked jammed",
	})

	r.JamPending = factory.NewGauge(prometheus.GaugeOpts{
		Name: "netaudit_jam_pending_targets",
		Help: "Targets with a command in flight",
	})

	r.TrafficPackets = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "netaudit_traffic_packets_total",
		Help: "Traffic events ingested",
	}, []string{"kind"})

	r.TrafficBytes = factory.NewCounter(prometheus.CounterOpts{
		Name: "netaudit_traffic_bytes_total",
		Help: "Sum of ingested packet lengths",
	})

	r.TrafficSpeed = factory.NewGauge(prometheus.GaugeOpts{
		Name: "netaudit_traffic_speed_bytes_per_second",
		Help: "Throughput estimate published at the last flush",
	})

	r.TrafficBuffer = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netaudit_traffic_buffer_records",
		Help: "Records held in each traffic ring buffer",
	}, []string{"buffer"})

	r.TrafficDecodeErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: "netaudit_traffic_decode_errors_total",
		Help: "Traffic events dropped because the payload could not be decoded",
	})

	r.TrafficActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "netaudit_traffic_monitoring_active",
		Help: "1 while a monitoring session is active",
	})

	r.WSClients = factory.NewGauge(prometheus.GaugeOpts{
		Name: "netaudit_ws_clients",
		Help: "Connected WebSocket clients",
	})

	r.APIRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "netaudit_api_requests_total",
		Help: "API requests by route and status code",
	}, []string{"route", "code"})

	return r
}
