// Package metrics exposes Prometheus counters and gauges for the
// decode pipeline: STMx emission counts, output buffer depth, and
// decoder-loop pacing, registered against a private registry so tests
// can spin up independent instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the player registers. Handlers on a
// nil *Metrics are no-ops, so components can hold an unconditional
// reference even when metrics are disabled.
type Metrics struct {
	registry *prometheus.Registry

	statusEmissions *prometheus.CounterVec
	bufferDepth     prometheus.Gauge
	decoderSleeps   prometheus.Counter
	trackStarts     prometheus.Counter
	decodeErrors    *prometheus.CounterVec
}

// New registers all collectors against a fresh registry and returns the
// bundle along with an http.Handler for /metrics.
func New() (*Metrics, http.Handler) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		statusEmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slimclient",
			Name:      "status_emissions_total",
			Help:      "Count of SlimProto STAT frames emitted, by status code.",
		}, []string{"code"}),
		bufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slimclient",
			Name:      "output_buffer_bytes",
			Help:      "Queued plus available-for-playback bytes in the audio output buffer.",
		}),
		decoderSleeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slimclient",
			Name:      "decoder_pacer_sleeps_total",
			Help:      "Count of times the decode loop slept for pacing or backpressure.",
		}),
		trackStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slimclient",
			Name:      "track_starts_total",
			Help:      "Count of tracks that started playing (STMs emissions).",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slimclient",
			Name:      "decode_errors_total",
			Help:      "Count of decode errors, by error code.",
		}, []string{"code"}),
	}

	reg.MustRegister(m.statusEmissions, m.bufferDepth, m.decoderSleeps, m.trackStarts, m.decodeErrors)
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Metrics) ObserveStatusEmission(code string) {
	if m == nil {
		return
	}
	m.statusEmissions.WithLabelValues(code).Inc()
}

func (m *Metrics) SetBufferDepth(bytes uint64) {
	if m == nil {
		return
	}
	m.bufferDepth.Set(float64(bytes))
}

func (m *Metrics) ObserveDecoderSleep() {
	if m == nil {
		return
	}
	m.decoderSleeps.Inc()
}

func (m *Metrics) ObserveTrackStart() {
	if m == nil {
		return
	}
	m.trackStarts.Inc()
}

func (m *Metrics) ObserveDecodeError(code string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(code).Inc()
}
