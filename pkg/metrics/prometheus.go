package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records engine metrics into its own Prometheus registry.
// A nil *Recorder is valid and records nothing.
// ⭐ SSOT: 메트릭 이름은 여기서만 정의
type Recorder struct {
	registry *prometheus.Registry

	ordersTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	exitsTotal      *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
	selected        prometheus.Gauge
	equity          prometheus.Gauge
	cacheEntries    prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ordersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jbquant_orders_submitted_total",
				Help: "Total number of orders submitted to the market",
			},
			[]string{"side", "executor"},
		),
		rejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jbquant_order_rejections_total",
				Help: "Orders blocked before submission, by reason",
			},
			[]string{"reason"},
		),
		exitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jbquant_exits_total",
				Help: "Exit signals raised by the risk manager",
			},
			[]string{"reason"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jbquant_errors_total",
				Help: "Total number of recoverable errors encountered",
			},
			[]string{"type"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jbquant_phase_duration_seconds",
				Help:    "Duration of orchestrator phases in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		selected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jbquant_selected_instruments",
			Help: "Number of instruments selected at the last market open",
		}),
		equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jbquant_total_assets",
			Help: "Cash plus market value at the last daily snapshot",
		}),
		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jbquant_series_cache_entries",
			Help: "Entries held in the price series cache",
		}),
	}
}

// Handler exposes the recorder's registry for scraping.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (tests, custom collectors).
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordOrder records a submitted order.
func (r *Recorder) RecordOrder(side, executor string) {
	if r == nil {
		return
	}
	r.ordersTotal.WithLabelValues(side, executor).Inc()
}

// RecordRejection records an order blocked before submission.
func (r *Recorder) RecordRejection(reason string) {
	if r == nil {
		return
	}
	r.rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordExit records a stop-loss / stop-profit / trailing-stop trigger.
func (r *Recorder) RecordExit(reason string) {
	if r == nil {
		return
	}
	r.exitsTotal.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordPhase records phase latency in seconds.
func (r *Recorder) RecordPhase(phase string, seconds float64) {
	if r == nil {
		return
	}
	r.phaseDuration.WithLabelValues(phase).Observe(seconds)
}

// SetSelected sets the size of today's selection.
func (r *Recorder) SetSelected(n int) {
	if r == nil {
		return
	}
	r.selected.Set(float64(n))
}

// SetEquity sets total assets from the daily snapshot.
func (r *Recorder) SetEquity(v float64) {
	if r == nil {
		return
	}
	r.equity.Set(v)
}

// SetCacheEntries sets the series cache size.
func (r *Recorder) SetCacheEntries(n int) {
	if r == nil {
		return
	}
	r.cacheEntries.Set(float64(n))
}
