package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AdmissionChecksTotal       *prometheus.CounterVec
	AdmissionBlocksTotal       *prometheus.CounterVec
	AdmissionActiveBlocks      prometheus.Gauge
	AdmissionResetsTotal       prometheus.Counter
	PolicyRefreshesTotal       *prometheus.CounterVec
	JanitorRunsTotal           *prometheus.CounterVec
	JanitorEvictedRecordsTotal prometheus.Counter
	JanitorDurationSeconds     prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		AdmissionChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_admission_checks_total",
			Help: "Total admission checks by endpoint class and outcome",
		}, []string{"class", "outcome"}),
		AdmissionBlocksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_admission_blocks_total",
			Help: "Total transitions into the blocked state by endpoint class",
		}, []string{"class"}),
		AdmissionActiveBlocks: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_admission_active_blocks",
			Help: "Blocked keys observed by the most recent janitor sweep",
		}),
		AdmissionResetsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bastion_admission_resets_total",
			Help: "Total administrative resets of counter records",
		}),
		PolicyRefreshesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_policy_refreshes_total",
			Help: "Policy cache refreshes by result (store, fallback, default)",
		}, []string{"result"}),
		JanitorRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_janitor_runs_total",
			Help: "Total janitor sweeps by status",
		}, []string{"status"}),
		JanitorEvictedRecordsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bastion_janitor_evicted_records_total",
			Help: "Total counter records evicted by the janitor",
		}),
		JanitorDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "bastion_janitor_duration_seconds",
			Help: "Duration of janitor sweeps in seconds",
		}),
	}
}

// Helpers are nil-safe so callers can run without metrics wired.

func (m *Metrics) ObserveCheck(class, outcome string) {
	if m == nil {
		return
	}
	m.AdmissionChecksTotal.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) ObserveBlock(class string) {
	if m == nil {
		return
	}
	m.AdmissionBlocksTotal.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveReset() {
	if m == nil {
		return
	}
	m.AdmissionResetsTotal.Inc()
}

func (m *Metrics) ObservePolicyRefresh(result string) {
	if m == nil {
		return
	}
	m.PolicyRefreshesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveJanitorRun(status string, evicted, activeBlocks int, seconds float64) {
	if m == nil {
		return
	}
	m.JanitorRunsTotal.WithLabelValues(status).Inc()
	m.JanitorEvictedRecordsTotal.Add(float64(evicted))
	m.AdmissionActiveBlocks.Set(float64(activeBlocks))
	m.JanitorDurationSeconds.Observe(seconds)
}
