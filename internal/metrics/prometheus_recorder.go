package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "rdioexport"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg               *prom.Registry
	stepDuration      *prom.HistogramVec
	stepResults       *prom.CounterVec
	objectsFetched    prom.Counter
	objectsDiscovered prom.Counter
	syncDuration      prom.Histogram
	syncOutcomes      *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		stepDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of individual sync steps by target state",
			Buckets:   prom.DefBuckets,
		}, []string{"state"}),
		stepResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Sync step results by target state",
		}, []string{"state", "result"}),
		objectsFetched: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "objects_fetched_total",
			Help:      "Objects requested from the remote service",
		}),
		objectsDiscovered: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "objects_discovered_total",
			Help:      "Keys found in fetched objects and queued for fetching",
		}),
		syncDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Total duration of one user sync",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		}),
		syncOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "sync_outcomes_total",
			Help:      "User syncs by final outcome",
		}, []string{"outcome"}),
	}
	reg.MustRegister(pr.stepDuration, pr.stepResults, pr.objectsFetched,
		pr.objectsDiscovered, pr.syncDuration, pr.syncOutcomes)
	return pr
}

// Registry returns the registry the collectors live on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	if p == nil {
		return nil
	}
	return p.reg
}

func (p *PrometheusRecorder) ObserveStepDuration(state string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(state).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(state string, success bool) {
	if p == nil || p.stepResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.stepResults.WithLabelValues(state, res).Inc()
}

func (p *PrometheusRecorder) AddObjectsFetched(n int) {
	if p == nil || p.objectsFetched == nil || n <= 0 {
		return
	}
	p.objectsFetched.Add(float64(n))
}

func (p *PrometheusRecorder) AddObjectsDiscovered(n int) {
	if p == nil || p.objectsDiscovered == nil || n <= 0 {
		return
	}
	p.objectsDiscovered.Add(float64(n))
}

func (p *PrometheusRecorder) ObserveSyncDuration(d time.Duration) {
	if p == nil || p.syncDuration == nil {
		return
	}
	p.syncDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSyncOutcome(outcome Outcome) {
	if p == nil || p.syncOutcomes == nil {
		return
	}
	p.syncOutcomes.WithLabelValues(string(outcome)).Inc()
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, for pickup by node_exporter's textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if p == nil {
		return nil
	}
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
