// Package metrics records sync throughput and outcomes.
//
// Components take a Recorder and default to NoopRecorder, so metrics stay
// optional. PrometheusRecorder backs the recorder with client_golang
// collectors that can be written to a node_exporter textfile after a run.
package metrics

import "time"

// Outcome enumerates how a user sync ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Recorder defines the hooks the sync controller reports to.
type Recorder interface {
	ObserveStepDuration(state string, d time.Duration)
	IncStepResult(state string, success bool)
	AddObjectsFetched(n int)
	AddObjectsDiscovered(n int)
	ObserveSyncDuration(d time.Duration)
	IncSyncOutcome(outcome Outcome)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) IncStepResult(string, bool)                {}
func (NoopRecorder) AddObjectsFetched(int)                     {}
func (NoopRecorder) AddObjectsDiscovered(int)                  {}
func (NoopRecorder) ObserveSyncDuration(time.Duration)         {}
func (NoopRecorder) IncSyncOutcome(Outcome)                    {}
