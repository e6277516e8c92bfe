package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveStepDuration("SyncingObjects", 150*time.Millisecond)
	pr.IncStepResult("SyncingObjects", true)
	pr.IncStepResult("FoundUser", false)
	pr.AddObjectsFetched(40)
	pr.AddObjectsFetched(2)
	pr.AddObjectsDiscovered(7)
	pr.AddObjectsDiscovered(-1)
	pr.ObserveSyncDuration(3 * time.Second)
	pr.IncSyncOutcome(OutcomeSuccess)

	require.InDelta(t, 42, testutil.ToFloat64(pr.objectsFetched), 0.001)
	require.InDelta(t, 7, testutil.ToFloat64(pr.objectsDiscovered), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(pr.stepResults.WithLabelValues("FoundUser", "failed")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(pr.syncOutcomes.WithLabelValues("success")), 0.001)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}

func TestPrometheusRecorder_NilReceiver(t *testing.T) {
	var pr *PrometheusRecorder
	require.NotPanics(t, func() {
		pr.IncSyncOutcome(OutcomeFailed)
		pr.AddObjectsFetched(1)
		require.NoError(t, pr.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	})
	require.Nil(t, pr.Registry())
}

func TestPrometheusRecorder_WriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.AddObjectsFetched(3)
	pr.IncSyncOutcome(OutcomeCancelled)

	path := filepath.Join(t.TempDir(), "rdioexport.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "rdioexport_objects_fetched_total 3")
	require.Contains(t, string(data), `rdioexport_sync_outcomes_total{outcome="cancelled"} 1`)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	require.NotPanics(t, func() {
		r.ObserveStepDuration("Start", time.Second)
		r.IncStepResult("Start", true)
		r.AddObjectsFetched(1)
		r.AddObjectsDiscovered(1)
		r.ObserveSyncDuration(time.Second)
		r.IncSyncOutcome(OutcomeSuccess)
	})
}
