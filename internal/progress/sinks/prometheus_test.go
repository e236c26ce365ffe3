package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/causas-crawler/internal/progress"
)

func TestPrometheusSinkRecordsRunLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageLitigantStart, NationalID: "1234", Role: "plaintiff"},
		{RunID: runID, TS: now, Stage: progress.StageLitigantStart, NationalID: "1234", Role: "plaintiff"},
		{RunID: runID, TS: now, Stage: progress.StageCasesFetched, Count: 3},
		{RunID: runID, TS: now, Stage: progress.StageCasePersisted, CaseID: "0001"},
		{RunID: runID, TS: now, Stage: progress.StageCasePersisted, CaseID: "0002"},
		{RunID: runID, TS: now, Stage: progress.StageCaseFailed, CaseID: "0003"},
		{RunID: runID, TS: now.Add(15 * time.Second), Stage: progress.StageLitigantDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 2.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("plaintiff")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsRunning), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(sink.casesFound), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.caseResults.WithLabelValues("ok")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.caseResults.WithLabelValues("error")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runRuntime, "causas_run_runtime_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
