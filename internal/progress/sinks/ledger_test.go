package sinks

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/causas-crawler/internal/progress"
	"github.com/JakeFAU/causas-crawler/internal/runs"
)

func TestLedgerSinkRecordsRun(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewLedgerSink(repo, nil)
	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageLitigantStart, NationalID: "1234", Role: "defendant"},
		{RunID: runID, TS: now, Stage: progress.StageCasesFetched, Count: 3},
		{RunID: runID, TS: now, Stage: progress.StageCasePersisted, CaseID: "0001"},
		{RunID: runID, TS: now, Stage: progress.StageCaseFailed, CaseID: "0002"},
		{RunID: runID, TS: now, Stage: progress.StageCasePersisted, CaseID: "0003"},
		{RunID: runID, TS: now.Add(time.Second), Stage: progress.StageLitigantDone},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []string{"start 1234 defendant", "counts 3/2/1", "complete success"}, repo.calls)
}

func TestLedgerSinkFlushesCountsOfOpenRuns(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewLedgerSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageCasePersisted, CaseID: "0001"},
	}))
	require.Equal(t, []string{"counts 0/1/0"}, repo.calls)
}

func TestLedgerSinkRecordsErrorNote(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewLedgerSink(repo, nil)
	runID := progress.UUIDToBytes(uuid.New())

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageLitigantError, Note: "upstream down"},
	}))
	require.Equal(t, []string{"complete error: upstream down"}, repo.calls)
}

func TestLedgerSinkSurfacesRepositoryErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewLedgerSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), Stage: progress.StageLitigantStart, TS: time.Now(), NationalID: "1"},
	})
	require.Error(t, err)
}

type fakeRunRepo struct {
	fail  bool
	calls []string
}

var errRepo = errors.New("repo down")

func (f *fakeRunRepo) StartRun(_ context.Context, _ uuid.UUID, nationalID, role string, _ time.Time) error {
	if f.fail {
		return errRepo
	}
	f.calls = append(f.calls, "start "+nationalID+" "+role)
	return nil
}

func (f *fakeRunRepo) AddCounts(_ context.Context, _ uuid.UUID, found, ok, failed int64) error {
	if f.fail {
		return errRepo
	}
	f.calls = append(f.calls, "counts "+itoa(found)+"/"+itoa(ok)+"/"+itoa(failed))
	return nil
}

func (f *fakeRunRepo) CompleteRun(_ context.Context, _ uuid.UUID, c runs.Completion) error {
	if f.fail {
		return errRepo
	}
	call := "complete " + string(c.Status)
	if c.ErrMsg != nil {
		call += ": " + *c.ErrMsg
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (runs.Run, error) {
	return runs.Run{}, runs.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(context.Context, string, int, int) ([]runs.Run, error) {
	return nil, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
