package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/causas-crawler/internal/runs"
)

var _ runs.Repository = (*RunStore)(nil)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	id := uuid.New()
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, store.StartRun(ctx, id, "1234", "plaintiff", start))
	require.NoError(t, store.StartRun(ctx, id, "other", "defendant", start.Add(time.Hour)))
	require.NoError(t, store.AddCounts(ctx, id, 3, 0, 0))
	require.NoError(t, store.AddCounts(ctx, id, 0, 2, 1))

	msg := "case 5678: boom"
	require.NoError(t, store.CompleteRun(ctx, id, runs.Completion{FinishedAt: start.Add(time.Minute), Status: runs.StatusSuccess, ErrMsg: &msg}))
	msg = "mutated"

	run, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1234", run.NationalID)
	assert.Equal(t, runs.StatusSuccess, run.Status)
	assert.EqualValues(t, 3, run.CasesFound)
	assert.EqualValues(t, 2, run.CasesOK)
	assert.EqualValues(t, 1, run.CasesFailed)
	require.NotNil(t, run.FinishedAt)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "case 5678: boom", *run.ErrorMessage)

	_, err = store.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, runs.ErrNotFound)
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	require.NoError(t, store.StartRun(ctx, ids[0], "1234", "plaintiff", base))
	require.NoError(t, store.StartRun(ctx, ids[1], "1234", "defendant", base.Add(time.Hour)))
	require.NoError(t, store.StartRun(ctx, ids[2], "9999", "plaintiff", base.Add(2*time.Hour)))

	all, err := store.ListRuns(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	mine, err := store.ListRuns(ctx, "1234", 1, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ids[1], mine[0].ID)

	page, err := store.ListRuns(ctx, "1234", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, page)
}
