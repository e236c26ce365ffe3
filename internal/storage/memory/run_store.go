package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/causas-crawler/internal/runs"
)

// RunStore is an in-memory runs.Repository for development and tests.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]runs.Run
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]runs.Run)}
}

// StartRun records a running run unless one with id already exists.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, nationalID, role string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[id]; exists {
		return nil
	}
	s.runs[id] = runs.Run{
		ID:         id,
		NationalID: nationalID,
		Role:       role,
		StartedAt:  startedAt.UTC(),
		Status:     runs.StatusRunning,
	}
	return nil
}

// AddCounts increments a run's counters. Unknown runs are ignored, matching
// an UPDATE that touches no rows.
func (s *RunStore) AddCounts(_ context.Context, id uuid.UUID, found, ok, failed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, exists := s.runs[id]
	if !exists {
		return nil
	}
	run.CasesFound += found
	run.CasesOK += ok
	run.CasesFailed += failed
	s.runs[id] = run
	return nil
}

// CompleteRun sets the final status of a run.
func (s *RunStore) CompleteRun(_ context.Context, id uuid.UUID, c runs.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, exists := s.runs[id]
	if !exists {
		return nil
	}
	finished := c.FinishedAt.UTC()
	run.FinishedAt = &finished
	run.Status = c.Status
	if c.ErrMsg != nil {
		msg := *c.ErrMsg
		run.ErrorMessage = &msg
	}
	s.runs[id] = run
	return nil
}

// GetRun returns a copy of the run.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return runs.Run{}, runs.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally for one litigant.
func (s *RunStore) ListRuns(_ context.Context, nationalID string, limit, offset int) ([]runs.Run, error) {
	s.mu.RLock()
	out := make([]runs.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if nationalID == "" || run.NationalID == nationalID {
			out = append(out, run)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if offset >= len(out) {
		return []runs.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
