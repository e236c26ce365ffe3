// Package runs declares the ledger of crawl-and-persist runs.
package runs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Status mirrors the crawl_runs.status column.
type Status string

// Run statuses persisted in crawl_runs.status.
const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Run is one crawl-and-persist invocation for a litigant.
type Run struct {
	ID          uuid.UUID  `json:"id"`
	NationalID  string     `json:"national_id"`
	Role        string     `json:"role"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      Status     `json:"status"`
	CasesFound  int64      `json:"cases_found"`
	CasesOK     int64      `json:"cases_ok"`
	CasesFailed int64      `json:"cases_failed"`
	// ErrorMessage holds the crawl failure, when there was one.
	ErrorMessage *string `json:"error_message,omitempty"`
}

// Completion carries the final state of a run.
type Completion struct {
	FinishedAt time.Time
	Status     Status
	ErrMsg     *string
}

// Repository persists run progress.
type Repository interface {
	// StartRun inserts the run, or is a no-op if it already exists.
	StartRun(ctx context.Context, id uuid.UUID, nationalID, role string, startedAt time.Time) error
	// AddCounts applies case deltas to a run.
	AddCounts(ctx context.Context, id uuid.UUID, found, ok, failed int64) error
	// CompleteRun marks the run finished.
	CompleteRun(ctx context.Context, id uuid.UUID, c Completion) error
	// GetRun loads a run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs, newest first, optionally for one litigant.
	ListRuns(ctx context.Context, nationalID string, limit, offset int) ([]Run, error)
}
