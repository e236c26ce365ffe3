package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/causas-crawler/internal/progress"
	"github.com/JakeFAU/causas-crawler/internal/runs"
)

// LedgerSink records runs in a runs.Repository. Case counters are collapsed
// per run within a batch to reduce writes.
type LedgerSink struct {
	repo   runs.Repository
	logger *zap.Logger
}

// NewLedgerSink constructs a LedgerSink for repo.
func NewLedgerSink(repo runs.Repository, logger *zap.Logger) *LedgerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerSink{repo: repo, logger: logger}
}

type runCounts struct {
	found, ok, failed int64
}

// Consume applies batch to the repository in event order. Counters are
// flushed before a run is completed.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]*runCounts)
	var order []uuid.UUID
	counts := func(id uuid.UUID) *runCounts {
		c, ok := pending[id]
		if !ok {
			c = &runCounts{}
			pending[id] = c
			order = append(order, id)
		}
		return c
	}
	flush := func(id uuid.UUID) error {
		c, ok := pending[id]
		if !ok || (c.found == 0 && c.ok == 0 && c.failed == 0) {
			return nil
		}
		delete(pending, id)
		if err := s.repo.AddCounts(ctx, id, c.found, c.ok, c.failed); err != nil {
			return fmt.Errorf("add run counts: %w", err)
		}
		return nil
	}

	for _, evt := range batch {
		id := evt.RunUUID()
		switch evt.Stage {
		case progress.StageLitigantStart:
			if err := s.repo.StartRun(ctx, id, evt.NationalID, evt.Role, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageCasesFetched:
			counts(id).found += evt.Count
		case progress.StageCasePersisted:
			counts(id).ok++
		case progress.StageCaseFailed:
			counts(id).failed++
		case progress.StageLitigantDone, progress.StageLitigantError:
			if err := flush(id); err != nil {
				return err
			}
			completion := runs.Completion{FinishedAt: evt.TS, Status: runs.StatusSuccess}
			if evt.Stage == progress.StageLitigantError {
				completion.Status = runs.StatusError
				if evt.Note != "" {
					note := evt.Note
					completion.ErrMsg = &note
				}
			}
			if err := s.repo.CompleteRun(ctx, id, completion); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
			s.logger.Debug("run recorded", zap.String("run_id", id.String()), zap.String("status", string(completion.Status)))
		}
	}
	for _, id := range order {
		if err := flush(id); err != nil {
			return err
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LedgerSink) Close(context.Context) error {
	return nil
}
