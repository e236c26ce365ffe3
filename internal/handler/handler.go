// Package handler crawls a litigant and persists the result case by case.
//
// Crawling is all-or-nothing per litigant. Persistence is not: every case is
// written independently, a case that fails to persist is recorded and
// skipped, and the litigant is linked only to the cases that were stored.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/causas-crawler/internal/archive"
	"github.com/JakeFAU/causas-crawler/internal/clock/system"
	"github.com/JakeFAU/causas-crawler/internal/concurrency"
	"github.com/JakeFAU/causas-crawler/internal/crawler"
	idgen "github.com/JakeFAU/causas-crawler/internal/id/uuid"
	"github.com/JakeFAU/causas-crawler/internal/metrics"
	"github.com/JakeFAU/causas-crawler/internal/progress"
	"github.com/JakeFAU/causas-crawler/internal/publisher"
	"github.com/JakeFAU/causas-crawler/internal/store"
)

// Crawler fetches a litigant's full record.
type Crawler interface {
	Crawl(ctx context.Context, nationalID string, role crawler.Role) (*crawler.LitigantRecord, error)
}

// Store is the write side the handler persists through.
type Store interface {
	UpsertLitigant(ctx context.Context, litigant crawler.Litigant, caseIDs []string) (string, error)
	UpsertCase(ctx context.Context, c crawler.Case) (string, error)
	BulkUpsertCourts(ctx context.Context, courts []crawler.Court) error
	BulkUpsertMovements(ctx context.Context, movements []crawler.Movement, caseID string) error
	BulkUpsertIncidents(ctx context.Context, incidents []store.IncidentRow) error
	BulkUpsertActions(ctx context.Context, actions []store.ActionRow) ([]int64, error)
	UpsertParty(ctx context.Context, party crawler.Party, role crawler.Role, incidentID int64) (int64, error)
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator supplies run IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Config tunes persistence.
type Config struct {
	// PersistConcurrency bounds cases written at once. SQLite serializes
	// writers, so the default is 1.
	PersistConcurrency int `mapstructure:"persist_concurrency"`
	// Strict makes every call behave as if Strict() were passed.
	Strict bool `mapstructure:"strict"`
	// Topic receives every ProcessResult when a publisher is configured.
	Topic string `mapstructure:"topic"`
}

// Option customizes a Handler.
type Option func(*Handler)

// WithProgress sends run events to emitter.
func WithProgress(emitter progress.Emitter) Option {
	return func(h *Handler) {
		if emitter != nil {
			h.progress = emitter
		}
	}
}

// WithPublisher announces results through pub.
func WithPublisher(pub publisher.Publisher) Option {
	return func(h *Handler) {
		h.publisher = pub
	}
}

// WithClock overrides the clock.
func WithClock(c Clock) Option {
	return func(h *Handler) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Handler) {
		if g != nil {
			h.ids = g
		}
	}
}

// Handler composes a Crawler and a Store.
type Handler struct {
	crawler   Crawler
	store     Store
	cfg       Config
	logger    *zap.Logger
	progress  progress.Emitter
	publisher publisher.Publisher
	clock     Clock
	ids       IDGenerator
}

// New constructs a Handler.
func New(c Crawler, s Store, cfg Config, logger *zap.Logger, opts ...Option) *Handler {
	if cfg.PersistConcurrency <= 0 {
		cfg.PersistConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		crawler:  c,
		store:    s,
		cfg:      cfg,
		logger:   logger.Named("handler"),
		progress: progress.Discard,
		clock:    system.New(),
		ids:      idgen.NewGenerator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type processOptions struct {
	strict bool
	onDone func(*ProcessResult, error)
}

// ProcessOption tunes one ProcessLitigant call.
type ProcessOption func(*processOptions)

// Strict returns crawl failures to the caller instead of only recording them
// in the result.
func Strict() ProcessOption {
	return func(o *processOptions) {
		o.strict = true
	}
}

// OnDone calls fn with the outcome of every ProcessLitigant call it is
// passed to, including each litigant of ProcessMany. fn may run concurrently
// and gets a nil result only when the run could not start.
func OnDone(fn func(*ProcessResult, error)) ProcessOption {
	return func(o *processOptions) {
		o.onDone = fn
	}
}

// ProcessLitigant crawls the litigant under role and persists what was
// fetched. A crawl failure yields a result with OutcomeFailed; it is also
// returned as an error in strict mode. Persistence failures never produce an
// error: they are reported per case in ErrorsByCaseID.
func (h *Handler) ProcessLitigant(ctx context.Context, nationalID string, role crawler.Role, opts ...ProcessOption) (*ProcessResult, error) {
	o := processOptions{strict: h.cfg.Strict}
	for _, opt := range opts {
		opt(&o)
	}
	result, err := h.process(ctx, nationalID, role, o)
	if o.onDone != nil {
		o.onDone(result, err)
	}
	return result, err
}

func (h *Handler) process(ctx context.Context, nationalID string, role crawler.Role, o processOptions) (*ProcessResult, error) {
	nationalID = strings.TrimSpace(nationalID)

	runID, err := h.ids.NewRawID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	started := h.clock.Now()
	logger := h.logger.With(
		zap.String("run_id", runID.String()),
		zap.String("national_id", nationalID),
		zap.String("role", role.String()),
	)
	result := &ProcessResult{
		RunID:             runID.String(),
		NationalID:        nationalID,
		Role:              role,
		StartedAt:         started,
		SuccessfulCaseIDs: []string{},
		ErrorsByCaseID:    map[string]string{},
	}
	run := runEvents{emitter: h.progress, clock: h.clock, id: progress.UUIDToBytes(runID), nationalID: nationalID, role: role.String()}
	run.emit(progress.Event{Stage: progress.StageLitigantStart})

	record, err := h.crawler.Crawl(archive.WithScope(ctx, nationalID, runID.String()), nationalID, role)
	if err != nil {
		logger.Error("crawl failed", zap.Error(err))
		result.Outcome = OutcomeFailed
		result.CrawlError = err.Error()
		h.finish(ctx, result, run, logger)
		if o.strict {
			return result, fmt.Errorf("process %s %s: %w", role, nationalID, err)
		}
		return result, nil
	}
	run.emit(progress.Event{Stage: progress.StageCasesFetched, Count: int64(len(record.Cases))})

	h.persistRecord(ctx, record, result, run, logger)

	litigant := record.Litigant
	if litigant.Role == "" {
		litigant.Role = role
	}
	if _, err := h.store.UpsertLitigant(ctx, litigant, result.SuccessfulCaseIDs); err != nil {
		logger.Error("failed to link litigant", zap.Error(err))
	} else {
		result.LitigantLinked = true
	}

	result.Outcome = OutcomeSucceeded
	if len(record.Cases) == 0 {
		result.Outcome = OutcomeEmpty
	}
	h.finish(ctx, result, run, logger)
	return result, nil
}

// ProcessMany processes several litigants, at most limit at once, logging
// progress at warn level. Results are in input order; a nil entry means the
// run could not start.
func (h *Handler) ProcessMany(ctx context.Context, nationalIDs []string, role crawler.Role, limit int, opts ...ProcessOption) ([]*ProcessResult, error) {
	tasks := make([]concurrency.Task[*ProcessResult], len(nationalIDs))
	for i, id := range nationalIDs {
		tasks[i] = func(ctx context.Context) (*ProcessResult, error) {
			return h.ProcessLitigant(ctx, id, role, opts...)
		}
	}
	results := concurrency.RunAll(ctx, limit, tasks,
		concurrency.WithProgress(h.logger, role.String()+" litigants", zapcore.WarnLevel))

	out := make([]*ProcessResult, len(results))
	var errs []error
	for i, r := range results {
		out[i] = r.Value
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nationalIDs[i], r.Err))
		}
	}
	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

func (h *Handler) persistRecord(ctx context.Context, record *crawler.LitigantRecord, result *ProcessResult, run runEvents, logger *zap.Logger) {
	tasks := make([]concurrency.Task[struct{}], len(record.Cases))
	for i, c := range record.Cases {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.persistCase(ctx, c)
		}
	}
	results := concurrency.RunAll(ctx, h.cfg.PersistConcurrency, tasks)
	for i, r := range results {
		caseID := record.Cases[i].ID
		if r.Err != nil {
			logger.Error("failed to persist case", zap.String("case_id", caseID), zap.Error(r.Err))
			result.ErrorsByCaseID[caseID] = r.Err.Error()
			run.emit(progress.Event{Stage: progress.StageCaseFailed, CaseID: caseID, Note: r.Err.Error()})
			continue
		}
		result.SuccessfulCaseIDs = append(result.SuccessfulCaseIDs, caseID)
		run.emit(progress.Event{Stage: progress.StageCasePersisted, CaseID: caseID})
	}
}

// persistCase writes one case and everything below it.
func (h *Handler) persistCase(ctx context.Context, c crawler.Case) (err error) {
	metrics.IncActivePersists()
	start := h.clock.Now()
	defer func() {
		metrics.DecActivePersists()
		metrics.ObserveCasePersisted(err == nil)
		h.logger.Debug("handler.persist",
			zap.String("case_id", c.ID),
			zap.Duration("duration", h.clock.Now().Sub(start)),
			zap.Bool("ok", err == nil),
		)
	}()

	if _, err := h.store.UpsertCase(ctx, c); err != nil {
		return err
	}
	if err := h.store.BulkUpsertCourts(ctx, courtsOf(c)); err != nil {
		return err
	}
	if err := h.store.BulkUpsertMovements(ctx, c.Movements, c.ID); err != nil {
		return err
	}
	incidents, actions := rowsOf(c)
	if err := h.store.BulkUpsertIncidents(ctx, incidents); err != nil {
		return err
	}
	if _, err := h.store.BulkUpsertActions(ctx, actions); err != nil {
		return err
	}
	for _, m := range c.Movements {
		for _, inc := range m.Incidents {
			for _, role := range crawler.Roles {
				for _, party := range inc.Parties(role) {
					if _, err := h.store.UpsertParty(ctx, party, role, inc.ID); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (h *Handler) finish(ctx context.Context, result *ProcessResult, run runEvents, logger *zap.Logger) {
	result.FinishedAt = h.clock.Now()
	elapsed := result.FinishedAt.Sub(result.StartedAt)
	metrics.ObserveLitigantProcess(result.Role.String(), string(result.Outcome), elapsed)

	if result.Outcome == OutcomeFailed {
		run.emit(progress.Event{Stage: progress.StageLitigantError, Note: result.CrawlError, Dur: elapsed})
	} else {
		run.emit(progress.Event{Stage: progress.StageLitigantDone, Count: int64(len(result.SuccessfulCaseIDs)), Dur: elapsed})
	}
	logger.Info("litigant processed",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("cases_ok", len(result.SuccessfulCaseIDs)),
		zap.Int("cases_failed", len(result.ErrorsByCaseID)),
		zap.Bool("linked", result.LitigantLinked),
		zap.Duration("duration", elapsed),
	)

	if h.publisher == nil || h.cfg.Topic == "" {
		return
	}
	if _, err := h.publisher.Publish(ctx, h.cfg.Topic, result); err != nil {
		logger.Warn("failed to publish result", zap.String("topic", h.cfg.Topic), zap.Error(err))
	}
}

func courtsOf(c crawler.Case) []crawler.Court {
	seen := make(map[string]bool, len(c.Movements))
	courts := make([]crawler.Court, 0, len(c.Movements))
	for _, m := range c.Movements {
		if seen[m.Court.ID] {
			continue
		}
		seen[m.Court.ID] = true
		courts = append(courts, m.Court)
	}
	return courts
}

func rowsOf(c crawler.Case) ([]store.IncidentRow, []store.ActionRow) {
	var incidents []store.IncidentRow
	var actions []store.ActionRow
	for _, m := range c.Movements {
		for _, inc := range m.Incidents {
			incidents = append(incidents, store.IncidentRow{
				ID:         inc.ID,
				MovementID: m.ID,
				CourtID:    m.Court.ID,
				CreatedAt:  inc.CreatedAt,
			})
			for _, a := range inc.Actions {
				actions = append(actions, store.ActionRow{
					IncidentID: inc.ID,
					Code:       a.Code,
					CourtID:    m.Court.ID,
					UUID:       a.UUID,
					Date:       a.Date,
					Type:       a.Type,
					Activity:   a.Activity,
					Filename:   a.Filename,
				})
			}
		}
	}
	return incidents, actions
}

type runEvents struct {
	emitter    progress.Emitter
	clock      Clock
	id         [16]byte
	nationalID string
	role       string
}

func (r runEvents) emit(evt progress.Event) {
	evt.RunID = r.id
	evt.TS = r.clock.Now().UTC()
	evt.NationalID = r.nationalID
	evt.Role = r.role
	r.emitter.Emit(evt)
}
