package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/causas-crawler/internal/concurrency"
	"github.com/JakeFAU/causas-crawler/internal/judicial"
	"github.com/JakeFAU/causas-crawler/internal/metrics"
	"github.com/JakeFAU/causas-crawler/internal/retry"
)

// Session is the slice of the judicial API the crawler needs.
type Session interface {
	SearchCases(ctx context.Context, criteria judicial.SearchCriteria) ([]judicial.CaseSummary, error)
	GetMovements(ctx context.Context, caseID string) ([]judicial.MovementDetail, error)
	GetActions(ctx context.Context, req judicial.ActionRequest) ([]judicial.ActionRecord, error)
	Close()
}

// SessionFactory opens one session per crawl.
type SessionFactory func(ctx context.Context) (Session, error)

// ClientSessions opens sessions on a judicial client.
func ClientSessions(client *judicial.Client) SessionFactory {
	return func(ctx context.Context) (Session, error) {
		sess, err := client.Open(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

// Config tunes the crawl fan-out.
type Config struct {
	// CaseConcurrency bounds cases fetched at once per litigant.
	CaseConcurrency int
	// IncidentConcurrency bounds action lookups at once within a movement.
	IncidentConcurrency int
	// Retry wraps each case fetch.
	Retry retry.Policy
	// Location pins zone-less service timestamps.
	Location *time.Location
}

// DefaultConfig returns the production fan-out.
func DefaultConfig() Config {
	return Config{
		CaseConcurrency:     15,
		IncidentConcurrency: 1,
		Retry:               retry.Default(),
		Location:            judicial.LoadLocation(judicial.DefaultLocation),
	}
}

// Crawler builds LitigantRecords.
type Crawler struct {
	cfg    Config
	open   SessionFactory
	logger *zap.Logger
}

// New constructs a Crawler. Zero config fields take their defaults.
func New(cfg Config, open SessionFactory, logger *zap.Logger) *Crawler {
	def := DefaultConfig()
	if cfg.CaseConcurrency <= 0 {
		cfg.CaseConcurrency = def.CaseConcurrency
	}
	if cfg.IncidentConcurrency <= 0 {
		cfg.IncidentConcurrency = def.IncidentConcurrency
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = def.Retry
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, open: open, logger: logger.Named("crawler")}
}

// Criteria builds the search for a litigant, populating only the role's ID.
func Criteria(nationalID string, role Role) (judicial.SearchCriteria, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return judicial.SearchCriteria{}, errors.New("national id is required")
	}
	if !role.Valid() {
		return judicial.SearchCriteria{}, fmt.Errorf("unknown role %q", role)
	}
	if role == RoleDefendant {
		return judicial.SearchCriteria{Defendant: judicial.Defendant{NationalID: nationalID}}, nil
	}
	return judicial.SearchCriteria{Plaintiff: judicial.Plaintiff{NationalID: nationalID}}, nil
}

// Crawl fetches every case of the litigant under role. Cases are fetched
// concurrently; the first case that cannot be fetched aborts the crawl.
func (c *Crawler) Crawl(ctx context.Context, nationalID string, role Role) (*LitigantRecord, error) {
	criteria, err := Criteria(nationalID, role)
	if err != nil {
		return nil, err
	}
	nationalID = strings.TrimSpace(nationalID)
	logger := c.logger.With(zap.String("national_id", nationalID), zap.String("role", role.String()))

	sess, err := c.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	summaries, err := sess.SearchCases(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("search cases for %s: %w", nationalID, err)
	}
	logger.Info("cases found", zap.Int("count", len(summaries)))

	tasks := make([]concurrency.Task[Case], len(summaries))
	for i, summary := range summaries {
		tasks[i] = func(ctx context.Context) (Case, error) {
			return c.fetchCase(ctx, sess, summary, logger)
		}
	}
	cases, err := concurrency.Run(ctx, c.cfg.CaseConcurrency, tasks,
		concurrency.WithProgress(logger, fmt.Sprintf("%s %s cases", role, nationalID), zapcore.InfoLevel))
	if err != nil {
		return nil, fmt.Errorf("crawl %s %s: %w", role, nationalID, err)
	}
	metrics.ObserveCasesFetched(role.String(), len(cases))

	return &LitigantRecord{
		Litigant: Litigant{NationalID: nationalID, Role: role},
		Cases:    cases,
	}, nil
}

// CrawlMany crawls several litigants, at most limit at once, logging progress
// at warn level. It stops at the first failure.
func (c *Crawler) CrawlMany(ctx context.Context, nationalIDs []string, role Role, limit int) ([]*LitigantRecord, error) {
	tasks := make([]concurrency.Task[*LitigantRecord], len(nationalIDs))
	for i, id := range nationalIDs {
		tasks[i] = func(ctx context.Context) (*LitigantRecord, error) {
			return c.Crawl(ctx, id, role)
		}
	}
	records, err := concurrency.Run(ctx, limit, tasks, concurrency.WithProgress(c.logger, role.String(), zapcore.WarnLevel))
	if err != nil {
		return nil, fmt.Errorf("crawl %ss: %w", role, err)
	}
	return records, nil
}

func (c *Crawler) fetchCase(ctx context.Context, sess Session, summary judicial.CaseSummary, logger *zap.Logger) (Case, error) {
	var out Case
	err := retry.Do(ctx, c.cfg.Retry, judicial.IsRetryable, func(ctx context.Context) error {
		details, err := sess.GetMovements(ctx, summary.CaseID)
		if err != nil {
			return err
		}
		movements := make([]Movement, 0, len(details))
		for _, detail := range details {
			movement, ok, err := c.buildMovement(ctx, sess, summary.CaseID, detail)
			if err != nil {
				return err
			}
			if ok {
				movements = append(movements, movement)
			}
		}
		out = Case{
			ID:        summary.CaseID,
			Offense:   summary.Offense,
			FiledAt:   summary.FiledAt.Resolve(c.cfg.Location),
			Movements: movements,
		}
		return nil
	}, retry.WithOp("case "+summary.CaseID), retry.WithLogger(logger))
	if err != nil {
		if ctx.Err() == nil {
			payload, _ := json.Marshal(summary)
			logger.Error("failed to fetch case",
				zap.String("case_id", summary.CaseID),
				zap.ByteString("case", payload),
				zap.Error(err),
			)
		}
		return Case{}, fmt.Errorf("case %s: %w", summary.CaseID, err)
	}
	return out, nil
}

// buildMovement reports ok=false for movements without incidents, which carry
// no movement ID.
func (c *Crawler) buildMovement(ctx context.Context, sess Session, caseID string, detail judicial.MovementDetail) (Movement, bool, error) {
	if len(detail.Incidents) == 0 {
		return Movement{}, false, nil
	}
	tasks := make([]concurrency.Task[Incident], len(detail.Incidents))
	for i, inc := range detail.Incidents {
		tasks[i] = func(ctx context.Context) (Incident, error) {
			return c.buildIncident(ctx, sess, caseID, detail, inc)
		}
	}
	incidents, err := concurrency.Run(ctx, c.cfg.IncidentConcurrency, tasks)
	if err != nil {
		return Movement{}, false, err
	}
	return Movement{
		ID: detail.Incidents[0].MovementID,
		Court: Court{
			ID:   detail.CourtID,
			Name: detail.CourtName,
			City: detail.City,
		},
		Incidents: incidents,
	}, true, nil
}

func (c *Crawler) buildIncident(ctx context.Context, sess Session, caseID string, movement judicial.MovementDetail, detail judicial.IncidentDetail) (Incident, error) {
	records, err := sess.GetActions(ctx, judicial.NewActionRequest(caseID, movement, detail))
	if err != nil {
		return Incident{}, err
	}
	actions := make([]Action, 0, len(records))
	for _, r := range records {
		actions = append(actions, Action{
			UUID:     r.UUID,
			Code:     r.Code,
			Date:     r.Date.Resolve(c.cfg.Location),
			Type:     r.Type,
			Activity: r.Activity,
			Filename: r.Filename,
		})
	}
	return Incident{
		ID:         detail.IncidentCourtID,
		CreatedAt:  detail.CreatedAt.Resolve(c.cfg.Location),
		Plaintiffs: parties(detail.Plaintiffs),
		Defendants: parties(detail.Defendants),
		Actions:    actions,
	}, nil
}

func parties(details []judicial.PartyDetail) []Party {
	out := make([]Party, 0, len(details))
	for _, d := range details {
		out = append(out, Party{
			ID:             d.PartyID,
			Name:           d.Names,
			Representative: d.RepresentedBy,
		})
	}
	return out
}
