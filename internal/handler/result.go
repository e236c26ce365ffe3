package handler

import (
	"strconv"
	"time"

	"github.com/JakeFAU/causas-crawler/internal/crawler"
)

// Outcome summarizes how a litigant run ended.
type Outcome string

// Run outcomes.
const (
	// OutcomeSucceeded means the crawl completed and found cases. Individual
	// cases may still have failed to persist.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeEmpty means the crawl completed and the litigant has no cases.
	OutcomeEmpty Outcome = "empty"
	// OutcomeFailed means the crawl did not complete; nothing was persisted.
	OutcomeFailed Outcome = "failed"
)

// ProcessResult reports one ProcessLitigant call.
type ProcessResult struct {
	RunID             string            `json:"run_id"`
	NationalID        string            `json:"national_id"`
	Role              crawler.Role      `json:"role"`
	Outcome           Outcome           `json:"outcome"`
	SuccessfulCaseIDs []string          `json:"successful_case_ids"`
	ErrorsByCaseID    map[string]string `json:"errors_by_case_id"`
	LitigantLinked    bool              `json:"litigant_linked"`
	CrawlError        string            `json:"crawl_error,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
}

// Attributes are attached to the published message for subscriber filtering.
func (r *ProcessResult) Attributes() map[string]string {
	return map[string]string{
		"run_id":       r.RunID,
		"national_id":  r.NationalID,
		"role":         r.Role.String(),
		"outcome":      string(r.Outcome),
		"cases_ok":     strconv.Itoa(len(r.SuccessfulCaseIDs)),
		"cases_failed": strconv.Itoa(len(r.ErrorsByCaseID)),
	}
}
