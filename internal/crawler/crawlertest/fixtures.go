// Package crawlertest serves recorded judicial API responses to crawler tests.
package crawlertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/causas-crawler/internal/crawler"
	"github.com/JakeFAU/causas-crawler/internal/judicial"
)

// FixtureSession answers from JSON files named after the service responses:
// causas_response_<national_id>.json, movimientos_response_<case_id>.json and
// actuaciones_judiciales_response_<case_id>.json. A missing search fixture
// means the litigant has no cases.
type FixtureSession struct {
	Dir string
	// Fail, when set, is consulted before every call.
	Fail func(endpoint, key string) error

	mu     sync.Mutex
	calls  map[string]int
	opened atomic.Int64
	closed atomic.Int64
}

// NewFixtureSession serves fixtures from dir.
func NewFixtureSession(dir string) *FixtureSession {
	return &FixtureSession{Dir: dir, calls: make(map[string]int)}
}

// Factory returns a SessionFactory handing out s.
func (s *FixtureSession) Factory() crawler.SessionFactory {
	return func(context.Context) (crawler.Session, error) {
		s.opened.Add(1)
		return s, nil
	}
}

// Calls reports how often endpoint was called for key.
func (s *FixtureSession) Calls(endpoint, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint+"/"+key]
}

// Balanced reports whether every opened session was closed.
func (s *FixtureSession) Balanced() bool {
	return s.opened.Load() == s.closed.Load()
}

// SearchCases serves causas_response_<national_id>.json.
func (s *FixtureSession) SearchCases(ctx context.Context, criteria judicial.SearchCriteria) ([]judicial.CaseSummary, error) {
	key := criteria.Plaintiff.NationalID
	if key == "" {
		key = criteria.Defendant.NationalID
	}
	var out []judicial.CaseSummary
	err := s.load(ctx, judicial.EndpointSearch, key, "causas_response_"+key+".json", &out)
	if errors.Is(err, fs.ErrNotExist) {
		return []judicial.CaseSummary{}, nil
	}
	return out, err
}

// GetMovements serves movimientos_response_<case_id>.json.
func (s *FixtureSession) GetMovements(ctx context.Context, caseID string) ([]judicial.MovementDetail, error) {
	var out []judicial.MovementDetail
	err := s.load(ctx, judicial.EndpointMovements, caseID, "movimientos_response_"+caseID+".json", &out)
	return out, err
}

// GetActions serves actuaciones_judiciales_response_<case_id>.json.
func (s *FixtureSession) GetActions(ctx context.Context, req judicial.ActionRequest) ([]judicial.ActionRecord, error) {
	var out []judicial.ActionRecord
	err := s.load(ctx, judicial.EndpointActions, req.CaseID, "actuaciones_judiciales_response_"+req.CaseID+".json", &out)
	return out, err
}

// Close counts the release.
func (s *FixtureSession) Close() {
	s.closed.Add(1)
}

func (s *FixtureSession) load(ctx context.Context, endpoint, key, name string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[endpoint+"/"+key]++
	s.mu.Unlock()
	if s.Fail != nil {
		if err := s.Fail(endpoint, key); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return fmt.Errorf("fixture %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("fixture %s: %w", name, err)
	}
	return nil
}
