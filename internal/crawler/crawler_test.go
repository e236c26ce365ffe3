package crawler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/causas-crawler/internal/crawler"
	"github.com/JakeFAU/causas-crawler/internal/crawler/crawlertest"
	"github.com/JakeFAU/causas-crawler/internal/judicial"
	"github.com/JakeFAU/causas-crawler/internal/retry"
)

var fastRetry = retry.Policy{Initial: time.Millisecond, Multiplier: 2, MaxInterval: 5 * time.Millisecond, MaxElapsed: 200 * time.Millisecond}

func newCrawler(t *testing.T, cfg crawler.Config) (*crawler.Crawler, *crawlertest.FixtureSession) {
	t.Helper()
	sess := crawlertest.NewFixtureSession("testdata")
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = fastRetry
	}
	return crawler.New(cfg, sess.Factory(), nil), sess
}

func TestCrawlPlaintiffReturnsEveryCase(t *testing.T) {
	c, sess := newCrawler(t, crawler.Config{})

	record, err := c.Crawl(context.Background(), "1234", crawler.RolePlaintiff)
	require.NoError(t, err)

	assert.Equal(t, crawler.Litigant{NationalID: "1234", Role: crawler.RolePlaintiff}, record.Litigant)
	assert.Equal(t, []string{"17230202100123", "5678", "09281202200345"}, record.CaseIDs())
	assert.True(t, sess.Balanced())
}

func TestCrawlDropsMovementsWithoutIncidents(t *testing.T) {
	c, _ := newCrawler(t, crawler.Config{})

	record, err := c.Crawl(context.Background(), "1234", crawler.RolePlaintiff)
	require.NoError(t, err)

	homicide := record.Cases[1]
	assert.Equal(t, "Homicidio", homicide.Offense)
	require.Len(t, homicide.Movements, 1)

	movement := homicide.Movements[0]
	assert.EqualValues(t, 9101, movement.ID)
	assert.Equal(t, crawler.Court{ID: "09281", Name: "UNIDAD JUDICIAL PENAL NORTE 2", City: "GUAYAQUIL"}, movement.Court)
	require.Len(t, movement.Incidents, 2)

	first, second := movement.Incidents[0], movement.Incidents[1]
	assert.EqualValues(t, 4401, first.ID)
	assert.Equal(t, []crawler.Party{{ID: 601, Name: "GOMEZ MARIA"}}, first.Plaintiffs)
	assert.Equal(t, []crawler.Party{{ID: 602, Name: "RUIZ PEDRO"}}, first.Defendants)
	assert.Empty(t, second.Defendants)
	assert.NotNil(t, second.Defendants)
	require.Len(t, first.Actions, 2)
	assert.EqualValues(t, 1001, first.Actions[0].Code)
	assert.Equal(t, "c1f0a2b4-5678-1001", first.Actions[0].UUID)
	assert.Nil(t, first.Actions[0].Filename)
}

func TestCrawlPinsZonelessTimesToServiceLocation(t *testing.T) {
	loc := time.FixedZone("ECT", -5*60*60)
	c, _ := newCrawler(t, crawler.Config{Location: loc})

	record, err := c.Crawl(context.Background(), "1234", crawler.RolePlaintiff)
	require.NoError(t, err)

	assert.True(t, record.Cases[1].FiledAt.Equal(time.Date(2020, 6, 15, 10, 30, 0, 0, loc)))
	// Zoned values keep their instant.
	assert.True(t, record.Cases[2].FiledAt.Equal(time.Date(2022, 2, 2, 13, 0, 0, 0, time.UTC)))
}

func TestCrawlRetriesRemoteFailures(t *testing.T) {
	c, sess := newCrawler(t, crawler.Config{})
	var failures atomic.Int64
	sess.Fail = func(endpoint, key string) error {
		if endpoint == judicial.EndpointMovements && key == "5678" && failures.Add(1) == 1 {
			return &judicial.RemoteServiceError{Endpoint: endpoint, Status: 502, Reason: "Bad Gateway"}
		}
		return nil
	}

	record, err := c.Crawl(context.Background(), "1234", crawler.RolePlaintiff)
	require.NoError(t, err)
	assert.Len(t, record.Cases, 3)
	assert.Equal(t, 2, sess.Calls(judicial.EndpointMovements, "5678"))
}

func TestCrawlGivesUpWhenRetryBudgetIsSpent(t *testing.T) {
	c, sess := newCrawler(t, crawler.Config{})
	sess.Fail = func(endpoint, key string) error {
		if endpoint == judicial.EndpointActions && key == "5678" {
			return &judicial.RemoteServiceError{Endpoint: endpoint, Status: 500, Reason: "Internal Server Error"}
		}
		return nil
	}

	_, err := c.Crawl(context.Background(), "1234", crawler.RolePlaintiff)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	var remote *judicial.RemoteServiceError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 500, remote.Status)
	assert.Greater(t, sess.Calls(judicial.EndpointActions, "5678"), 1)
	assert.True(t, sess.Balanced())
}

func TestCrawlDoesNotRetryValidationErrors(t *testing.T) {
	c, sess := newCrawler(t, crawler.Config{CaseConcurrency: 1})
	sess.Fail = func(endpoint, key string) error {
		if endpoint == judicial.EndpointMovements && key == "5678" {
			return &judicial.ValidationError{Endpoint: endpoint, Err: errors.New("missing idJudicatura")}
		}
		return nil
	}

	_, err := c.Crawl(context.Background(), "1234", crawler.RolePlaintiff)
	var verr *judicial.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, sess.Calls(judicial.EndpointMovements, "5678"))
	// Fail-fast: the case after the failing one never starts.
	assert.Zero(t, sess.Calls(judicial.EndpointMovements, "09281202200345"))
}

func TestCrawlSearchFailureIsReturned(t *testing.T) {
	c, sess := newCrawler(t, crawler.Config{})
	sess.Fail = func(endpoint, _ string) error {
		if endpoint == judicial.EndpointSearch {
			return &judicial.RemoteServiceError{Endpoint: endpoint, Status: 503, Reason: "Service Unavailable"}
		}
		return nil
	}

	_, err := c.Crawl(context.Background(), "1234", crawler.RoleDefendant)
	require.Error(t, err)
	assert.True(t, sess.Balanced())
}

func TestCrawlUnknownLitigantHasNoCases(t *testing.T) {
	c, _ := newCrawler(t, crawler.Config{})

	record, err := c.Crawl(context.Background(), "0000", crawler.RoleDefendant)
	require.NoError(t, err)
	assert.Empty(t, record.Cases)
	assert.Equal(t, crawler.RoleDefendant, record.Litigant.Role)
}

func TestCrawlBoundsCaseConcurrency(t *testing.T) {
	c, sess := newCrawler(t, crawler.Config{CaseConcurrency: 2})
	var active, peak atomic.Int64
	sess.Fail = func(endpoint, _ string) error {
		if endpoint != judicial.EndpointMovements {
			return nil
		}
		n := active.Add(1)
		defer active.Add(-1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	_, err := c.Crawl(context.Background(), "1234", crawler.RolePlaintiff)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestCrawlMany(t *testing.T) {
	c, _ := newCrawler(t, crawler.Config{})

	records, err := c.CrawlMany(context.Background(), []string{"1234", "0000"}, crawler.RolePlaintiff, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Len(t, records[0].Cases, 3)
	assert.Empty(t, records[1].Cases)
}

func TestCriteriaPopulatesOnlyTheRoleField(t *testing.T) {
	plaintiff, err := crawler.Criteria(" 1234 ", crawler.RolePlaintiff)
	require.NoError(t, err)
	assert.Equal(t, "1234", plaintiff.Plaintiff.NationalID)
	assert.Empty(t, plaintiff.Defendant.NationalID)

	defendant, err := crawler.Criteria("1234", crawler.RoleDefendant)
	require.NoError(t, err)
	assert.Equal(t, "1234", defendant.Defendant.NationalID)
	assert.Empty(t, defendant.Plaintiff.NationalID)

	_, err = crawler.Criteria("", crawler.RolePlaintiff)
	require.Error(t, err)
	for _, role := range []crawler.Role{"", "witness", "Defendant"} {
		_, err = crawler.Criteria("1234", role)
		require.Error(t, err, string(role))
		assert.Contains(t, err.Error(), "unknown role")
	}
}

func TestRoleValid(t *testing.T) {
	for _, role := range crawler.Roles {
		assert.True(t, role.Valid(), role)
	}
	for _, role := range []crawler.Role{"", "actor", "Plaintiff", "witness"} {
		assert.False(t, role.Valid(), role)
	}
}

func TestParseRole(t *testing.T) {
	testCases := []struct {
		raw  string
		want crawler.Role
	}{
		{"plaintiff", crawler.RolePlaintiff},
		{"ACTOR", crawler.RolePlaintiff},
		{" defendant ", crawler.RoleDefendant},
		{"Demandado", crawler.RoleDefendant},
	}
	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := crawler.ParseRole(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
	_, err := crawler.ParseRole("judge")
	require.Error(t, err)
}
