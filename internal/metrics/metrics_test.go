package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	testCases := []struct {
		name     string
		code     int
		expected string
	}{
		{"no response", 0, "error"},
		{"ok", 200, "2xx"},
		{"redirect", 302, "3xx"},
		{"not found", 404, "4xx"},
		{"server error", 503, "5xx"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, StatusClass(tc.code))
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	require.NotNil(t, upstreamRequestsTotal)
	require.NotNil(t, casesPersistedTotal)
	require.NotNil(t, cacheLookupsTotal)
	require.NotNil(t, httpRequestsTotal)
	require.NotNil(t, httpRequestDurationSeconds)
}

func TestObserveUpstreamRequest(t *testing.T) {
	before := testutil.ToFloat64(upstreamRequestsTotalFor("metricsTest", 500))
	ObserveUpstreamRequest("metricsTest", 500, 20*time.Millisecond)
	ObserveUpstreamRequest("metricsTest", 503, 20*time.Millisecond)
	assert.InDelta(t, before+2, testutil.ToFloat64(upstreamRequestsTotalFor("metricsTest", 500)), 0.001)
}

func TestObserveCasePersisted(t *testing.T) {
	Init()
	okBefore := testutil.ToFloat64(casesPersistedTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(casesPersistedTotal.WithLabelValues("error"))

	ObserveCasePersisted(true)
	ObserveCasePersisted(false)
	ObserveCasePersisted(false)

	assert.InDelta(t, okBefore+1, testutil.ToFloat64(casesPersistedTotal.WithLabelValues("ok")), 0.001)
	assert.InDelta(t, errBefore+2, testutil.ToFloat64(casesPersistedTotal.WithLabelValues("error")), 0.001)
}

func TestObserveCacheLookup(t *testing.T) {
	Init()
	hitsBefore := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	missesBefore := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss"))

	ObserveCacheLookup(false)
	ObserveCacheLookup(true)
	ObserveCacheLookup(true)

	assert.InDelta(t, hitsBefore+2, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")), 0.001)
	assert.InDelta(t, missesBefore+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss")), 0.001)
}

func upstreamRequestsTotalFor(endpoint string, code int) prometheus.Counter {
	Init()
	return upstreamRequestsTotal.WithLabelValues(endpoint, StatusClass(code))
}
