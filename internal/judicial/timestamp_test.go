package judicial

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	guayaquil := time.FixedZone("ECT", -5*3600)

	testCases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"zone-less", "2021-01-01T00:00:00", time.Date(2021, 1, 1, 0, 0, 0, 0, guayaquil)},
		{"zone-less fraction", "2021-01-01T10:30:00.123", time.Date(2021, 1, 1, 10, 30, 0, 123e6, guayaquil)},
		{"space separated", "2021-01-01 10:30:00", time.Date(2021, 1, 1, 10, 30, 0, 0, guayaquil)},
		{"date only", "2021-01-01", time.Date(2021, 1, 1, 0, 0, 0, 0, guayaquil)},
		{"utc offset", "2021-01-01T05:00:00.000+00:00", time.Date(2021, 1, 1, 5, 0, 0, 0, time.UTC)},
		{"compact offset", "2021-01-01T05:00:00.000+0000", time.Date(2021, 1, 1, 5, 0, 0, 0, time.UTC)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tc.raw)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(ts.Resolve(guayaquil)), "got %s", ts.Resolve(guayaquil))
		})
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	_, err := ParseTimestamp("yesterday")
	require.Error(t, err)
}

func TestTimestampJSON(t *testing.T) {
	var payload struct {
		A Timestamp `json:"a"`
		B Timestamp `json:"b"`
		C Timestamp `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2021-01-01T00:00:00","b":null,"c":1609459200000}`), &payload))
	assert.False(t, payload.A.IsZero())
	assert.True(t, payload.B.IsZero())
	assert.True(t, payload.C.Resolve(time.UTC).Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)))

	out, err := json.Marshal(payload.B)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}
