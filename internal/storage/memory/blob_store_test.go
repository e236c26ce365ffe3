package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStoreKeepsCopies(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"codigo":1001}`)
	uri, err := store.PutObject(context.Background(), "raw/1234/run/actuacionesJudiciales/5678.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://raw/1234/run/actuacionesJudiciales/5678.json", uri)

	payload[2] = 'C'
	got, ok := store.Object("raw/1234/run/actuacionesJudiciales/5678.json")
	require.True(t, ok)
	assert.Equal(t, `{"codigo":1001}`, string(got))

	got[0] = '['
	again, _ := store.Object("raw/1234/run/actuacionesJudiciales/5678.json")
	assert.Equal(t, byte('{'), again[0])

	_, ok = store.Object("missing")
	assert.False(t, ok)
}

func TestBlobStorePathsAreSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.json", "a.json", "c.json"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.json", "b.json", "c.json"}, store.Paths())
}
