package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorProducesV7(t *testing.T) {
	t.Parallel()

	gen := NewGenerator()
	raw, err := gen.NewRawID()
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), raw.Version())

	s, err := gen.NewID()
	require.NoError(t, err)
	parsed, err := uuid.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestGeneratorIDsAreOrdered(t *testing.T) {
	t.Parallel()

	gen := NewGenerator()
	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)
	assert.Less(t, first, second)
}
