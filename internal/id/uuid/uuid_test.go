package uuid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIDReturnsDistinctIDs(t *testing.T) {
	t.Parallel()

	g := NewUUIDGenerator()
	a, err := g.NewID()
	require.NoError(t, err)
	b, err := g.NewID()
	require.NoError(t, err)
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}
