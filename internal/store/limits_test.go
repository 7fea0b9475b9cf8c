package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultListLimit, NormalizeLimit(0))
	require.Equal(t, DefaultListLimit, NormalizeLimit(-4))
	require.Equal(t, 25, NormalizeLimit(25))
	require.Equal(t, MaxListLimit, NormalizeLimit(5000))
}
