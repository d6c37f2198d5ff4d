package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogHasNoDuplicateKeys(t *testing.T) {
	c := Default()
	require.GreaterOrEqual(t, c.Len(), 100)
}

func TestNewRejectsDuplicateKeys(t *testing.T) {
	_, err := New([]Descriptor{{Key: "a", Label: "A"}, {Key: "a", Label: "A2"}})
	require.Error(t, err)
}

func TestNewRejectsEmptyKey(t *testing.T) {
	_, err := New([]Descriptor{{Key: "", Label: "A"}})
	require.Error(t, err)
}

func TestSampleNReturnsDistinctKeysFromCatalog(t *testing.T) {
	c := Default()
	keys, err := c.SampleN(4)
	require.NoError(t, err)
	require.Len(t, keys, 4)

	seen := make(map[string]bool)
	for _, k := range keys {
		require.False(t, seen[k], "duplicate key %q in sample", k)
		seen[k] = true
		require.True(t, c.Has(k))
	}
}

func TestSampleNRejectsOversizedRequest(t *testing.T) {
	c, err := New([]Descriptor{{Key: "a", Label: "A"}, {Key: "b", Label: "B"}})
	require.NoError(t, err)
	_, err = c.SampleN(3)
	require.Error(t, err)
}

func TestSampleNRejectsNonPositive(t *testing.T) {
	c := Default()
	_, err := c.SampleN(0)
	require.Error(t, err)
}

func TestSampleNDistributionIsNotDegenerate(t *testing.T) {
	c := Default()
	seenFirst := make(map[string]int)
	for i := 0; i < 200; i++ {
		keys, err := c.SampleN(4)
		require.NoError(t, err)
		seenFirst[keys[0]]++
	}
	// With ~100 descriptors and 200 draws, a non-degenerate sampler should
	// produce noticeably more than one distinct "first" key.
	require.Greater(t, len(seenFirst), 1)
}
