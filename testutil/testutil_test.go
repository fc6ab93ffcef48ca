package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rnaget/blobstore"
	"github.com/hupe1980/rnaget/internal/matrix"
)

func TestDataset(t *testing.T) {
	rng := NewRNG(4711)

	ds := rng.Dataset(20, 5, 0.5)

	assert.Len(t, ds.Features, 20)
	assert.Len(t, ds.Samples, 5)
	require.Len(t, ds.Values, 20)

	zeros := 0
	for _, row := range ds.Values {
		assert.Len(t, row, 5)
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
			if v == 0 {
				zeros++
			}
		}
	}
	assert.Positive(t, zeros)
	assert.Less(t, zeros, 100)
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.Dataset(3, 3, 0)
	rng.Reset()
	v2 := rng.Dataset(3, 3, 0)

	assert.Equal(t, v1.Values, v2.Values)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestSlice(t *testing.T) {
	ds := &Dataset{
		Features: []string{"g1", "g2", "g3"},
		Samples:  []string{"s1", "s2"},
		Values:   [][]float64{{1, 2}, {3, 4}, {5, 6}},
	}

	rows := ds.Slice([]string{"g3", "g1", "g3"}, []string{"s2"})
	require.Len(t, rows, 2)
	assert.Equal(t, "g3", rows[0].Feature)
	assert.Equal(t, []float64{6}, rows[0].Values)
	assert.Equal(t, []float64{2}, rows[1].Values)

	assert.Len(t, ds.Slice(nil, nil), 3)
	assert.Empty(t, ds.Slice(nil, []string{}))
}

func TestWriteMatrix(t *testing.T) {
	ctx := t.Context()
	store := blobstore.NewMemoryStore()
	ds := NewRNG(1).Dataset(50, 4, 0.2)

	require.NoError(t, WriteMatrix(ctx, store, "m.rnam", ds, matrix.WithRowsPerBlock(8)))

	f, err := matrix.OpenStore(ctx, store, "m.rnam")
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, ds.Features, f.FeatureIDs())
	assert.Equal(t, ds.Samples, f.SampleIDs())
	assert.Equal(t, ds.Units, f.Units())

	for row, err := range f.ReadRows(ctx, []int{0, 49}) {
		require.NoError(t, err)
		assert.Equal(t, ds.Values[row.Offset], row.Values)
	}
}
