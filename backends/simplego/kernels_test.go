package simplego

import (
	"testing"

	"github.com/gomlx/einops/backends"
	"github.com/gomlx/einops/types/xslices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iotaFlat(n int) []float64 {
	return xslices.Iota(0.0, n)
}

func TestTransposeFlat(t *testing.T) {
	got := transposeFlat(iotaFlat(6), []int{2, 3}, []int{1, 0})
	assert.Equal(t, []float64{0, 3, 1, 4, 2, 5}, got)

	// Rank 3, channels-last to channels-first.
	got = transposeFlat(iotaFlat(12), []int{2, 2, 3}, []int{2, 0, 1})
	assert.Equal(t, []float64{0, 3, 6, 9, 1, 4, 7, 10, 2, 5, 8, 11}, got)

	// Identity permutation.
	got = transposeFlat(iotaFlat(6), []int{2, 3}, []int{0, 1})
	assert.Equal(t, iotaFlat(6), got)

	// Zero-sized tensors transpose to zero-sized tensors.
	got = transposeFlat([]float64{}, []int{2, 0, 3}, []int{2, 1, 0})
	assert.Empty(t, got)
}

func TestTileFlat(t *testing.T) {
	src := []float64{1, 2, 3, 4}
	assert.Equal(t, []float64{1, 2, 3, 4, 1, 2, 3, 4}, tileFlat(src, []int{2, 2}, 0, 2))
	assert.Equal(t, []float64{1, 2, 1, 2, 3, 4, 3, 4}, tileFlat(src, []int{2, 2}, 1, 2))
	assert.Equal(t, []float64{1, 1, 2, 2, 3, 3, 4, 4}, tileFlat(src, []int{2, 2}, 2, 2))
	assert.Empty(t, tileFlat(src, []int{2, 2}, 1, 0))
}

func TestStackFlat(t *testing.T) {
	srcs := [][]float64{{1, 2}, {3, 4}}
	assert.Equal(t, []float64{1, 2, 3, 4}, stackFlat(srcs, []int{2}, 0))
	assert.Equal(t, []float64{1, 3, 2, 4}, stackFlat(srcs, []int{2}, 1))
}

func TestReduceDims(t *testing.T) {
	outDims, count := reduceDims([]int{2, 3, 4}, []int{1})
	assert.Equal(t, []int{2, 4}, outDims)
	assert.Equal(t, 3, count)

	outDims, count = reduceDims([]int{2, 3, 4}, []int{0, 2})
	assert.Equal(t, []int{3}, outDims)
	assert.Equal(t, 8, count)

	assert.True(t, trailingAxes(3, []int{1, 2}))
	assert.True(t, trailingAxes(3, []int{2}))
	assert.False(t, trailingAxes(3, []int{0, 2}))
	assert.False(t, trailingAxes(3, []int{0}))
}

func TestReduceFloat64(t *testing.T) {
	src := iotaFlat(6) // Shape (2, 3): [[0 1 2] [3 4 5]].

	t.Run("trailing fast path", func(t *testing.T) {
		got, err := reduceFloat64(src, []int{2, 3}, []int{1}, backends.ReduceOpSum)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 12}, got)

		got, err = reduceFloat64(src, []int{2, 3}, []int{1}, backends.ReduceOpMax)
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 5}, got)

		got, err = reduceFloat64(src, []int{2, 3}, []int{1}, backends.ReduceOpMean)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 4}, got)
	})

	t.Run("strided path", func(t *testing.T) {
		got, err := reduceFloat64(src, []int{2, 3}, []int{0}, backends.ReduceOpSum)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 5, 7}, got)

		got, err = reduceFloat64(src, []int{2, 3}, []int{0}, backends.ReduceOpMin)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1, 2}, got)
	})

	t.Run("full reduction", func(t *testing.T) {
		got, err := reduceFloat64(src, []int{2, 3}, []int{0, 1}, backends.ReduceOpProduct)
		require.NoError(t, err)
		assert.Equal(t, []float64{0}, got)
	})

	t.Run("zero-sized axes", func(t *testing.T) {
		// Sum and product have identities, max/min and mean do not.
		got, err := reduceFloat64(nil, []int{2, 0}, []int{1}, backends.ReduceOpSum)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, got)

		got, err = reduceFloat64(nil, []int{2, 0}, []int{1}, backends.ReduceOpProduct)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 1}, got)

		_, err = reduceFloat64(nil, []int{2, 0}, []int{1}, backends.ReduceOpMax)
		require.Error(t, err)
		_, err = reduceFloat64(nil, []int{2, 0}, []int{1}, backends.ReduceOpMean)
		require.Error(t, err)

		// The strided path enforces the same rules.
		_, err = reduceFloat64(nil, []int{0, 2}, []int{0}, backends.ReduceOpMin)
		require.Error(t, err)
	})
}

func TestReduceFloat32(t *testing.T) {
	src := []float32{1, 5, 3, 2, 0, 4}
	got, err := reduceFloat32(src, []int{2, 3}, []int{1}, backends.ReduceOpMax)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 4}, got)

	got, err = reduceFloat32(src, []int{2, 3}, []int{0}, backends.ReduceOpSum)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 5, 7}, got)
}

func TestReduceInt(t *testing.T) {
	src := []int32{1, 5, 3, 2, 0, 4}
	got, err := reduceInt(src, []int{2, 3}, []int{1}, backends.ReduceOpMin)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 0}, got)

	// Integer mean truncates.
	got, err = reduceInt([]int32{1, 2}, []int{2}, []int{0}, backends.ReduceOpMean)
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, got)
}

func TestReduceFlatCustom(t *testing.T) {
	// reduceFlat seeds each cell with its first value, so the combiner needs no identity.
	got, err := reduceFlat(iotaFlat(6), []int{2, 3}, []int{0}, func(a, b float64) float64 {
		if a > b {
			return a
		}
		return b
	}, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5}, got)

	_, err = reduceFlat([]float64{}, []int{2, 0}, []int{1}, func(a, b float64) float64 { return a + b }, 0, false)
	require.Error(t, err)
}
