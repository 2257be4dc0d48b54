package backends

import (
	"testing"

	"github.com/gomlx/einops/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTensor struct{ rank int }

// stubBackend accepts stubTensor values and records nothing; only the registry behavior is
// under test here.
type stubBackend struct{ name string }

func (b stubBackend) Name() string { return b.name }
func (b stubBackend) Accepts(x any) bool {
	_, ok := x.(stubTensor)
	return ok
}
func (b stubBackend) Shape(x any) (shapes.Shape, error) {
	t := x.(stubTensor)
	return shapes.Make(dtypes.Float64, make([]int, t.rank)...), nil
}
func (b stubBackend) Reshape(x any, dimensions ...int) (any, error) { return x, nil }

func (b stubBackend) Transpose(x any, permutation ...int) (any, error) { return x, nil }

func (b stubBackend) Reduce(x any, op ReduceOpType, axes ...int) (any, error) { return x, nil }

func (b stubBackend) Tile(x any, axis int, dimension int) (any, error) { return x, nil }

func (b stubBackend) Stack(xs []any, axis int) (any, error) { return xs[0], nil }

func TestRegistry(t *testing.T) {
	Register(stubBackend{name: "stub1"})
	Register(stubBackend{name: "stub2"})

	// The most recent registration wins for tensor types both accept.
	backend, err := ForTensor(stubTensor{rank: 2})
	require.NoError(t, err)
	assert.Equal(t, "stub2", backend.Name())

	backend, err = ByName("stub1")
	require.NoError(t, err)
	assert.Equal(t, "stub1", backend.Name())

	_, err = ByName("no such backend")
	require.Error(t, err)

	_, err = ForTensor("not a tensor")
	require.Error(t, err)
}

func TestReduceOpType(t *testing.T) {
	for op, name := range map[ReduceOpType]string{
		ReduceOpSum:     "sum",
		ReduceOpProduct: "prod",
		ReduceOpMax:     "max",
		ReduceOpMin:     "min",
		ReduceOpMean:    "mean",
	} {
		assert.Equal(t, name, op.String())
		parsed, err := ReduceOpFromString(name)
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}
	_, err := ReduceOpFromString("median")
	require.Error(t, err)
	assert.NotEmpty(t, ReduceOpUndefined.String())
}
