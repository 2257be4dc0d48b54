// Package simplego provides the reference pure-Go backend for the einops package.
//
// It operates on dense row-major *Tensor values (see FromFlat) with float32, float64,
// float16, int32 or int64 elements, and implements every operation of the
// backends.Backend capability set plus backends.CustomReducer. Importing the package
// registers the backend:
//
//	import _ "github.com/gomlx/einops/backends/simplego"
package simplego

import (
	"slices"

	"github.com/gomlx/einops/backends"
	"github.com/gomlx/einops/types/shapes"
	"github.com/gomlx/einops/types/xslices"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// BackendName to use in backends.ByName.
const BackendName = "simplego"

// Backend implements backends.Backend over *Tensor values.
type Backend struct{}

// Compile-time checks:
var (
	_ backends.Backend       = Backend{}
	_ backends.CustomReducer = Backend{}
)

func init() {
	backends.Register(Backend{})
}

// New returns the backend. It is stateless; the value registered at init is equivalent.
func New() Backend { return Backend{} }

// Name implements backends.Backend.
func (Backend) Name() string { return BackendName }

// Accepts implements backends.Backend: it handles *Tensor values.
func (Backend) Accepts(x any) bool {
	_, ok := x.(*Tensor)
	return ok
}

func tensorOf(x any) (*Tensor, error) {
	t, ok := x.(*Tensor)
	if !ok {
		return nil, errors.Errorf("%s backend cannot operate on tensor of type %T", BackendName, x)
	}
	return t, nil
}

// Shape implements backends.Backend.
func (Backend) Shape(x any) (shapes.Shape, error) {
	t, err := tensorOf(x)
	if err != nil {
		return shapes.Invalid(), err
	}
	return t.shape, nil
}

// Reshape implements backends.Backend. The result shares the flat data with x: a reshape of
// a contiguous row-major tensor is a pure re-labeling of its dimensions.
func (Backend) Reshape(x any, dimensions ...int) (any, error) {
	t, err := tensorOf(x)
	if err != nil {
		return nil, err
	}
	for _, dim := range dimensions {
		if dim < 0 {
			return nil, errors.Errorf("Reshape: invalid dimensions %v (auto-scaling dimensions are not supported)", dimensions)
		}
	}
	newShape := shapes.Make(t.shape.DType, dimensions...)
	if newShape.Size() != t.shape.Size() {
		return nil, errors.Errorf("Reshape: cannot reshape %s to dimensions %v, number of elements would change from %d to %d",
			t.shape, dimensions, t.shape.Size(), newShape.Size())
	}
	return &Tensor{shape: newShape, flat: t.flat}, nil
}

// Transpose implements backends.Backend.
func (Backend) Transpose(x any, permutation ...int) (any, error) {
	t, err := tensorOf(x)
	if err != nil {
		return nil, err
	}
	rank := t.shape.Rank()
	if len(permutation) != rank {
		return nil, errors.Errorf("Transpose: permutation %v has %d elements, tensor %s has rank %d",
			permutation, len(permutation), t.shape, rank)
	}
	seen := make([]bool, rank)
	for _, axis := range permutation {
		if axis < 0 || axis >= rank || seen[axis] {
			return nil, errors.Errorf("Transpose: %v is not a valid permutation of rank %d axes", permutation, rank)
		}
		seen[axis] = true
	}
	dims := t.shape.Dimensions
	newDims := xslices.Map(permutation, func(axis int) int { return dims[axis] })
	var flat any
	switch src := t.flat.(type) {
	case []float32:
		flat = transposeFlat(src, dims, permutation)
	case []float64:
		flat = transposeFlat(src, dims, permutation)
	case []int32:
		flat = transposeFlat(src, dims, permutation)
	case []int64:
		flat = transposeFlat(src, dims, permutation)
	case []float16.Float16:
		flat = transposeFlat(src, dims, permutation)
	default:
		return nil, errors.Errorf("Transpose: unsupported dtype %s", t.shape.DType)
	}
	return &Tensor{shape: shapes.Make(t.shape.DType, newDims...), flat: flat}, nil
}

// normalizeAxes validates and sorts the reduction axes.
func normalizeAxes(shape shapes.Shape, axes []int) ([]int, error) {
	sorted := xslices.Copy(axes)
	slices.Sort(sorted)
	for ii, axis := range sorted {
		if axis < 0 || axis >= shape.Rank() {
			return nil, errors.Errorf("axis %d is out of range for tensor %s", axis, shape)
		}
		if ii > 0 && sorted[ii-1] == axis {
			return nil, errors.Errorf("axis %d appears more than once in %v", axis, axes)
		}
	}
	return sorted, nil
}

// Reduce implements backends.Backend.
func (Backend) Reduce(x any, op backends.ReduceOpType, axes ...int) (any, error) {
	t, err := tensorOf(x)
	if err != nil {
		return nil, err
	}
	sorted, err := normalizeAxes(t.shape, axes)
	if err != nil {
		return nil, errors.WithMessage(err, "Reduce")
	}
	dims := t.shape.Dimensions
	outDims, _ := reduceDims(dims, sorted)
	var flat any
	switch src := t.flat.(type) {
	case []float32:
		flat, err = reduceFloat32(src, dims, sorted, op)
	case []float64:
		flat, err = reduceFloat64(src, dims, sorted, op)
	case []int32:
		flat, err = reduceInt(src, dims, sorted, op)
	case []int64:
		flat, err = reduceInt(src, dims, sorted, op)
	case []float16.Float16:
		var out32 []float32
		out32, err = reduceFloat32(f16ToF32(src), dims, sorted, op)
		if err == nil {
			flat = f32ToF16(out32)
		}
	default:
		return nil, errors.Errorf("Reduce: unsupported dtype %s", t.shape.DType)
	}
	if err != nil {
		return nil, errors.WithMessage(err, "Reduce")
	}
	return &Tensor{shape: shapes.Make(t.shape.DType, outDims...), flat: flat}, nil
}

// ReduceWith implements backends.CustomReducer. Values are promoted to float64, combined
// pairwise in axis order with fn, and converted back to x's dtype.
func (Backend) ReduceWith(x any, fn func(a, b float64) float64, axes ...int) (any, error) {
	t, err := tensorOf(x)
	if err != nil {
		return nil, err
	}
	sorted, err := normalizeAxes(t.shape, axes)
	if err != nil {
		return nil, errors.WithMessage(err, "ReduceWith")
	}
	dims := t.shape.Dimensions
	outDims, _ := reduceDims(dims, sorted)
	src, err := toFloat64(t.flat)
	if err != nil {
		return nil, errors.WithMessage(err, "ReduceWith")
	}
	out, err := reduceFlat(src, dims, sorted, fn, 0, false)
	if err != nil {
		return nil, errors.WithMessage(err, "ReduceWith")
	}
	flat, err := fromFloat64(out, t.flat)
	if err != nil {
		return nil, errors.WithMessage(err, "ReduceWith")
	}
	return &Tensor{shape: shapes.Make(t.shape.DType, outDims...), flat: flat}, nil
}

// Tile implements backends.Backend.
func (Backend) Tile(x any, axis int, dimension int) (any, error) {
	t, err := tensorOf(x)
	if err != nil {
		return nil, err
	}
	rank := t.shape.Rank()
	if axis < 0 || axis > rank {
		return nil, errors.Errorf("Tile: axis %d out of range for tensor %s (new axis positions go up to %d)", axis, t.shape, rank)
	}
	if dimension < 0 {
		return nil, errors.Errorf("Tile: invalid dimension %d for the new axis", dimension)
	}
	dims := t.shape.Dimensions
	newDims := make([]int, 0, rank+1)
	newDims = append(newDims, dims[:axis]...)
	newDims = append(newDims, dimension)
	newDims = append(newDims, dims[axis:]...)
	var flat any
	switch src := t.flat.(type) {
	case []float32:
		flat = tileFlat(src, dims, axis, dimension)
	case []float64:
		flat = tileFlat(src, dims, axis, dimension)
	case []int32:
		flat = tileFlat(src, dims, axis, dimension)
	case []int64:
		flat = tileFlat(src, dims, axis, dimension)
	case []float16.Float16:
		flat = tileFlat(src, dims, axis, dimension)
	default:
		return nil, errors.Errorf("Tile: unsupported dtype %s", t.shape.DType)
	}
	return &Tensor{shape: shapes.Make(t.shape.DType, newDims...), flat: flat}, nil
}

// Stack implements backends.Backend.
func (Backend) Stack(xs []any, axis int) (any, error) {
	if len(xs) == 0 {
		return nil, errors.Errorf("Stack: no tensors to stack")
	}
	ts := make([]*Tensor, len(xs))
	for ii, x := range xs {
		t, err := tensorOf(x)
		if err != nil {
			return nil, errors.WithMessagef(err, "Stack: tensor #%d", ii)
		}
		ts[ii] = t
		if !t.shape.Equal(ts[0].shape) {
			return nil, errors.Errorf("Stack: tensor #%d has shape %s, which differs from the first tensor's %s",
				ii, t.shape, ts[0].shape)
		}
	}
	first := ts[0]
	rank := first.shape.Rank()
	if axis < 0 || axis > rank {
		return nil, errors.Errorf("Stack: axis %d out of range for tensors %s (new axis positions go up to %d)", axis, first.shape, rank)
	}
	dims := first.shape.Dimensions
	newDims := make([]int, 0, rank+1)
	newDims = append(newDims, dims[:axis]...)
	newDims = append(newDims, len(ts))
	newDims = append(newDims, dims[axis:]...)
	var flat any
	switch first.flat.(type) {
	case []float32:
		flat = stackFlat(gatherFlats[float32](ts), dims, axis)
	case []float64:
		flat = stackFlat(gatherFlats[float64](ts), dims, axis)
	case []int32:
		flat = stackFlat(gatherFlats[int32](ts), dims, axis)
	case []int64:
		flat = stackFlat(gatherFlats[int64](ts), dims, axis)
	case []float16.Float16:
		flat = stackFlat(gatherFlats[float16.Float16](ts), dims, axis)
	default:
		return nil, errors.Errorf("Stack: unsupported dtype %s", first.shape.DType)
	}
	return &Tensor{shape: shapes.Make(first.shape.DType, newDims...), flat: flat}, nil
}

func gatherFlats[T Supported](ts []*Tensor) [][]T {
	return xslices.Map(ts, func(t *Tensor) []T { return t.flat.([]T) })
}

func f16ToF32(src []float16.Float16) []float32 {
	return xslices.Map(src, func(v float16.Float16) float32 { return v.Float32() })
}

func f32ToF16(src []float32) []float16.Float16 {
	return xslices.Map(src, float16.Fromfloat32)
}

func toFloat64(flat any) ([]float64, error) {
	switch src := flat.(type) {
	case []float64:
		return xslices.Copy(src), nil
	case []float32:
		return xslices.Map(src, func(v float32) float64 { return float64(v) }), nil
	case []int32:
		return xslices.Map(src, func(v int32) float64 { return float64(v) }), nil
	case []int64:
		return xslices.Map(src, func(v int64) float64 { return float64(v) }), nil
	case []float16.Float16:
		return xslices.Map(src, func(v float16.Float16) float64 { return float64(v.Float32()) }), nil
	}
	return nil, errors.Errorf("unsupported flat data type %T", flat)
}

// fromFloat64 converts values back to the element type of reference, which is only used for
// its type.
func fromFloat64(values []float64, reference any) (any, error) {
	switch reference.(type) {
	case []float64:
		return values, nil
	case []float32:
		return xslices.Map(values, func(v float64) float32 { return float32(v) }), nil
	case []int32:
		return xslices.Map(values, func(v float64) int32 { return int32(v) }), nil
	case []int64:
		return xslices.Map(values, func(v float64) int64 { return int64(v) }), nil
	case []float16.Float16:
		return xslices.Map(values, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) }), nil
	}
	return nil, errors.Errorf("unsupported flat data type %T", reference)
}
