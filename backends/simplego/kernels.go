package simplego

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gomlx/einops/backends"
	"github.com/gomlx/einops/types/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// transposeFlat materializes the permutation of axes given by perm: axis i of the output is
// axis perm[i] of the input. It walks the output linearly, keeping the source offset as an
// odometer over the permuted strides.
func transposeFlat[T any](src []T, dims []int, perm []int) []T {
	out := make([]T, len(src))
	if len(src) == 0 {
		return out
	}
	rank := len(dims)
	srcStrides := make([]int, rank)
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		srcStrides[axis] = stride
		stride *= dims[axis]
	}
	outDims := make([]int, rank)
	outSrcStrides := make([]int, rank) // stride in src of the axis at output position i.
	for ii, srcAxis := range perm {
		outDims[ii] = dims[srcAxis]
		outSrcStrides[ii] = srcStrides[srcAxis]
	}

	idx := make([]int, rank)
	srcOffset := 0
	for outOffset := range out {
		out[outOffset] = src[srcOffset]
		for axis := rank - 1; axis >= 0; axis-- {
			idx[axis]++
			srcOffset += outSrcStrides[axis]
			if idx[axis] < outDims[axis] {
				break
			}
			idx[axis] = 0
			srcOffset -= outSrcStrides[axis] * outDims[axis]
		}
	}
	return out
}

// tileFlat inserts a new axis of the given dimension at position axis, replicating the data
// along it. axis must be in [0, len(dims)].
func tileFlat[T any](src []T, dims []int, axis, dimension int) []T {
	outer := xslices.Product(dims[:axis])
	inner := xslices.Product(dims[axis:])
	out := make([]T, outer*dimension*inner)
	for o := 0; o < outer; o++ {
		block := src[o*inner : (o+1)*inner]
		for r := 0; r < dimension; r++ {
			copy(out[(o*dimension+r)*inner:], block)
		}
	}
	return out
}

// stackFlat joins the flat data of tensors with identical dims along a new axis.
func stackFlat[T any](srcs [][]T, dims []int, axis int) []T {
	outer := xslices.Product(dims[:axis])
	inner := xslices.Product(dims[axis:])
	out := make([]T, outer*len(srcs)*inner)
	for o := 0; o < outer; o++ {
		for r, src := range srcs {
			copy(out[(o*len(srcs)+r)*inner:], src[o*inner:(o+1)*inner])
		}
	}
	return out
}

// reduceDims splits dims into the kept output dimensions and the number of elements reduced
// per output cell. axes must be sorted, unique and within range -- checked by the caller.
func reduceDims(dims []int, axes []int) (outDims []int, reduceCount int) {
	reduced := make([]bool, len(dims))
	for _, axis := range axes {
		reduced[axis] = true
	}
	outDims = make([]int, 0, len(dims)-len(axes))
	reduceCount = 1
	for axis, dim := range dims {
		if reduced[axis] {
			reduceCount *= dim
		} else {
			outDims = append(outDims, dim)
		}
	}
	return
}

// trailingAxes reports whether axes are exactly the last len(axes) axes of a rank-rank shape.
func trailingAxes(rank int, axes []int) bool {
	for ii, axis := range axes {
		if axis != rank-len(axes)+ii {
			return false
		}
	}
	return true
}

// reduceFlat reduces the given (sorted) axes of src, combining pairs of values with combine.
// Each output cell is seeded with the first value that contributes to it, so combine doesn't
// need an identity element. It fails if a cell receives no contribution (reduction over a
// zero-sized axis) and combine has no identity (hasIdentity false); with hasIdentity true,
// cells without contributions are left at identity instead.
func reduceFlat[T any](src []T, dims []int, axes []int, combine func(a, b T) T, identity T, hasIdentity bool) ([]T, error) {
	outDims, reduceCount := reduceDims(dims, axes)
	outSize := xslices.Product(outDims)
	if outSize > 0 && reduceCount == 0 {
		if !hasIdentity {
			return nil, errors.Errorf("reduction over zero-sized axes %v of shape %v has no value to seed the result with", axes, dims)
		}
		return xslices.SliceWithValue(outSize, identity), nil
	}
	out := make([]T, outSize)
	if outSize == 0 {
		return out, nil
	}

	rank := len(dims)
	reduced := make([]bool, rank)
	for _, axis := range axes {
		reduced[axis] = true
	}
	// outStrides[axis] is how much the output offset moves per step of the source axis;
	// zero for reduced axes.
	outStrides := make([]int, rank)
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		if reduced[axis] {
			continue
		}
		outStrides[axis] = stride
		stride *= dims[axis]
	}

	seeded := make([]bool, outSize)
	idx := make([]int, rank)
	outOffset := 0
	for _, value := range src {
		if seeded[outOffset] {
			out[outOffset] = combine(out[outOffset], value)
		} else {
			out[outOffset] = value
			seeded[outOffset] = true
		}
		for axis := rank - 1; axis >= 0; axis-- {
			idx[axis]++
			outOffset += outStrides[axis]
			if idx[axis] < dims[axis] {
				break
			}
			idx[axis] = 0
			outOffset -= outStrides[axis] * dims[axis]
		}
	}
	return out, nil
}

// opKernel bundles the pairwise combiner for a reduction and, when one exists, its identity
// element (used when zero-sized axes leave cells without any contribution). Max and min have
// no identity over unbounded domains, so reductions by them over zero-sized axes fail.
type opKernel[T any] struct {
	combine     func(a, b T) T
	identity    T
	hasIdentity bool
}

// runKernel applies the kernel over the given axes and divides by the reduced element count
// for mean. A mean over zero elements fails for every dtype; for integer dtypes the final
// division truncates.
func runKernel[T float32 | float64 | int32 | int64](src []T, dims []int, axes []int, kernel opKernel[T], op backends.ReduceOpType) ([]T, error) {
	_, reduceCount := reduceDims(dims, axes)
	if op == backends.ReduceOpMean && reduceCount == 0 {
		return nil, errors.Errorf("mean over zero-sized axes %v of shape %v is undefined", axes, dims)
	}
	out, err := reduceFlat(src, dims, axes, kernel.combine, kernel.identity, kernel.hasIdentity)
	if err != nil {
		return nil, err
	}
	if op == backends.ReduceOpMean {
		for ii := range out {
			out[ii] = out[ii] / T(reduceCount)
		}
	}
	return out, nil
}

// reduceFloat32 uses the math32 comparisons for max/min, matching the NaN propagation of the
// float64 gonum kernels.
func reduceFloat32(src []float32, dims []int, axes []int, op backends.ReduceOpType) ([]float32, error) {
	var kernel opKernel[float32]
	switch op {
	case backends.ReduceOpSum, backends.ReduceOpMean:
		kernel = opKernel[float32]{combine: func(a, b float32) float32 { return a + b }, hasIdentity: true}
	case backends.ReduceOpProduct:
		kernel = opKernel[float32]{combine: func(a, b float32) float32 { return a * b }, identity: 1, hasIdentity: true}
	case backends.ReduceOpMax:
		kernel = opKernel[float32]{combine: math32.Max}
	case backends.ReduceOpMin:
		kernel = opKernel[float32]{combine: math32.Min}
	default:
		return nil, errors.Errorf("unsupported reduction operation %s", op)
	}
	return runKernel(src, dims, axes, kernel, op)
}

func reduceInt[T int32 | int64](src []T, dims []int, axes []int, op backends.ReduceOpType) ([]T, error) {
	var kernel opKernel[T]
	switch op {
	case backends.ReduceOpSum, backends.ReduceOpMean:
		kernel = opKernel[T]{combine: func(a, b T) T { return a + b }, hasIdentity: true}
	case backends.ReduceOpProduct:
		kernel = opKernel[T]{combine: func(a, b T) T { return a * b }, identity: 1, hasIdentity: true}
	case backends.ReduceOpMax:
		kernel = opKernel[T]{combine: func(a, b T) T { return max(a, b) }}
	case backends.ReduceOpMin:
		kernel = opKernel[T]{combine: func(a, b T) T { return min(a, b) }}
	default:
		return nil, errors.Errorf("unsupported reduction operation %s", op)
	}
	return runKernel(src, dims, axes, kernel, op)
}

// reduceFloat64 is the float64 reduction. When the reduced axes are the trailing ones, each
// output cell covers a contiguous block and the gonum kernels apply directly.
func reduceFloat64(src []float64, dims []int, axes []int, op backends.ReduceOpType) ([]float64, error) {
	_, reduceCount := reduceDims(dims, axes)
	if op == backends.ReduceOpMean && reduceCount == 0 {
		return nil, errors.Errorf("mean over zero-sized axes %v of shape %v is undefined", axes, dims)
	}
	if trailingAxes(len(dims), axes) && reduceCount > 0 {
		outDims, _ := reduceDims(dims, axes)
		out := make([]float64, xslices.Product(outDims))
		for ii := range out {
			block := src[ii*reduceCount : (ii+1)*reduceCount]
			switch op {
			case backends.ReduceOpSum:
				out[ii] = floats.Sum(block)
			case backends.ReduceOpProduct:
				out[ii] = floats.Prod(block)
			case backends.ReduceOpMax:
				out[ii] = floats.Max(block)
			case backends.ReduceOpMin:
				out[ii] = floats.Min(block)
			case backends.ReduceOpMean:
				out[ii] = floats.Sum(block) / float64(reduceCount)
			default:
				return nil, errors.Errorf("unsupported reduction operation %s", op)
			}
		}
		return out, nil
	}

	var kernel opKernel[float64]
	switch op {
	case backends.ReduceOpSum, backends.ReduceOpMean:
		kernel = opKernel[float64]{combine: func(a, b float64) float64 { return a + b }, hasIdentity: true}
	case backends.ReduceOpProduct:
		kernel = opKernel[float64]{combine: func(a, b float64) float64 { return a * b }, identity: 1, hasIdentity: true}
	case backends.ReduceOpMax:
		kernel = opKernel[float64]{combine: math.Max}
	case backends.ReduceOpMin:
		kernel = opKernel[float64]{combine: math.Min}
	default:
		return nil, errors.Errorf("unsupported reduction operation %s", op)
	}
	return runKernel(src, dims, axes, kernel, op)
}
