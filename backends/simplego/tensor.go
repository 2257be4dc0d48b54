package simplego

import (
	"reflect"

	"github.com/gomlx/einops/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Supported are the Go element types the simplego backend operates on.
// Float16 is stored as github.com/x448/float16 values and computed in float32.
type Supported interface {
	float32 | float64 | int32 | int64 | float16.Float16
}

// Tensor is a dense row-major tensor owned by the caller.
//
// Tensors are logically immutable: every backend operation returns a new Tensor
// (Reshape shares the underlying flat data, since it's a pure re-labeling).
type Tensor struct {
	shape shapes.Shape

	// flat is always a slice of the Go type corresponding to shape.DType.
	flat any
}

// Shape returns the shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// Flat returns the underlying flat data slice, of the Go type corresponding to
// the tensor's DType. The slice must not be mutated while the tensor is in use.
func (t *Tensor) Flat() any { return t.flat }

// String pretty-prints the tensor's shape.
func (t *Tensor) String() string { return "simplego.Tensor" + t.shape.String() }

// FromFlat creates a Tensor with the given dimensions from a flat slice of values,
// which must have exactly the number of elements the dimensions require.
// The data is copied, so the caller keeps ownership of flat.
func FromFlat[T Supported](flat []T, dimensions ...int) (*Tensor, error) {
	shape := shapes.Make(dtypes.FromGoType(reflect.TypeFor[T]()), dimensions...)
	if len(flat) != shape.Size() {
		return nil, errors.Errorf("FromFlat: got %d values for shape %s, which requires %d", len(flat), shape, shape.Size())
	}
	data := make([]T, len(flat))
	copy(data, flat)
	return &Tensor{shape: shape, flat: data}, nil
}

// Zeros creates a zero-initialized Tensor of the given dimensions.
func Zeros[T Supported](dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.FromGoType(reflect.TypeFor[T]()), dimensions...)
	return &Tensor{shape: shape, flat: make([]T, shape.Size())}
}

// Data returns the flat data of t as a []T. It fails if T doesn't match the tensor's DType.
func Data[T Supported](t *Tensor) ([]T, error) {
	flat, ok := t.flat.([]T)
	if !ok {
		return nil, errors.Errorf("Data[%T]: tensor holds %s values", flat, t.shape.DType)
	}
	return flat, nil
}
