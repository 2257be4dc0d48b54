// Package backends defines the interface an array-computation library needs to implement to
// execute the primitive operations planned by the einops package.
//
// The planner never performs elementwise arithmetic itself; it only sequences calls through
// the Backend interface. Each call is copy-like: it returns a new logical view or tensor and
// never mutates its input in place (a backend may use in-place optimizations internally as
// long as observed semantics are copy-like).
//
// Tensors are opaque `any` values owned by the caller; a Backend declares which concrete
// types it handles through Accepts, and the registry dispatches per tensor at call time.
//
// A backend that doesn't implement an operation for some dtype or shape can simply return an
// error for that call; the einops package surfaces it immediately, wrapped as a plan
// execution error, without retrying.
package backends

import (
	"github.com/gomlx/einops/types/shapes"
	"github.com/pkg/errors"
)

// Backend is the capability set a concrete array library must provide.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "simplego" for the pure Go reference backend.
	Name() string

	// Accepts reports whether x is a tensor type handled by this backend.
	// It is used by ForTensor to dispatch per concrete tensor type.
	Accepts(x any) bool

	// Shape returns the shape of the tensor x.
	Shape(x any) (shapes.Shape, error)

	// Reshape returns x reshaped to the given dimensions. The total element count must be
	// preserved; auto-scaling dimensions (set to -1) are not supported.
	Reshape(x any, dimensions ...int) (any, error)

	// Transpose permutes the axes of x: axis i of the result is axis permutation[i] of x.
	// permutation must hold each value in [0, rank) exactly once.
	Transpose(x any, permutation ...int) (any, error)

	// Reduce collapses the given axes of x, aggregating with the given operation.
	// The reduced axes are removed from the result's shape.
	Reduce(x any, op ReduceOpType, axes ...int) (any, error)

	// Tile inserts a new axis of the given dimension at position axis, replicating the
	// existing data along it. The result's rank is one higher than x's.
	Tile(x any, axis int, dimension int) (any, error)

	// Stack joins tensors of identical shape along a new leading axis at position axis.
	Stack(xs []any, axis int) (any, error)
}

// CustomReducer is optionally implemented by backends that can reduce with a
// caller-supplied combining function, enabling einops.ReduceWith.
//
// The function fn must be associative; values are combined in axis order.
type CustomReducer interface {
	// ReduceWith collapses the given axes of x, combining pairs of elements with fn.
	// Values are promoted to float64 for the combination and converted back to x's dtype.
	ReduceWith(x any, fn func(a, b float64) float64, axes ...int) (any, error)
}

// ReduceOpType selects among the basic types of reduction supported by Backend.Reduce.
type ReduceOpType int

const (
	// ReduceOpUndefined is an undefined value.
	ReduceOpUndefined ReduceOpType = iota

	// ReduceOpSum reduces by summing all elements being reduced.
	ReduceOpSum

	// ReduceOpProduct reduces by multiplying all elements being reduced.
	ReduceOpProduct

	// ReduceOpMax reduces by taking the maximum value.
	ReduceOpMax

	// ReduceOpMin reduces by taking the minimum value.
	ReduceOpMin

	// ReduceOpMean reduces by taking the mean of the elements.
	ReduceOpMean
)

// String implements fmt.Stringer. It returns the lowercase name used in the einops notation
// ("sum", "prod", "max", "min", "mean").
func (r ReduceOpType) String() string {
	switch r {
	case ReduceOpSum:
		return "sum"
	case ReduceOpProduct:
		return "prod"
	case ReduceOpMax:
		return "max"
	case ReduceOpMin:
		return "min"
	case ReduceOpMean:
		return "mean"
	default:
		return "undefined"
	}
}

// ReduceOpFromString converts the einops operation name ("sum", "mean", "max", "min", "prod")
// to the corresponding ReduceOpType.
func ReduceOpFromString(name string) (ReduceOpType, error) {
	switch name {
	case "sum":
		return ReduceOpSum, nil
	case "prod":
		return ReduceOpProduct, nil
	case "max":
		return ReduceOpMax, nil
	case "min":
		return ReduceOpMin, nil
	case "mean":
		return ReduceOpMean, nil
	}
	return ReduceOpUndefined, errors.Errorf("unknown reduction operation %q, valid values are sum, mean, max, min and prod", name)
}

var registered []Backend

// Register backend so that ForTensor can dispatch to it. Later registrations take priority
// over earlier ones for tensor types both accept.
//
// To be safe, call Register during initialization of a package -- the registry itself is not
// synchronized.
func Register(backend Backend) {
	registered = append(registered, backend)
}

// ForTensor returns the registered backend that accepts the given tensor value.
func ForTensor(x any) (Backend, error) {
	for ii := len(registered) - 1; ii >= 0; ii-- {
		if registered[ii].Accepts(x) {
			return registered[ii], nil
		}
	}
	if len(registered) == 0 {
		return nil, errors.Errorf(`no registered backends -- maybe import the reference one with import _ "github.com/gomlx/einops/backends/simplego"?`)
	}
	return nil, errors.Errorf("no registered backend accepts tensor of type %T", x)
}

// ByName returns the registered backend with the given name.
func ByName(name string) (Backend, error) {
	for ii := len(registered) - 1; ii >= 0; ii-- {
		if registered[ii].Name() == name {
			return registered[ii], nil
		}
	}
	return nil, errors.Errorf("no backend registered with name %q", name)
}
