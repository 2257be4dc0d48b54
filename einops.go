// Package einops provides notation-driven tensor reshaping, reduction and repetition,
// following the einops pattern language: a pattern like "b h w c -> b c h w" names the
// axes of the input and describes the output in terms of those names, replacing chains
// of reshape/transpose/reduce calls with one readable expression.
//
// The three operations are:
//
//   - Rearrange: reorder, split and merge axes, without changing the number of elements.
//   - Reduce: additionally collapse axes that appear only on the input side, with sum,
//     mean, max, min, prod or a custom pairwise function (ReduceWith).
//   - Repeat: additionally introduce new axes, replicating data along them.
//
// Patterns support composite groups "(h w)", an ellipsis "..." standing for any number of
// batch axes, and singleton literals "1". Sizes that cannot be deduced from the input
// shape are given as hints:
//
//	patches, err := einops.Rearrange(img, "b (h ph) (w pw) c -> b (h w) (ph pw c)",
//		einops.Axis{"ph", 16}, einops.Axis{"pw", 16})
//
// Tensors are opaque values handled by a backend (see the backends package). The simplego
// backend operates on in-memory Go slices and is registered with a blank import:
//
//	import _ "github.com/gomlx/einops/backends/simplego"
//
// All operations have copy-like semantics: the input is never mutated, though the result
// may share underlying storage with it when no data movement was needed (a pure reshape).
// Parsing and planning are memoized per pattern in a bounded cache, so using
// the same pattern in a hot loop costs one map lookup plus the backend calls.
package einops

import (
	"github.com/gomlx/einops/backends"
	"github.com/pkg/errors"
)

// Axis is a size hint, binding an axis name of the pattern to a concrete size. Hints are
// required for axes whose size cannot be deduced from the input shape: the inner axes of
// a composite split and the new axes of a Repeat.
type Axis struct {
	Name string
	Size int
}

func hintsOf(pattern string, hints []Axis) (map[string]int, error) {
	if len(hints) == 0 {
		return nil, nil
	}
	m := make(map[string]int, len(hints))
	for _, h := range hints {
		if h.Name == "" {
			return nil, errors.Wrapf(ErrSyntax, "in pattern %q: size hint with empty axis name", pattern)
		}
		if _, found := m[h.Name]; found {
			return nil, errors.Wrapf(ErrSyntax, "in pattern %q: axis %q hinted more than once", pattern, h.Name)
		}
		m[h.Name] = h.Size
	}
	return m, nil
}

func (t *Transformer) apply(x any, pattern string, kind callKind, op backends.ReduceOpType,
	customFn func(a, b float64) float64, hints []Axis) (any, error) {
	backend, err := backends.ForTensor(x)
	if err != nil {
		return nil, err
	}
	shape, err := backend.Shape(x)
	if err != nil {
		return nil, errors.WithMessagef(err, "einops: backend %q failed to take the shape of the input", backend.Name())
	}
	hintsMap, err := hintsOf(pattern, hints)
	if err != nil {
		return nil, err
	}
	r, err := t.recipeFor(pattern, kind, shape.Rank(), hintsMap)
	if err != nil {
		return nil, err
	}
	plan, err := bind(r, shape.Dimensions, hintsMap)
	if err != nil {
		return nil, err
	}
	return execute(backend, x, plan, pattern, op, customFn)
}

// Rearrange reorders, splits and merges the axes of x according to the pattern. Every axis
// of the input must appear on the output side, and no new axes may be introduced; use
// Reduce or Repeat for those.
func (t *Transformer) Rearrange(x any, pattern string, hints ...Axis) (any, error) {
	return t.apply(x, pattern, kindRearrange, backends.ReduceOpUndefined, nil, hints)
}

// Reduce rearranges the axes of x and collapses those that appear only on the input side
// of the pattern, combining their elements with op.
func (t *Transformer) Reduce(x any, pattern string, op backends.ReduceOpType, hints ...Axis) (any, error) {
	if op <= backends.ReduceOpUndefined || op > backends.ReduceOpMean {
		return nil, errors.Wrapf(ErrSyntax, "in pattern %q: invalid reduction operation %d", pattern, op)
	}
	return t.apply(x, pattern, kindReduce, op, nil, hints)
}

// ReduceWith is Reduce with a custom pairwise combining function, applied in float64.
// fn must be associative and commutative; the order in which elements are combined is
// unspecified. The backend must implement backends.CustomReducer.
func (t *Transformer) ReduceWith(x any, pattern string, fn func(a, b float64) float64, hints ...Axis) (any, error) {
	if fn == nil {
		return nil, errors.Wrapf(ErrSyntax, "in pattern %q: nil reduction function", pattern)
	}
	return t.apply(x, pattern, kindReduce, backends.ReduceOpUndefined, fn, hints)
}

// Repeat rearranges the axes of x and replicates data along the new axes that appear only
// on the output side of the pattern. New named axes take their size from a hint.
func (t *Transformer) Repeat(x any, pattern string, hints ...Axis) (any, error) {
	return t.apply(x, pattern, kindRepeat, backends.ReduceOpUndefined, nil, hints)
}

// Rearrange reorders, splits and merges the axes of x according to the pattern.
//
// See Transformer.Rearrange. This package-level version uses a shared default Transformer.
func Rearrange(x any, pattern string, hints ...Axis) (any, error) {
	return defaultTransformer.Rearrange(x, pattern, hints...)
}

// Reduce rearranges the axes of x and collapses those that appear only on the input side
// of the pattern, combining their elements with op.
//
// See Transformer.Reduce. This package-level version uses a shared default Transformer.
func Reduce(x any, pattern string, op backends.ReduceOpType, hints ...Axis) (any, error) {
	return defaultTransformer.Reduce(x, pattern, op, hints...)
}

// ReduceWith is Reduce with a custom pairwise combining function, applied in float64.
//
// See Transformer.ReduceWith. This package-level version uses a shared default Transformer.
func ReduceWith(x any, pattern string, fn func(a, b float64) float64, hints ...Axis) (any, error) {
	return defaultTransformer.ReduceWith(x, pattern, fn, hints...)
}

// Repeat rearranges the axes of x and replicates data along the new axes that appear only
// on the output side of the pattern.
//
// See Transformer.Repeat. This package-level version uses a shared default Transformer.
func Repeat(x any, pattern string, hints ...Axis) (any, error) {
	return defaultTransformer.Repeat(x, pattern, hints...)
}

// ParseShape matches the shape of x against a one-sided pattern and returns the sizes of
// the named axes. An axis named "_" matches any size without being reported, an integer
// literal requires the dimension to have exactly that size, and an ellipsis skips any
// number of leading or middle dimensions. A composite group factors its dimension across
// its members: with at most one member of unknown size, that member's size is deduced
// from the dimension divided by the product of the literals.
//
//	sizes, err := einops.ParseShape(img, "b _ _ c")
//	// sizes == map[string]int{"b": 2, "c": 3}
//
//	sizes, err = einops.ParseShape(patches, "b (h 16)")
//	// h is bound to the second dimension divided by 16.
func ParseShape(x any, pattern string) (map[string]int, error) {
	backend, err := backends.ForTensor(x)
	if err != nil {
		return nil, err
	}
	shape, err := backend.Shape(x)
	if err != nil {
		return nil, errors.WithMessagef(err, "einops: backend %q failed to take the shape of the input", backend.Name())
	}
	tokens, err := tokenize(pattern)
	if err != nil {
		return nil, err
	}
	for _, tok := range tokens {
		if tok.kind == tokArrow {
			return nil, syntaxErrorf(pattern, tok.pos, "ParseShape takes a one-sided pattern, without \"->\"")
		}
	}
	side, err := parseSide(pattern, tokens)
	if err != nil {
		return nil, err
	}

	rank := shape.Rank()
	fixed := len(side.groups)
	if side.hasEllipsis() {
		fixed--
		if rank < fixed {
			return nil, errors.Wrapf(ErrAxisSizeConflict,
				"in pattern %q: shape %s has rank %d, but the pattern requires at least %d dimensions",
				pattern, shape, rank, fixed)
		}
	} else if rank != fixed {
		return nil, errors.Wrapf(ErrAxisSizeConflict,
			"in pattern %q: shape %s has rank %d, but the pattern describes %d dimensions",
			pattern, shape, rank, fixed)
	}

	sizes := make(map[string]int, fixed)
	dim := 0
	for _, g := range side.groups {
		if g.ellipsis {
			dim += rank - fixed
			continue
		}
		got := shape.Dimensions[dim]
		knownProd := 1
		var unknown *axis
		unknowns := 0
		for ii := range g.axes {
			a := &g.axes[ii]
			if a.kind == axisAnonymous {
				knownProd *= a.size
				continue
			}
			unknowns++
			unknown = a
		}
		switch {
		case unknowns == 0:
			if knownProd != got {
				return nil, errors.Wrapf(ErrAxisSizeConflict,
					"in pattern %q: dimension %d has size %d, but the pattern requires %d", pattern, dim, got, knownProd)
			}
		case unknowns > 1:
			return nil, errors.Wrapf(ErrAmbiguousAxisSize,
				"in pattern %q: dimension %d is matched by a group with %d axes of unknown size, only one can be deduced",
				pattern, dim, unknowns)
		case got%knownProd != 0:
			return nil, errors.Wrapf(ErrNonIntegerAxisSize,
				"in pattern %q: dimension %d has size %d, which is not divisible by %d, the product of the known sizes in its group",
				pattern, dim, got, knownProd)
		case unknown.name != "_":
			if _, found := sizes[unknown.name]; found {
				return nil, errors.Wrapf(ErrRepeatedAxis, "in pattern %q: axis %q appears more than once", pattern, unknown.name)
			}
			sizes[unknown.name] = got / knownProd
		}
		dim++
	}
	return sizes, nil
}
