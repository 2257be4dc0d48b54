package einops

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/einops/backends"
	"github.com/pkg/errors"
)

type stepKind int

const (
	stepReshape stepKind = iota
	stepTranspose
	stepReduce
	stepTile
)

// step is one primitive backend call. Which field is meaningful depends on the kind.
type step struct {
	kind stepKind
	dims []int // stepReshape: target dimensions.
	perm []int // stepTranspose: axes permutation.
	axes []int // stepReduce: trailing axes to collapse.
	axis int   // stepTile: position of the new axis.
	size int   // stepTile: dimension of the new axis.
}

// opPlan is the ordered sequence of primitive operations realizing a pattern against one
// concrete input shape. It is immutable once built and holds no tensor data, so it can be
// executed against any backend.
//
// The step order is fixed: split-reshape, transpose (reduced axes moved to the trailing
// positions), one reduce, tiles for introduced axes, merge-reshape. No-op steps are elided,
// and the transpose always precedes the reshape that depends on it, so backends that support
// strided views never materialize more than necessary.
type opPlan struct {
	steps      []step
	outputDims []int
}

func displayName(e inAxis) string {
	if e.name != "" && e.name[0] == '!' {
		return strconv.Itoa(e.known)
	}
	return e.name
}

// bind resolves the recipe's axis sizes against the concrete input dimensions and the size
// hints, and materializes the operation plan.
func bind(r *recipe, dims []int, hints map[string]int) (*opPlan, error) {
	p := r.pattern

	// Start from literals and hints.
	sizes := make([]int, len(r.elemIn))
	for ii, e := range r.elemIn {
		sizes[ii] = -1
		if e.known > 0 {
			sizes[ii] = e.known
		} else if hinted, found := hints[e.name]; found {
			if hinted < 0 {
				return nil, errors.Wrapf(ErrSyntax, "in pattern %q: axis %q hinted with negative size %d", p.text, e.name, hinted)
			}
			sizes[ii] = hinted
		}
	}

	// Factor each input dimension across its group's elementary axes.
	for dim, members := range r.inGroups {
		total := dims[dim]
		knownProd := 1
		unknown := -1
		for _, member := range members {
			if sizes[member] < 0 {
				if unknown >= 0 {
					return nil, errors.Wrapf(ErrAmbiguousAxisSize,
						"in pattern %q: axes %q and %q in the same group both have unknown size, provide a size hint for one of them",
						p.text, displayName(r.elemIn[unknown]), displayName(r.elemIn[member]))
				}
				unknown = member
				continue
			}
			knownProd *= sizes[member]
		}
		switch {
		case unknown < 0:
			if knownProd != total {
				names := make([]string, 0, len(members))
				for _, member := range members {
					names = append(names, displayName(r.elemIn[member])+"="+strconv.Itoa(sizes[member]))
				}
				return nil, errors.Wrapf(ErrAxisSizeConflict,
					"in pattern %q: dimension %d has size %d but its axes (%s) multiply to %d",
					p.text, dim, total, strings.Join(names, " "), knownProd)
			}
		case knownProd == 0:
			return nil, errors.Wrapf(ErrAmbiguousAxisSize,
				"in pattern %q: axis %q cannot be deduced from zero-sized dimension %d",
				p.text, displayName(r.elemIn[unknown]), dim)
		case total%knownProd != 0:
			return nil, errors.Wrapf(ErrNonIntegerAxisSize,
				"in pattern %q: dimension %d has size %d, which is not divisible by %d, the product of the known axis sizes in its group",
				p.text, dim, total, knownProd)
		default:
			sizes[unknown] = total / knownProd
		}
	}

	// Sizes of axes introduced by the output side.
	outSizes := make([]int, len(r.outElems))
	for ii, e := range r.outElems {
		switch {
		case e.fromElem >= 0:
			outSizes[ii] = sizes[e.fromElem]
		case e.name == "":
			outSizes[ii] = e.size
		default:
			hinted, found := hints[e.name]
			if !found {
				return nil, errors.Wrapf(ErrMissingAxisSize, "in pattern %q: new axis %q requires a size hint", p.text, e.name)
			}
			if hinted < 0 {
				return nil, errors.Wrapf(ErrSyntax, "in pattern %q: axis %q hinted with negative size %d", p.text, e.name, hinted)
			}
			outSizes[ii] = hinted
		}
	}

	plan := &opPlan{}

	// Split composite input groups into elementary axes.
	splitDims := make([]int, len(r.elemIn))
	for ii := range r.elemIn {
		splitDims[ii] = sizes[ii]
	}
	if !slices.Equal(splitDims, dims) {
		plan.steps = append(plan.steps, step{kind: stepReshape, dims: splitDims})
	}

	// Reorder: output order first, reduced axes trailing.
	perm := make([]int, 0, len(r.elemIn))
	perm = append(perm, r.kept...)
	perm = append(perm, r.reduced...)
	identity := true
	for ii, axis := range perm {
		if ii != axis {
			identity = false
			break
		}
	}
	if !identity {
		plan.steps = append(plan.steps, step{kind: stepTranspose, perm: perm})
	}

	// Collapse the reduced axes, now trailing, in a single pass.
	if len(r.reduced) > 0 {
		axes := make([]int, len(r.reduced))
		for ii := range axes {
			axes[ii] = len(r.kept) + ii
		}
		plan.steps = append(plan.steps, step{kind: stepReduce, axes: axes})
	}

	// Introduce the new axes by tiling. Singleton insertions carry no data and are folded
	// into the final reshape instead.
	current := make([]int, 0, len(r.outElems))
	for ii, e := range r.outElems {
		if e.fromElem >= 0 {
			current = append(current, outSizes[ii])
			continue
		}
		if outSizes[ii] == 1 {
			continue
		}
		plan.steps = append(plan.steps, step{kind: stepTile, axis: len(current), size: outSizes[ii]})
		current = append(current, outSizes[ii])
	}

	// Merge output groups (and insert singletons).
	finalDims := make([]int, len(r.outGroups))
	for ii, members := range r.outGroups {
		total := 1
		for _, member := range members {
			total *= outSizes[member]
		}
		finalDims[ii] = total
	}
	if !slices.Equal(finalDims, current) {
		plan.steps = append(plan.steps, step{kind: stepReshape, dims: finalDims})
	}
	plan.outputDims = finalDims
	return plan, nil
}

// execute runs the plan's steps through the backend. op selects the reduction for stepReduce
// steps; when customFn is non-nil it is used instead, through the backend's CustomReducer
// capability. Backend failures are wrapped as ErrPlanExecution and never retried.
func execute(backend backends.Backend, x any, plan *opPlan, pattern string, op backends.ReduceOpType, customFn func(a, b float64) float64) (any, error) {
	var err error
	for _, s := range plan.steps {
		switch s.kind {
		case stepReshape:
			x, err = backend.Reshape(x, s.dims...)
		case stepTranspose:
			x, err = backend.Transpose(x, s.perm...)
		case stepReduce:
			if customFn != nil {
				reducer, ok := backend.(backends.CustomReducer)
				if !ok {
					return nil, errors.Wrapf(ErrPlanExecution,
						"in pattern %q: backend %q does not support custom reduction functions", pattern, backend.Name())
				}
				x, err = reducer.ReduceWith(x, customFn, s.axes...)
			} else {
				x, err = backend.Reduce(x, op, s.axes...)
			}
		case stepTile:
			x, err = backend.Tile(x, s.axis, s.size)
		}
		if err != nil {
			return nil, errors.Wrapf(ErrPlanExecution, "in pattern %q: backend %q failed: %v", pattern, backend.Name(), err)
		}
	}
	return x, nil
}
