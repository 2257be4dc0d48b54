package einops

import (
	"fmt"

	"github.com/pkg/errors"
)

// callKind is the operation family a pattern is validated for: each family has different
// rules about which axes may appear on only one side.
type callKind int

const (
	kindRearrange callKind = iota
	kindReduce
	kindRepeat
)

func (k callKind) String() string {
	switch k {
	case kindRearrange:
		return "Rearrange"
	case kindReduce:
		return "Reduce"
	case kindRepeat:
		return "Repeat"
	}
	return "unknown"
}

// inAxis is one elementary axis of the input, after composite groups were flattened and the
// ellipsis expanded. Literal `1` axes are dropped (they carry no data), so every inAxis maps
// to one dimension of the split tensor.
type inAxis struct {
	name    string // Synthesized ("...0", "!2") for ellipsis and anonymous axes.
	known   int    // Size fixed by an integer literal; 0 when it must be deduced from the shape.
	reduced bool
}

// outAxis is one elementary axis of the output. Either it maps to an input elementary axis
// (fromElem >= 0) or it is a new axis introduced for repetition (fromElem == -1, with size
// taken from a literal or a size hint).
type outAxis struct {
	fromElem int
	name     string // Empty for anonymous axes.
	size     int    // Only for new axes: literal value, or 0 when it comes from a hint.
	pos      int
}

// recipe is the cached, structural part of a transformation: everything that can be derived
// from (pattern, call kind, input rank, size hints) without looking at the concrete
// dimensions. bind (plan.go) turns it into a concrete operation plan for a shape.
type recipe struct {
	pattern *parsedPattern
	kind    callKind

	elemIn   []inAxis
	inGroups [][]int // Per input dimension, the elemIn indices it splits into.

	outElems  []outAxis
	outGroups [][]int // Per output dimension, the outElems indices it merges.

	// kept lists the elemIn indices that survive to the output, in output elementary order;
	// reduced lists the ones that don't, in input order. The transpose permutation after the
	// split reshape is the concatenation of the two, moving reduced axes to the trailing
	// positions where the single reduce step collapses them.
	kept    []int
	reduced []int
}

// buildRecipe validates the pattern for the call kind and input rank, expands the ellipsis,
// and derives the structural recipe. hints are only consulted for validation here (unknown
// names, repeat without a size); sizes are resolved later, against the concrete shape.
func buildRecipe(p *parsedPattern, kind callKind, rank int, hints map[string]int) (*recipe, error) {
	r := &recipe{pattern: p, kind: kind}

	// The ellipsis consumes the dimensions not matched by named groups.
	ellipsisRank := 0
	if p.input.hasEllipsis() {
		ellipsisRank = rank - (len(p.input.groups) - 1)
		if ellipsisRank < 0 {
			return nil, errors.Wrapf(ErrAxisSizeConflict,
				"pattern %q expects at least %d dimensions, tensor has rank %d",
				p.text, len(p.input.groups)-1, rank)
		}
	} else if len(p.input.groups) != rank {
		return nil, errors.Wrapf(ErrAxisSizeConflict,
			"pattern %q expects %d dimensions, tensor has rank %d", p.text, len(p.input.groups), rank)
	}

	outputNames := make(map[string]bool)
	for _, name := range p.output.namedAxes() {
		outputNames[name] = true
	}
	inputNames := make(map[string]bool)

	// Flatten the input side into elementary axes.
	elemByName := make(map[string]int)
	for _, g := range p.input.groups {
		if g.ellipsis {
			for ii := 0; ii < ellipsisRank; ii++ {
				name := fmt.Sprintf("...%d", ii)
				idx := len(r.elemIn)
				elemByName[name] = idx
				r.elemIn = append(r.elemIn, inAxis{name: name})
				r.inGroups = append(r.inGroups, []int{idx})
			}
			continue
		}
		var members []int
		for _, a := range g.axes {
			switch {
			case a.kind == axisAnonymous && a.size == 1:
				// Carries no data; checked by the group's size factoring, then dropped.
				continue
			case a.kind == axisAnonymous:
				if kind != kindReduce {
					return nil, syntaxErrorf(p.text, a.pos,
						"non-unitary anonymous axis %d is not supported on the input side of %s", a.size, kind)
				}
				members = append(members, len(r.elemIn))
				r.elemIn = append(r.elemIn, inAxis{name: fmt.Sprintf("!%d", len(r.elemIn)), known: a.size, reduced: true})
			default:
				inputNames[a.name] = true
				elemByName[a.name] = len(r.elemIn)
				members = append(members, len(r.elemIn))
				r.elemIn = append(r.elemIn, inAxis{name: a.name})
			}
		}
		r.inGroups = append(r.inGroups, members)
	}

	// Input axes absent from the output are reduced for Reduce, and an error otherwise.
	outputHasEllipsis := p.output.hasEllipsis()
	for ii := range r.elemIn {
		e := &r.elemIn[ii]
		if e.reduced {
			continue
		}
		isEllipsisAxis := len(e.name) > 3 && e.name[:3] == "..."
		covered := outputNames[e.name] || (isEllipsisAxis && outputHasEllipsis)
		if covered {
			continue
		}
		if kind != kindReduce {
			what := fmt.Sprintf("axis %q", e.name)
			if isEllipsisAxis {
				what = "the ellipsis"
			}
			return nil, errors.Wrapf(ErrUnaccountedAxis,
				"in pattern %q: %s is dropped from the output without a declared reduction (use Reduce)", p.text, what)
		}
		e.reduced = true
	}

	// Build the output elementary axes.
	for _, g := range p.output.groups {
		if g.ellipsis {
			for ii := 0; ii < ellipsisRank; ii++ {
				name := fmt.Sprintf("...%d", ii)
				r.outGroups = append(r.outGroups, []int{len(r.outElems)})
				r.outElems = append(r.outElems, outAxis{fromElem: elemByName[name], name: name})
			}
			continue
		}
		var members []int
		for _, a := range g.axes {
			switch {
			case a.kind == axisAnonymous:
				if a.size != 1 && kind != kindRepeat {
					return nil, syntaxErrorf(p.text, a.pos,
						"non-unitary anonymous axis %d on the output side requires Repeat", a.size)
				}
				members = append(members, len(r.outElems))
				r.outElems = append(r.outElems, outAxis{fromElem: -1, size: a.size, pos: a.pos})
			case inputNames[a.name]:
				members = append(members, len(r.outElems))
				r.outElems = append(r.outElems, outAxis{fromElem: elemByName[a.name], name: a.name, pos: a.pos})
			default:
				// The axis is new. Only Repeat introduces axes, and only with a known size.
				if kind != kindRepeat {
					return nil, errors.Wrapf(ErrMissingAxisSize,
						"in pattern %q: axis %q only appears on the output side (use Repeat to introduce axes)",
						p.text, a.name)
				}
				if _, found := hints[a.name]; !found {
					return nil, errors.Wrapf(ErrMissingAxisSize,
						"in pattern %q: new axis %q requires a size hint", p.text, a.name)
				}
				members = append(members, len(r.outElems))
				r.outElems = append(r.outElems, outAxis{fromElem: -1, name: a.name, pos: a.pos})
			}
		}
		r.outGroups = append(r.outGroups, members)
	}

	// Hints must name axes the pattern mentions.
	for name := range hints {
		if !inputNames[name] && !outputNames[name] {
			return nil, errors.Wrapf(ErrSyntax,
				"in pattern %q: size given for axis %q, which the pattern does not mention", p.text, name)
		}
	}

	// Transpose order: kept axes in output elementary order, then reduced axes.
	for _, e := range r.outElems {
		if e.fromElem >= 0 {
			r.kept = append(r.kept, e.fromElem)
		}
	}
	for ii, e := range r.elemIn {
		if e.reduced {
			r.reduced = append(r.reduced, ii)
		}
	}
	return r, nil
}
