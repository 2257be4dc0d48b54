package einops

import "github.com/pkg/errors"

// The error taxonomy of the package. Every failure returned by Rearrange, Reduce, ReduceWith,
// Repeat and ParseShape wraps exactly one of these sentinels, so callers can classify with
// errors.Is; messages always echo the offending pattern and, where applicable, the axis name
// and the conflicting sizes.
var (
	// ErrSyntax indicates a malformed notation string: unbalanced or nested parentheses,
	// invalid identifiers, a missing or duplicated "->", more than one ellipsis per side,
	// repeated names on the output side, or an axis-size hint naming an axis the pattern
	// never mentions.
	ErrSyntax = errors.New("pattern syntax error")

	// ErrMissingAxisSize indicates an axis that appears only on the output side without its
	// size being deducible: Repeat without a size hint for it, or Rearrange/Reduce where new
	// axes cannot be introduced at all.
	ErrMissingAxisSize = errors.New("missing axis size")

	// ErrUnaccountedAxis indicates an input axis dropped from the output without a declared
	// reduction: Rearrange and Repeat never discard axes.
	ErrUnaccountedAxis = errors.New("unaccounted axis")

	// ErrRepeatedAxis indicates an axis name used more than once on the input side.
	// Diagonals are not supported by the planner's primitive set.
	ErrRepeatedAxis = errors.New("unsupported repeated axis")

	// ErrNonIntegerAxisSize indicates a composite group whose total dimension is not evenly
	// divisible by the product of its known axis sizes.
	ErrNonIntegerAxisSize = errors.New("non-integer axis size")

	// ErrAmbiguousAxisSize indicates a composite group with more than one axis of unknown
	// size, or a zero-sized group whose known sizes can't pin down the unknown.
	ErrAmbiguousAxisSize = errors.New("ambiguous axis size")

	// ErrAxisSizeConflict indicates sizes that disagree: a hint contradicted by the tensor's
	// shape, a composite group whose known sizes don't multiply to its dimension, or a
	// pattern whose axis count doesn't match the tensor's rank.
	ErrAxisSizeConflict = errors.New("axis size conflict")

	// ErrPlanExecution wraps a backend-reported failure during a primitive call. It is never
	// retried: tensor backends are assumed to fail deterministically for a given
	// shape/pattern pair.
	ErrPlanExecution = errors.New("plan execution error")
)

// syntaxErrorf builds an ErrSyntax mentioning the pattern and the byte position of the
// offending token.
func syntaxErrorf(pattern string, pos int, format string, args ...any) error {
	err := errors.Errorf(format, args...)
	return errors.Wrapf(ErrSyntax, "in pattern %q at position %d: %s", pattern, pos, err.Error())
}
