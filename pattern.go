package einops

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The notation grammar:
//
//	pattern   := side "->" side
//	side      := group (" " group)*
//	group     := identifier | "(" identifier (" " identifier)* ")" | "..." | integer
//
// Identifiers are ASCII letters, digits and underscore, not starting with a digit. The
// literal `1` inserts/expects a singleton axis; other integer literals are anonymous axes
// whose legality depends on the call kind (see recipe.go). Parentheses denote an axis group
// that merges into / splits from a single dimension; nesting is not permitted. At most one
// ellipsis ("...") per side, standing for a variable number of unnamed axes.

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokLParen
	tokRParen
	tokEllipsis
	tokArrow
)

type token struct {
	kind  tokenKind
	text  string
	value int // Only for tokNumber.
	pos   int // Byte offset in the pattern, for error messages.
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// tokenize scans the notation string. It only recognizes the grammar's token set; anything
// else is a syntax error at the offending byte.
func tokenize(pattern string) ([]token, error) {
	var tokens []token
	ii := 0
	for ii < len(pattern) {
		c := pattern[ii]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			ii++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: ii})
			ii++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: ii})
			ii++
		case c == '-':
			if !strings.HasPrefix(pattern[ii:], "->") {
				return nil, syntaxErrorf(pattern, ii, "%q must start the arrow token \"->\"", "-")
			}
			tokens = append(tokens, token{kind: tokArrow, text: "->", pos: ii})
			ii += 2
		case c == '.':
			if !strings.HasPrefix(pattern[ii:], "...") {
				return nil, syntaxErrorf(pattern, ii, "%q must start an ellipsis token \"...\"", ".")
			}
			tokens = append(tokens, token{kind: tokEllipsis, text: "...", pos: ii})
			ii += 3
		case isDigit(c):
			start := ii
			for ii < len(pattern) && isDigit(pattern[ii]) {
				ii++
			}
			if ii < len(pattern) && isLetter(pattern[ii]) {
				return nil, syntaxErrorf(pattern, start, "axis names cannot start with a digit (%q)", pattern[start:ii+1])
			}
			value, err := strconv.Atoi(pattern[start:ii])
			if err != nil {
				return nil, syntaxErrorf(pattern, start, "invalid integer literal %q", pattern[start:ii])
			}
			tokens = append(tokens, token{kind: tokNumber, text: pattern[start:ii], value: value, pos: start})
		case isLetter(c):
			start := ii
			for ii < len(pattern) && (isLetter(pattern[ii]) || isDigit(pattern[ii])) {
				ii++
			}
			tokens = append(tokens, token{kind: tokIdent, text: pattern[start:ii], pos: start})
		default:
			return nil, syntaxErrorf(pattern, ii, "unexpected character %q", string(c))
		}
	}
	return tokens, nil
}

// axisKind discriminates the axis tokens of a parsed group.
type axisKind int

const (
	// axisName is a named axis ("b", "h", ...).
	axisName axisKind = iota

	// axisAnonymous is an integer literal: an unnamed axis of fixed size.
	axisAnonymous
)

type axis struct {
	kind axisKind
	name string // Only for axisName.
	size int    // Only for axisAnonymous.
	pos  int
}

// group is an ordered sequence of axes that occupies a single dimension: a one-axis group is
// a simple axis, a multi-axis group denotes splitting (on the input side) or merging (on the
// output side). An ellipsis group has ellipsis set and no axes.
type group struct {
	axes      []axis
	composite bool // Whether the group was parenthesized.
	ellipsis  bool
	pos       int
}

// sideExpr is one side of the pattern, either input or output.
type sideExpr struct {
	groups        []group
	ellipsisGroup int // Index into groups, or -1 if the side has no ellipsis.
}

func (s *sideExpr) hasEllipsis() bool { return s.ellipsisGroup >= 0 }

// namedAxes returns the named axes of the side, in order of appearance.
func (s *sideExpr) namedAxes() []string {
	var names []string
	for _, g := range s.groups {
		for _, a := range g.axes {
			if a.kind == axisName {
				names = append(names, a.name)
			}
		}
	}
	return names
}

// parsedPattern is the structured, immutable form of a notation string.
type parsedPattern struct {
	text   string
	input  sideExpr
	output sideExpr
}

// parsePattern tokenizes and parses the full two-sided notation.
func parsePattern(text string) (*parsedPattern, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	arrow := -1
	for ii, tok := range tokens {
		if tok.kind != tokArrow {
			continue
		}
		if arrow >= 0 {
			return nil, syntaxErrorf(text, tok.pos, "more than one \"->\" separator")
		}
		arrow = ii
	}
	if arrow < 0 {
		return nil, syntaxErrorf(text, len(text), "missing the \"->\" separator between input and output axes")
	}
	p := &parsedPattern{text: text}
	if p.input, err = parseSide(text, tokens[:arrow]); err != nil {
		return nil, err
	}
	if p.output, err = parseSide(text, tokens[arrow+1:]); err != nil {
		return nil, err
	}
	if err = checkDuplicates(text, &p.input, true); err != nil {
		return nil, err
	}
	if err = checkDuplicates(text, &p.output, false); err != nil {
		return nil, err
	}
	if p.output.hasEllipsis() && !p.input.hasEllipsis() {
		pos := p.output.groups[p.output.ellipsisGroup].pos
		return nil, syntaxErrorf(text, pos, "ellipsis on the output side requires an ellipsis on the input side")
	}
	return p, nil
}

// parseSide parses one side of the pattern, a sequence of groups.
func parseSide(text string, tokens []token) (sideExpr, error) {
	side := sideExpr{ellipsisGroup: -1}
	ii := 0
	for ii < len(tokens) {
		tok := tokens[ii]
		switch tok.kind {
		case tokIdent:
			side.groups = append(side.groups, group{axes: []axis{{kind: axisName, name: tok.text, pos: tok.pos}}, pos: tok.pos})
			ii++
		case tokNumber:
			if tok.value <= 0 {
				return side, syntaxErrorf(text, tok.pos, "anonymous axes must have positive size, got %d", tok.value)
			}
			side.groups = append(side.groups, group{axes: []axis{{kind: axisAnonymous, size: tok.value, pos: tok.pos}}, pos: tok.pos})
			ii++
		case tokEllipsis:
			if side.hasEllipsis() {
				return side, syntaxErrorf(text, tok.pos, "at most one ellipsis per side")
			}
			side.ellipsisGroup = len(side.groups)
			side.groups = append(side.groups, group{ellipsis: true, pos: tok.pos})
			ii++
		case tokLParen:
			g := group{composite: true, pos: tok.pos}
			ii++
			for ii < len(tokens) && tokens[ii].kind != tokRParen {
				inner := tokens[ii]
				switch inner.kind {
				case tokIdent:
					g.axes = append(g.axes, axis{kind: axisName, name: inner.text, pos: inner.pos})
				case tokNumber:
					if inner.value <= 0 {
						return side, syntaxErrorf(text, inner.pos, "anonymous axes must have positive size, got %d", inner.value)
					}
					g.axes = append(g.axes, axis{kind: axisAnonymous, size: inner.value, pos: inner.pos})
				case tokLParen:
					return side, syntaxErrorf(text, inner.pos, "nested parentheses are not permitted")
				case tokEllipsis:
					return side, syntaxErrorf(text, inner.pos, "ellipsis inside parentheses is not permitted")
				default:
					return side, syntaxErrorf(text, inner.pos, "unexpected token %q inside parentheses", inner.text)
				}
				ii++
			}
			if ii >= len(tokens) {
				return side, syntaxErrorf(text, tok.pos, "unbalanced parenthesis")
			}
			ii++ // Consume ')'.
			side.groups = append(side.groups, g)
		case tokRParen:
			return side, syntaxErrorf(text, tok.pos, "unbalanced parenthesis")
		default:
			return side, syntaxErrorf(text, tok.pos, "unexpected token %q", tok.text)
		}
	}
	return side, nil
}

// checkDuplicates rejects axis names used more than once on a side. On the input side that
// would denote a diagonal, which the planner's primitive set cannot realize; on the output
// side there is no defined semantic at all.
func checkDuplicates(text string, side *sideExpr, isInput bool) error {
	seen := make(map[string]bool)
	for _, g := range side.groups {
		for _, a := range g.axes {
			if a.kind != axisName {
				continue
			}
			if seen[a.name] {
				if isInput {
					return errors.Wrapf(ErrRepeatedAxis, "in pattern %q: axis %q appears more than once on the input side", text, a.name)
				}
				return syntaxErrorf(text, a.pos, "axis %q appears more than once on the output side", a.name)
			}
			seen[a.name] = true
		}
	}
	return nil
}
