// Package restx parses the supported regex subset into a transition AST:
// literals, dot, alternation, concatenation, repetition, and non-negated
// character classes with ranges and unions. Negated classes, anchors, and
// flags are rejected.
package restx

import (
	"fmt"

	"github.com/aledsdavies/configmaton/internal/cerrors"
)

// Node is one node of a parsed regex's transition AST.
type Node interface {
	isNode()
}

// Range matches a single byte in [Lo, Hi] (a literal has Lo == Hi; '.' is
// Range{0, 255}).
type Range struct{ Lo, Hi byte }

// Alternation matches A or B.
type Alternation struct{ A, B Node }

// Concatenation matches A followed by B.
type Concatenation struct{ A, B Node }

// Repetition matches A zero or more times.
type Repetition struct{ A Node }

// Epsilon matches the empty string.
type Epsilon struct{}

func (Range) isNode()         {}
func (Alternation) isNode()   {}
func (Concatenation) isNode() {}
func (Repetition) isNode()    {}
func (Epsilon) isNode()       {}

// Parse lowers a regex string to a Node, or a *cerrors.Error of kind
// RegexInvalid if it uses a construct outside the supported subset.
func Parse(pattern string) (Node, error) {
	p := &parser{src: []byte(pattern)}
	n, err := p.parseAlt()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.src) {
		return nil, invalid(p, "unexpected %q", p.src[p.pos])
	}
	return n, nil
}

type parser struct {
	src []byte
	pos int
}

func invalid(p *parser, format string, args ...any) error {
	return cerrors.Newf(cerrors.RegexInvalid, "regex: "+format+" (at byte %d)", append(args, p.pos)...)
}

func (p *parser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) at(c byte) bool {
	b, ok := p.peek()
	return ok && b == c
}

// parseAlt := concat ('|' concat)*
func (p *parser) parseAlt() (Node, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.at('|') {
		p.pos++
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = Alternation{A: left, B: right}
	}
	return left, nil
}

// parseConcat := rep*
func (p *parser) parseConcat() (Node, error) {
	var result Node
	for {
		if _, ok := p.peek(); !ok {
			break
		}
		if p.at('|') || p.at(')') {
			break
		}
		n, err := p.parseRep()
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = n
		} else {
			result = Concatenation{A: result, B: n}
		}
	}
	if result == nil {
		return Epsilon{}, nil
	}
	return result, nil
}

// parseRep := atom ('*' | '+' | '?')*
func (p *parser) parseRep() (Node, error) {
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		b, ok := p.peek()
		if !ok {
			return atom, nil
		}
		switch b {
		case '*':
			p.pos++
			atom = Repetition{A: atom}
		case '+':
			p.pos++
			atom = Concatenation{A: atom, B: Repetition{A: atom}}
		case '?':
			p.pos++
			atom = Alternation{A: atom, B: Epsilon{}}
		default:
			return atom, nil
		}
	}
}

func (p *parser) parseAtom() (Node, error) {
	b, ok := p.peek()
	if !ok {
		return nil, invalid(p, "unexpected end of pattern")
	}
	switch b {
	case '^', '$':
		return nil, invalid(p, "anchors are not supported")
	case '(':
		p.pos++
		if p.at('?') {
			return nil, invalid(p, "flags/non-capturing groups are not supported")
		}
		n, err := p.parseAlt()
		if err != nil {
			return nil, err
		}
		if !p.at(')') {
			return nil, invalid(p, "unterminated group")
		}
		p.pos++
		return n, nil
	case '.':
		p.pos++
		return Range{Lo: 0, Hi: 255}, nil
	case '[':
		return p.parseClass()
	case '\\':
		p.pos++
		c, ok := p.peek()
		if !ok {
			return nil, invalid(p, "trailing backslash")
		}
		p.pos++
		return Range{Lo: c, Hi: c}, nil
	case '*', '+', '?', '|', ')':
		return nil, invalid(p, "unexpected %q", b)
	default:
		p.pos++
		return Range{Lo: b, Hi: b}, nil
	}
}

// parseClass parses a non-negated bracket expression into a union of
// Ranges, rejecting a leading '^'.
func (p *parser) parseClass() (Node, error) {
	p.pos++ // consume '['
	if p.at('^') {
		return nil, invalid(p, "negated character classes are not supported")
	}
	var items []Node
	first := true
	for {
		b, ok := p.peek()
		if !ok {
			return nil, invalid(p, "unterminated character class")
		}
		if b == ']' && !first {
			p.pos++
			break
		}
		first = false
		lo := b
		if b == '\\' {
			p.pos++
			lo, ok = p.peek()
			if !ok {
				return nil, invalid(p, "trailing backslash in character class")
			}
		}
		p.pos++
		hi := lo
		if p.at('-') {
			save := p.pos
			p.pos++
			if nb, ok := p.peek(); ok && nb != ']' {
				hi = nb
				p.pos++
			} else {
				p.pos = save
			}
		}
		if lo > hi {
			return nil, invalid(p, "invalid range %q-%q", lo, hi)
		}
		items = append(items, Range{Lo: lo, Hi: hi})
	}
	if len(items) == 0 {
		return nil, invalid(p, "empty character class")
	}
	result := items[0]
	for _, it := range items[1:] {
		result = Alternation{A: result, B: it}
	}
	return result, nil
}

// String renders n for diagnostics/tests.
func String(n Node) string {
	switch v := n.(type) {
	case Range:
		if v.Lo == v.Hi {
			return fmt.Sprintf("%q", v.Lo)
		}
		return fmt.Sprintf("[%q-%q]", v.Lo, v.Hi)
	case Alternation:
		return fmt.Sprintf("(%s|%s)", String(v.A), String(v.B))
	case Concatenation:
		return fmt.Sprintf("%s%s", String(v.A), String(v.B))
	case Repetition:
		return fmt.Sprintf("(%s)*", String(v.A))
	case Epsilon:
		return "ε"
	default:
		return "?"
	}
}
