package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Compile parses a JSONPath expression string into an *Expression.
//
// The expression must start with "$"; bare "$" is valid and denotes a
// root-only query. Filter function calls are type-checked transitively
// through ValidateFunctionCall while parsing filter expressions.
func Compile(expr string) (*Expression, error) {
	if expr == "" {
		return nil, fmt.Errorf("jsonpath: empty expression")
	}
	if expr[0] != '$' {
		return nil, fmt.Errorf("jsonpath: expression must start with '$'")
	}

	p := &parser{src: expr, pos: 1}
	var selectors []Selector
	for p.pos < len(p.src) {
		sel, err := p.parseSegment()
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, sel...)
	}

	recursiveStart := -1
	for i, s := range selectors {
		if s.Kind == SelectorRecursiveDescent {
			recursiveStart = i
			break
		}
	}

	score := complexityScore(selectors)
	isArrayStream := false
	if n := len(selectors); n > 0 {
		switch selectors[n-1].Kind {
		case SelectorWildcard, SelectorSlice, SelectorFilter:
			isArrayStream = true
		}
	}

	return &Expression{
		Raw:                   expr,
		Selectors:             selectors,
		RecursiveDescentStart: recursiveStart,
		ComplexityScore:       score,
		IsArrayStream:         isArrayStream,
	}, nil
}

// complexityScore sums a weight per compiled selector: recursive descent
// = 50, wildcard = 10, filter = 20, slice = 5 + 2, index/child/union = 2.
// Weights follow the selector kind, not its spelling: a dot-notation child
// counts 2 just like a bracketed one, and a bracketed wildcard or filter
// adds nothing for its bracket. The sum saturates at math.MaxUint32 so a
// pathological expression can't overflow the score.
func complexityScore(selectors []Selector) uint32 {
	var total uint64
	for _, s := range selectors {
		switch s.Kind {
		case SelectorRecursiveDescent:
			total += 50
		case SelectorWildcard:
			total += 10
		case SelectorFilter:
			total += 20
		case SelectorSlice:
			total += 5
			total += 2 // also a bracket selector
		case SelectorIndex, SelectorChild, SelectorUnion:
			total += 2
		}
		if total > 0xFFFFFFFF {
			return 0xFFFFFFFF
		}
	}
	if total > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(total)
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

// parseSegment parses one "." or ".." or "[...]" segment, possibly
// returning multiple Selectors (a union yields the union plus, in
// recursive-descent form, the descent marker first).
func (p *parser) parseSegment() ([]Selector, error) {
	switch {
	case strings.HasPrefix(p.src[p.pos:], ".."):
		p.pos += 2
		return p.parseDescendant()
	case p.peek() == '.':
		p.pos++
		return p.parseDotChild()
	case p.peek() == '[':
		p.pos++
		sel, err := p.parseSelectorList()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		return sel, nil
	default:
		return nil, fmt.Errorf("jsonpath: unexpected character %q at %d", p.peek(), p.pos)
	}
}

func (p *parser) parseDotChild() ([]Selector, error) {
	if p.peek() == '*' {
		p.pos++
		return []Selector{{Kind: SelectorWildcard}}, nil
	}
	name, err := p.parseIdentifierOrQuoted()
	if err != nil {
		return nil, err
	}
	return []Selector{{Kind: SelectorChild, Name: name}}, nil
}

func (p *parser) parseDescendant() ([]Selector, error) {
	marker := Selector{Kind: SelectorRecursiveDescent}
	switch {
	case p.peek() == '*':
		p.pos++
		return []Selector{marker, {Kind: SelectorWildcard}}, nil
	case p.peek() == '[':
		p.pos++
		sel, err := p.parseSelectorList()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		return append([]Selector{marker}, sel...), nil
	default:
		name, err := p.parseIdentifierOrQuoted()
		if err != nil {
			return nil, err
		}
		return []Selector{marker, {Kind: SelectorChild, Name: name}}, nil
	}
}

// parseSelectorList parses the comma-separated selector-list inside
// brackets, returning a single Selector (direct) or, for 2+ members, a
// SelectorUnion wrapping them all. A union's nodelist is the concatenation
// of its members' nodelists in order.
func (p *parser) parseSelectorList() ([]Selector, error) {
	var members []Selector
	for {
		m, err := p.parseOneSelector()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			p.skipSpace()
			continue
		}
		break
	}
	if len(members) == 1 {
		return members, nil
	}
	return []Selector{{Kind: SelectorUnion, Union: members}}, nil
}

func (p *parser) parseOneSelector() (Selector, error) {
	p.skipSpace()
	switch {
	case p.peek() == '*':
		p.pos++
		return Selector{Kind: SelectorWildcard}, nil
	case p.peek() == '?':
		p.pos++
		fe, err := p.parseFilterExpr()
		if err != nil {
			return Selector{}, err
		}
		return Selector{Kind: SelectorFilter, Filter: fe}, nil
	case p.peek() == '\'' || p.peek() == '"':
		name, err := p.parseQuotedString()
		if err != nil {
			return Selector{}, err
		}
		return Selector{Kind: SelectorChild, Name: name}, nil
	case isDigit(p.peek()) || p.peek() == '-':
		return p.parseIndexOrSlice()
	case p.peek() == ':':
		return p.parseIndexOrSlice()
	default:
		return Selector{}, fmt.Errorf("jsonpath: unexpected selector at %d", p.pos)
	}
}

func (p *parser) parseIndexOrSlice() (Selector, error) {
	start, hasStart, err := p.parseOptionalInt()
	if err != nil {
		return Selector{}, err
	}
	if p.peek() != ':' {
		if !hasStart {
			return Selector{}, fmt.Errorf("jsonpath: expected index at %d", p.pos)
		}
		return Selector{Kind: SelectorIndex, Index: start, FromEnd: start < 0}, nil
	}
	p.pos++ // consume ':'
	end, hasEnd, err := p.parseOptionalInt()
	if err != nil {
		return Selector{}, err
	}
	step := 1
	hasStep := false
	if p.peek() == ':' {
		p.pos++
		var stepVal int
		stepVal, hasStep, err = p.parseOptionalInt()
		if err != nil {
			return Selector{}, err
		}
		if hasStep {
			step = stepVal
		}
	}
	return Selector{
		Kind:     SelectorSlice,
		Start:    start,
		HasStart: hasStart,
		End:      end,
		HasEnd:   hasEnd,
		Step:     step,
	}, nil
}

func (p *parser) parseOptionalInt() (int, bool, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for isDigit(p.peek()) {
		p.pos++
	}
	if p.pos == start || (p.pos == start+1 && p.src[start] == '-') {
		return 0, false, nil
	}
	n, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, false, fmt.Errorf("jsonpath: invalid integer at %d: %w", start, err)
	}
	return n, true, nil
}

func (p *parser) parseIdentifierOrQuoted() (string, error) {
	if p.peek() == '\'' || p.peek() == '"' {
		return p.parseQuotedString()
	}
	start := p.pos
	for !p.eof() && isIdentChar(p.peek()) {
		p.pos++
	}
	if p.pos == start {
		return "", fmt.Errorf("jsonpath: expected name at %d", p.pos)
	}
	return p.src[start:p.pos], nil
}

// parseQuotedString parses a single- or double-quoted JSON string literal,
// including \uXXXX escapes and surrogate pairs.
func (p *parser) parseQuotedString() (string, error) {
	quote := p.peek()
	p.pos++
	var sb strings.Builder
	for {
		if p.eof() {
			return "", fmt.Errorf("jsonpath: unterminated string starting before %d", p.pos)
		}
		c := p.src[p.pos]
		if c == quote {
			p.pos++
			return sb.String(), nil
		}
		if c == '\\' {
			p.pos++
			if p.eof() {
				return "", fmt.Errorf("jsonpath: unterminated escape at %d", p.pos)
			}
			esc := p.src[p.pos]
			switch esc {
			case '"', '\'', '\\', '/':
				sb.WriteByte(esc)
				p.pos++
			case 'b':
				sb.WriteByte('\b')
				p.pos++
			case 'f':
				sb.WriteByte('\f')
				p.pos++
			case 'n':
				sb.WriteByte('\n')
				p.pos++
			case 'r':
				sb.WriteByte('\r')
				p.pos++
			case 't':
				sb.WriteByte('\t')
				p.pos++
			case 'u':
				r, err := p.parseUnicodeEscape()
				if err != nil {
					return "", err
				}
				sb.WriteRune(r)
			default:
				return "", fmt.Errorf("jsonpath: unknown escape \\%c at %d", esc, p.pos)
			}
			continue
		}
		sb.WriteByte(c)
		p.pos++
	}
}

func (p *parser) parseUnicodeEscape() (rune, error) {
	p.pos++ // consume 'u'
	if p.pos+4 > len(p.src) {
		return 0, fmt.Errorf("jsonpath: truncated \\u escape at %d", p.pos)
	}
	hi, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("jsonpath: invalid \\u escape at %d: %w", p.pos, err)
	}
	p.pos += 4
	if utf16.IsSurrogate(rune(hi)) && strings.HasPrefix(p.src[p.pos:], "\\u") {
		lo, err := strconv.ParseUint(p.src[p.pos+2:min(p.pos+6, len(p.src))], 16, 32)
		if err == nil {
			r := utf16.DecodeRune(rune(hi), rune(lo))
			if r != '�' {
				p.pos += 6
				return r, nil
			}
		}
	}
	return rune(hi), nil
}

func (p *parser) expect(c byte) error {
	if p.eof() || p.src[p.pos] != c {
		return fmt.Errorf("jsonpath: expected %q at %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
