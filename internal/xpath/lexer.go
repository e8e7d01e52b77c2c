package xpath

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokLiteral
	tokName     // QName, NCName:* or *
	tokVariable // $QName, text holds the QName
	tokOperator // and, or, mod, div, *, +, -, =, !=, <, <=, >, >=, |, /, //
	tokPunct    // ( ) [ ] . .. @ , ::
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// tokenize splits expr into tokens, resolving the lexical ambiguities of
// '*' and operator names by looking at the preceding token.
func tokenize(expr string) ([]token, error) {
	r := &pathReader{input: expr}
	var toks []token
	for {
		r.skipSpace()
		if r.atEnd() {
			toks = append(toks, token{kind: tokEOF, pos: r.pos})
			return toks, nil
		}
		start := r.pos
		ch := r.input[r.pos]
		operatorContext := precedesOperator(toks)
		switch {
		case ch == '"' || ch == '\'':
			end := strings.IndexByte(r.input[r.pos+1:], ch)
			if end < 0 {
				return nil, xpathErrorf("unterminated string literal at %d in %q", start, expr)
			}
			toks = append(toks, token{kind: tokLiteral, text: r.input[r.pos+1 : r.pos+1+end], pos: start})
			r.pos += end + 2
		case isDigit(ch) || (ch == '.' && r.pos+1 < len(r.input) && isDigit(r.input[r.pos+1])):
			toks = append(toks, token{kind: tokNumber, text: r.readNumber(), pos: start})
		case ch == '.':
			if r.consume("..") {
				toks = append(toks, token{kind: tokPunct, text: "..", pos: start})
			} else {
				r.pos++
				toks = append(toks, token{kind: tokPunct, text: ".", pos: start})
			}
		case ch == '$':
			r.pos++
			name := r.readQName()
			if name == "" {
				return nil, xpathErrorf("variable reference missing name at %d in %q", start, expr)
			}
			toks = append(toks, token{kind: tokVariable, text: name, pos: start})
		case ch == '*':
			r.pos++
			if operatorContext {
				toks = append(toks, token{kind: tokOperator, text: "*", pos: start})
			} else {
				toks = append(toks, token{kind: tokName, text: "*", pos: start})
			}
		case strings.IndexByte("()[]@,", ch) >= 0:
			r.pos++
			toks = append(toks, token{kind: tokPunct, text: string(ch), pos: start})
		case ch == ':':
			if !r.consume("::") {
				return nil, xpathErrorf("unexpected ':' at %d in %q", start, expr)
			}
			toks = append(toks, token{kind: tokPunct, text: "::", pos: start})
		case ch == '/':
			if r.consume("//") {
				toks = append(toks, token{kind: tokOperator, text: "//", pos: start})
			} else {
				r.pos++
				toks = append(toks, token{kind: tokOperator, text: "/", pos: start})
			}
		case ch == '!':
			if !r.consume("!=") {
				return nil, xpathErrorf("unexpected '!' at %d in %q", start, expr)
			}
			toks = append(toks, token{kind: tokOperator, text: "!=", pos: start})
		case ch == '<' || ch == '>':
			op := string(ch)
			r.pos++
			if r.consume("=") {
				op += "="
			}
			toks = append(toks, token{kind: tokOperator, text: op, pos: start})
		case strings.IndexByte("=+-|", ch) >= 0:
			r.pos++
			toks = append(toks, token{kind: tokOperator, text: string(ch), pos: start})
		default:
			name := r.readQName()
			if name == "" {
				c, _ := utf8.DecodeRuneInString(r.input[r.pos:])
				return nil, xpathErrorf("unexpected character %q at %d in %q", c, start, expr)
			}
			if operatorContext {
				switch name {
				case "and", "or", "mod", "div":
					toks = append(toks, token{kind: tokOperator, text: name, pos: start})
					continue
				}
				return nil, xpathErrorf("expected operator, found %q at %d in %q", name, start, expr)
			}
			toks = append(toks, token{kind: tokName, text: name, pos: start})
		}
	}
}

// precedesOperator reports whether the next token must be read as an
// operator: there is a preceding token and it is not one of @ :: ( [ , or
// an operator.
func precedesOperator(toks []token) bool {
	if len(toks) == 0 {
		return false
	}
	prev := toks[len(toks)-1]
	switch prev.kind {
	case tokOperator:
		return false
	case tokPunct:
		switch prev.text {
		case "@", "::", "(", "[", ",":
			return false
		}
	}
	return true
}

type pathReader struct {
	input string
	pos   int
}

func (r *pathReader) skipSpace() {
	for r.pos < len(r.input) && isXPathWhitespace(r.input[r.pos]) {
		r.pos++
	}
}

func (r *pathReader) atEnd() bool {
	return r.pos >= len(r.input)
}

func (r *pathReader) consume(s string) bool {
	if strings.HasPrefix(r.input[r.pos:], s) {
		r.pos += len(s)
		return true
	}
	return false
}

func (r *pathReader) readNumber() string {
	start := r.pos
	for r.pos < len(r.input) && isDigit(r.input[r.pos]) {
		r.pos++
	}
	if r.pos < len(r.input) && r.input[r.pos] == '.' {
		r.pos++
		for r.pos < len(r.input) && isDigit(r.input[r.pos]) {
			r.pos++
		}
	}
	return r.input[start:r.pos]
}

func (r *pathReader) readNCName() string {
	start := r.pos
	for r.pos < len(r.input) {
		c, size := utf8.DecodeRuneInString(r.input[r.pos:])
		if r.pos == start {
			if !isNameStart(c) {
				break
			}
		} else if !isNameChar(c) {
			break
		}
		r.pos += size
	}
	return r.input[start:r.pos]
}

// readQName reads an NCName optionally followed by ":NCName" or ":*".
// A following "::" is left for the axis separator.
func (r *pathReader) readQName() string {
	start := r.pos
	if r.readNCName() == "" {
		return ""
	}
	if r.pos+1 < len(r.input) && r.input[r.pos] == ':' && r.input[r.pos+1] != ':' {
		save := r.pos
		r.pos++
		if r.input[r.pos] == '*' {
			r.pos++
		} else if r.readNCName() == "" {
			r.pos = save
		}
	}
	return r.input[start:r.pos]
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isXPathWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

func isNameStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func isNameChar(c rune) bool {
	return isNameStart(c) || c == '-' || c == '.' || unicode.IsDigit(c) ||
		unicode.Is(unicode.Mn, c) || unicode.Is(unicode.Mc, c) || c == '·'
}
