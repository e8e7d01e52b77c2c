package xslt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jacoelho/weffo/internal/xpath"
)

var errAVT = errors.New("invalid attribute value template")

// avt is a compiled attribute value template: literal text with embedded
// {expression} parts. Doubled braces stand for themselves.
type avt struct {
	parts []avtPart
}

type avtPart struct {
	text string
	expr *xpath.Expr
}

func parseAVT(src string, ns map[string]string) (*avt, error) {
	a := &avt{}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			a.parts = append(a.parts, avtPart{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '}':
			if i+1 < len(src) && src[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: unmatched '}' in %q", errAVT, src)
		case '{':
			if i+1 < len(src) && src[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end, err := exprEnd(src, i+1)
			if err != nil {
				return nil, err
			}
			e, err := xpath.Compile(src[i+1:end], ns)
			if err != nil {
				return nil, err
			}
			flush()
			a.parts = append(a.parts, avtPart{expr: e})
			i = end
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return a, nil
}

// exprEnd returns the index of the '}' closing an expression that starts at
// start, skipping braces inside string literals.
func exprEnd(src string, start int) (int, error) {
	var quoteChar byte
	for i := start; i < len(src); i++ {
		c := src[i]
		switch {
		case quoteChar != 0:
			if c == quoteChar {
				quoteChar = 0
			}
		case c == '"' || c == '\'':
			quoteChar = c
		case c == '}':
			return i, nil
		case c == '{':
			return 0, fmt.Errorf("%w: nested '{' in %q", errAVT, src)
		}
	}
	return 0, fmt.Errorf("%w: unterminated expression in %q", errAVT, src)
}

func (a *avt) eval(ctx *xpath.Context) (string, error) {
	if len(a.parts) == 1 && a.parts[0].expr == nil {
		return a.parts[0].text, nil
	}
	var b strings.Builder
	for _, p := range a.parts {
		if p.expr == nil {
			b.WriteString(p.text)
			continue
		}
		s, err := p.expr.EvaluateString(ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}
