package xpath

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

// Value is the result of evaluating an expression: String, Number, Boolean
// or NodeSet.
type Value interface {
	valueType() string
}

// String is an XPath string.
type String string

// Number is an XPath number.
type Number float64

// Boolean is an XPath boolean.
type Boolean bool

// NodeSet is an XPath node-set kept in document order without duplicates.
type NodeSet []*xmltree.Node

func (String) valueType() string  { return "string" }
func (Number) valueType() string  { return "number" }
func (Boolean) valueType() string { return "boolean" }
func (NodeSet) valueType() string { return "node-set" }

// TypeName returns the XPath type name of v.
func TypeName(v Value) string {
	if v == nil {
		return "empty"
	}
	return v.valueType()
}

// NewNodeSet sorts nodes into document order and removes duplicates.
func NewNodeSet(nodes []*xmltree.Node) NodeSet {
	if len(nodes) < 2 {
		return NodeSet(nodes)
	}
	out := slices.Clone(nodes)
	slices.SortFunc(out, xmltree.Compare)
	return NodeSet(slices.Compact(out))
}

// First returns the first node in document order, or nil.
func (ns NodeSet) First() *xmltree.Node {
	if len(ns) == 0 {
		return nil
	}
	return ns[0]
}

// ToString converts v using the string() rules.
func ToString(v Value) string {
	switch x := v.(type) {
	case String:
		return string(x)
	case Number:
		return FormatNumber(float64(x))
	case Boolean:
		if x {
			return "true"
		}
		return "false"
	case NodeSet:
		if len(x) == 0 {
			return ""
		}
		return x[0].StringValue()
	}
	return ""
}

// ToNumber converts v using the number() rules.
func ToNumber(v Value) float64 {
	switch x := v.(type) {
	case Number:
		return float64(x)
	case Boolean:
		if x {
			return 1
		}
		return 0
	case String:
		return ParseNumber(string(x))
	case NodeSet:
		return ParseNumber(ToString(x))
	}
	return math.NaN()
}

// ToBoolean converts v using the boolean() rules.
func ToBoolean(v Value) bool {
	switch x := v.(type) {
	case Boolean:
		return bool(x)
	case Number:
		f := float64(x)
		return f != 0 && !math.IsNaN(f)
	case String:
		return x != ""
	case NodeSet:
		return len(x) > 0
	}
	return false
}

// FormatNumber renders f as an XPath string: integers without a fraction,
// no exponent, and NaN or Infinity spelled out.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseNumber converts s using the XPath Number production. Anything else,
// including exponents and a leading '+', yields NaN.
func ParseNumber(s string) float64 {
	s = strings.Trim(s, " \t\r\n")
	body := strings.TrimPrefix(s, "-")
	if body == "" {
		return math.NaN()
	}
	digits, dot := 0, false
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case isDigit(c):
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			return math.NaN()
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
