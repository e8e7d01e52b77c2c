package xpath

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

type coreFunction struct {
	minArgs int
	maxArgs int // -1 for variadic
	fn      Function
}

var coreFunctions map[string]coreFunction

func init() {
	coreFunctions = map[string]coreFunction{
		"last":             {0, 0, fnLast},
		"position":         {0, 0, fnPosition},
		"count":            {1, 1, fnCount},
		"id":               {1, 1, fnID},
		"local-name":       {0, 1, fnLocalName},
		"namespace-uri":    {0, 1, fnNamespaceURI},
		"name":             {0, 1, fnName},
		"string":           {0, 1, fnString},
		"concat":           {2, -1, fnConcat},
		"starts-with":      {2, 2, fnStartsWith},
		"contains":         {2, 2, fnContains},
		"substring-before": {2, 2, fnSubstringBefore},
		"substring-after":  {2, 2, fnSubstringAfter},
		"substring":        {2, 3, fnSubstring},
		"string-length":    {0, 1, fnStringLength},
		"normalize-space":  {0, 1, fnNormalizeSpace},
		"translate":        {3, 3, fnTranslate},
		"boolean":          {1, 1, fnBoolean},
		"not":              {1, 1, fnNot},
		"true":             {0, 0, fnTrue},
		"false":            {0, 0, fnFalse},
		"lang":             {1, 1, fnLang},
		"number":           {0, 1, fnNumber},
		"sum":              {1, 1, fnSum},
		"floor":            {1, 1, fnFloor},
		"ceiling":          {1, 1, fnCeiling},
		"round":            {1, 1, fnRound},
	}
}

// IsCoreFunction reports whether local names a function of the XPath core library.
func IsCoreFunction(local string) bool {
	_, ok := coreFunctions[local]
	return ok
}

func nodeSetArg(args []Value, i int, fn string) (NodeSet, error) {
	ns, ok := args[i].(NodeSet)
	if !ok {
		return nil, evalErrorf("%s() argument %d must be a node-set, got %s", fn, i+1, TypeName(args[i]))
	}
	return ns, nil
}

// optionalNode returns the first node of the optional node-set argument or
// the context node.
func optionalNode(ctx *Context, args []Value, fn string) (*xmltree.Node, error) {
	if len(args) == 0 {
		return ctx.Node, nil
	}
	ns, err := nodeSetArg(args, 0, fn)
	if err != nil {
		return nil, err
	}
	return ns.First(), nil
}

func stringArgOrContext(ctx *Context, args []Value) string {
	if len(args) == 0 {
		if ctx.Node == nil {
			return ""
		}
		return ctx.Node.StringValue()
	}
	return ToString(args[0])
}

func fnLast(ctx *Context, _ []Value) (Value, error) {
	return Number(ctx.Size), nil
}

func fnPosition(ctx *Context, _ []Value) (Value, error) {
	return Number(ctx.Position), nil
}

func fnCount(_ *Context, args []Value) (Value, error) {
	ns, err := nodeSetArg(args, 0, "count")
	if err != nil {
		return nil, err
	}
	return Number(len(ns)), nil
}

// fnID selects elements by xml:id or an unqualified id attribute since
// documents carry no DTD attribute types.
func fnID(ctx *Context, args []Value) (Value, error) {
	var tokens []string
	if ns, ok := args[0].(NodeSet); ok {
		for _, n := range ns {
			tokens = append(tokens, strings.Fields(n.StringValue())...)
		}
	} else {
		tokens = strings.Fields(ToString(args[0]))
	}
	if ctx.Node == nil || len(tokens) == 0 {
		return NodeSet(nil), nil
	}
	want := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		want[t] = struct{}{}
	}
	var out []*xmltree.Node
	descendants(ctx.Node.Root(), func(n *xmltree.Node) {
		if n.Kind != xmltree.ElementNode {
			return
		}
		for _, a := range n.Attrs {
			isID := (a.Name.Space == xmltree.XMLNamespace || a.Name.Space == "") && a.Name.Local == "id"
			if _, hit := want[a.Data]; isID && hit {
				out = append(out, n)
				return
			}
		}
	})
	return NewNodeSet(out), nil
}

func fnLocalName(ctx *Context, args []Value) (Value, error) {
	n, err := optionalNode(ctx, args, "local-name")
	if err != nil || n == nil {
		return String(""), err
	}
	switch n.Kind {
	case xmltree.ElementNode, xmltree.AttributeNode, xmltree.ProcessingInstructionNode:
		local := n.Name.Local
		if !n.Document().NamespaceAware() {
			if _, after, ok := strings.Cut(local, ":"); ok {
				local = after
			}
		}
		return String(local), nil
	}
	return String(""), nil
}

func fnNamespaceURI(ctx *Context, args []Value) (Value, error) {
	n, err := optionalNode(ctx, args, "namespace-uri")
	if err != nil || n == nil {
		return String(""), err
	}
	if n.Kind == xmltree.ElementNode || n.Kind == xmltree.AttributeNode {
		return String(n.Name.Space), nil
	}
	return String(""), nil
}

func fnName(ctx *Context, args []Value) (Value, error) {
	n, err := optionalNode(ctx, args, "name")
	if err != nil || n == nil {
		return String(""), err
	}
	switch n.Kind {
	case xmltree.ElementNode, xmltree.AttributeNode, xmltree.ProcessingInstructionNode:
		return String(n.Name.String()), nil
	}
	return String(""), nil
}

func fnString(ctx *Context, args []Value) (Value, error) {
	return String(stringArgOrContext(ctx, args)), nil
}

func fnConcat(_ *Context, args []Value) (Value, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(ToString(a))
	}
	return String(b.String()), nil
}

func fnStartsWith(_ *Context, args []Value) (Value, error) {
	return Boolean(strings.HasPrefix(ToString(args[0]), ToString(args[1]))), nil
}

func fnContains(_ *Context, args []Value) (Value, error) {
	return Boolean(strings.Contains(ToString(args[0]), ToString(args[1]))), nil
}

func fnSubstringBefore(_ *Context, args []Value) (Value, error) {
	before, _, found := strings.Cut(ToString(args[0]), ToString(args[1]))
	if !found {
		return String(""), nil
	}
	return String(before), nil
}

func fnSubstringAfter(_ *Context, args []Value) (Value, error) {
	_, after, found := strings.Cut(ToString(args[0]), ToString(args[1]))
	if !found {
		return String(""), nil
	}
	return String(after), nil
}

// fnSubstring keeps the characters at positions p with
// round(start) <= p < round(start) + round(length), counting from 1.
func fnSubstring(_ *Context, args []Value) (Value, error) {
	s := []rune(ToString(args[0]))
	start := roundHalfUp(ToNumber(args[1]))
	end := math.Inf(1)
	if len(args) == 3 {
		end = start + roundHalfUp(ToNumber(args[2]))
	}
	if math.IsNaN(start) || math.IsNaN(end) {
		return String(""), nil
	}
	var b strings.Builder
	for i, r := range s {
		p := float64(i + 1)
		if p >= start && p < end {
			b.WriteRune(r)
		}
	}
	return String(b.String()), nil
}

func fnStringLength(ctx *Context, args []Value) (Value, error) {
	return Number(utf8.RuneCountInString(stringArgOrContext(ctx, args))), nil
}

func fnNormalizeSpace(ctx *Context, args []Value) (Value, error) {
	fields := strings.FieldsFunc(stringArgOrContext(ctx, args), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return String(strings.Join(fields, " ")), nil
}

func fnTranslate(_ *Context, args []Value) (Value, error) {
	from := []rune(ToString(args[1]))
	to := []rune(ToString(args[2]))
	mapping := make(map[rune]rune, len(from))
	for i, r := range from {
		if _, seen := mapping[r]; seen {
			continue
		}
		if i < len(to) {
			mapping[r] = to[i]
		} else {
			mapping[r] = -1
		}
	}
	return String(strings.Map(func(r rune) rune {
		if m, ok := mapping[r]; ok {
			return m
		}
		return r
	}, ToString(args[0]))), nil
}

func fnBoolean(_ *Context, args []Value) (Value, error) {
	return Boolean(ToBoolean(args[0])), nil
}

func fnNot(_ *Context, args []Value) (Value, error) {
	return Boolean(!ToBoolean(args[0])), nil
}

func fnTrue(*Context, []Value) (Value, error)  { return Boolean(true), nil }
func fnFalse(*Context, []Value) (Value, error) { return Boolean(false), nil }

func fnLang(ctx *Context, args []Value) (Value, error) {
	want := strings.ToLower(ToString(args[0]))
	for n := ctx.Node; n != nil; n = n.Parent {
		if a, ok := n.Attr(xmltree.XMLNamespace, "lang"); ok {
			have := strings.ToLower(a.Data)
			return Boolean(have == want || strings.HasPrefix(have, want+"-")), nil
		}
	}
	return Boolean(false), nil
}

func fnNumber(ctx *Context, args []Value) (Value, error) {
	if len(args) == 0 {
		return Number(ParseNumber(stringArgOrContext(ctx, nil))), nil
	}
	return Number(ToNumber(args[0])), nil
}

func fnSum(_ *Context, args []Value) (Value, error) {
	ns, err := nodeSetArg(args, 0, "sum")
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, n := range ns {
		total += ParseNumber(n.StringValue())
	}
	return Number(total), nil
}

func fnFloor(_ *Context, args []Value) (Value, error) {
	return Number(math.Floor(ToNumber(args[0]))), nil
}

func fnCeiling(_ *Context, args []Value) (Value, error) {
	return Number(math.Ceil(ToNumber(args[0]))), nil
}

func fnRound(_ *Context, args []Value) (Value, error) {
	return Number(roundHalfUp(ToNumber(args[0]))), nil
}

// roundHalfUp rounds to the closest integer, ties towards positive infinity.
func roundHalfUp(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return f
	}
	if f < 0 && f >= -0.5 {
		return math.Copysign(0, -1)
	}
	return math.Floor(f + 0.5)
}
