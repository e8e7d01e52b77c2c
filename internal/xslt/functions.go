package xslt

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/jacoelho/weffo/internal/xpath"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// env exposes XSLT variables and functions to XPath evaluation.
type env struct {
	r *run
	f *frame
}

func (e env) Variable(name xmltree.Name) (xpath.Value, error) {
	key := expand(name)
	if v, ok := e.f.lookup(key); ok {
		return v, nil
	}
	return e.r.global(key)
}

func (e env) Function(name xmltree.Name) (xpath.Function, bool) {
	if name.Space != "" {
		return nil, false
	}
	switch name.Local {
	case "current":
		return e.current, true
	case "document":
		return e.document, true
	case "generate-id":
		return generateID, true
	case "system-property":
		return e.systemProperty, true
	case "function-available":
		return e.functionAvailable, true
	case "element-available":
		return e.elementAvailable, true
	case "unparsed-entity-uri":
		return unparsedEntityURI, true
	case "format-number":
		return formatNumber, true
	}
	return nil, false
}

var xsltFunctions = map[string]bool{
	"current": true, "document": true, "generate-id": true, "system-property": true,
	"function-available": true, "element-available": true, "unparsed-entity-uri": true,
	"format-number": true,
}

var supportedInstructions = map[string]bool{
	"apply-templates": true, "call-template": true, "for-each": true, "sort": true,
	"value-of": true, "copy-of": true, "copy": true, "element": true, "attribute": true,
	"text": true, "comment": true, "processing-instruction": true, "if": true,
	"choose": true, "when": true, "otherwise": true, "variable": true, "param": true,
	"with-param": true, "message": true, "fallback": true,
}

func arity(fn string, args []xpath.Value, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		return fmt.Errorf("%w: %s() takes %d to %d arguments, got %d", xpath.ErrEvaluation, fn, lo, hi, len(args))
	}
	return nil
}

func (e env) current(_ *xpath.Context, args []xpath.Value) (xpath.Value, error) {
	if err := arity("current", args, 0, 0); err != nil {
		return nil, err
	}
	return xpath.NodeSet{e.f.node}, nil
}

// document loads the documents named by its first argument. The empty
// reference selects the stylesheet document.
func (e env) document(_ *xpath.Context, args []xpath.Value) (xpath.Value, error) {
	if err := arity("document", args, 1, 2); err != nil {
		return nil, err
	}
	base := e.r.sheet.systemID
	if len(args) == 2 {
		ns, ok := args[1].(xpath.NodeSet)
		if !ok {
			return nil, fmt.Errorf("%w: document() base must be a node-set", xpath.ErrEvaluation)
		}
		if n := ns.First(); n != nil {
			base = n.Document().SystemID
		}
	}
	var out []*xmltree.Node
	load := func(href, base string) error {
		doc, err := e.r.load(href, base)
		if err != nil {
			return err
		}
		out = append(out, doc.Root())
		return nil
	}
	if ns, ok := args[0].(xpath.NodeSet); ok {
		for _, n := range ns {
			b := base
			if len(args) == 1 {
				b = n.Document().SystemID
			}
			if err := load(n.StringValue(), b); err != nil {
				return nil, err
			}
		}
		return xpath.NewNodeSet(out), nil
	}
	if err := load(xpath.ToString(args[0]), base); err != nil {
		return nil, err
	}
	return xpath.NodeSet(out), nil
}

func (r *run) load(href, base string) (*xmltree.Document, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return r.sheet.source, nil
	}
	key := base + "\x00" + href
	if doc, ok := r.docs[key]; ok {
		return doc, nil
	}
	if r.loader == nil {
		return nil, fmt.Errorf("document(%q): no loader configured", href)
	}
	doc, err := r.loader.Load(href, base)
	if err != nil {
		return nil, fmt.Errorf("document(%q): %w", href, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document(%q): loader returned no document", href)
	}
	r.docs[key] = doc
	return doc, nil
}

func generateID(ctx *xpath.Context, args []xpath.Value) (xpath.Value, error) {
	if err := arity("generate-id", args, 0, 1); err != nil {
		return nil, err
	}
	n := ctx.Node
	if len(args) == 1 {
		ns, ok := args[0].(xpath.NodeSet)
		if !ok {
			return nil, fmt.Errorf("%w: generate-id() argument must be a node-set", xpath.ErrEvaluation)
		}
		n = ns.First()
	}
	if n == nil {
		return xpath.String(""), nil
	}
	return xpath.String(n.ID()), nil
}

func (e env) systemProperty(_ *xpath.Context, args []xpath.Value) (xpath.Value, error) {
	if err := arity("system-property", args, 1, 1); err != nil {
		return nil, err
	}
	name, ok := e.qname(xpath.ToString(args[0]))
	if !ok || name.Space != Namespace {
		return xpath.String(""), nil
	}
	switch name.Local {
	case "version":
		return xpath.Number(1), nil
	case "vendor":
		return xpath.String("weffo"), nil
	case "vendor-url":
		return xpath.String("https://github.com/jacoelho/weffo"), nil
	}
	return xpath.String(""), nil
}

func (e env) functionAvailable(_ *xpath.Context, args []xpath.Value) (xpath.Value, error) {
	if err := arity("function-available", args, 1, 1); err != nil {
		return nil, err
	}
	name, ok := e.qname(xpath.ToString(args[0]))
	if !ok || name.Space != "" {
		return xpath.Boolean(false), nil
	}
	return xpath.Boolean(xpath.IsCoreFunction(name.Local) || xsltFunctions[name.Local]), nil
}

func (e env) elementAvailable(_ *xpath.Context, args []xpath.Value) (xpath.Value, error) {
	if err := arity("element-available", args, 1, 1); err != nil {
		return nil, err
	}
	name, ok := e.qname(xpath.ToString(args[0]))
	return xpath.Boolean(ok && name.Space == Namespace && supportedInstructions[name.Local]), nil
}

// qname resolves a QName passed as a string argument against the namespaces
// in scope at the stylesheet root.
func (e env) qname(s string) (xmltree.Name, bool) {
	prefix, local, hasPrefix := splitQName(strings.TrimSpace(s))
	if local == "" {
		return xmltree.Name{}, false
	}
	if !hasPrefix {
		return xmltree.Name{Local: local}, true
	}
	uri, ok := e.r.sheet.rootNS[prefix]
	if !ok {
		return xmltree.Name{}, false
	}
	return xmltree.Name{Space: uri, Local: local, Prefix: prefix}, true
}

func unparsedEntityURI(_ *xpath.Context, args []xpath.Value) (xpath.Value, error) {
	if err := arity("unparsed-entity-uri", args, 1, 1); err != nil {
		return nil, err
	}
	return xpath.String(""), nil
}

// formatNumber implements format-number with the default decimal format.
// The picture supports digits, zero padding, grouping, a fraction part,
// percent, per-mille and a negative sub-picture.
func formatNumber(_ *xpath.Context, args []xpath.Value) (xpath.Value, error) {
	if err := arity("format-number", args, 2, 3); err != nil {
		return nil, err
	}
	if len(args) == 3 {
		return nil, fmt.Errorf("%w: named decimal formats are not supported", xpath.ErrEvaluation)
	}
	f := xpath.ToNumber(args[0])
	pic := xpath.ToString(args[1])
	switch {
	case math.IsNaN(f):
		return xpath.String("NaN"), nil
	case math.IsInf(f, 0):
		if f < 0 {
			return xpath.String("-Infinity"), nil
		}
		return xpath.String("Infinity"), nil
	}
	pos, neg, hasNeg := strings.Cut(pic, ";")
	p, err := parsePicture(pos)
	if err != nil {
		return nil, err
	}
	if f < 0 {
		if hasNeg {
			np, err := parsePicture(neg)
			if err != nil {
				return nil, err
			}
			np.minInt, np.minFrac, np.maxFrac, np.group = p.minInt, p.minFrac, p.maxFrac, p.group
			return xpath.String(np.format(-f)), nil
		}
		p.prefix = "-" + p.prefix
		return xpath.String(p.format(-f)), nil
	}
	return xpath.String(p.format(f)), nil
}

type picture struct {
	prefix, suffix   string
	minInt           int
	minFrac, maxFrac int
	group            int
	scale            float64
}

func parsePicture(s string) (picture, error) {
	p := picture{scale: 1}
	isActive := func(r rune) bool { return strings.ContainsRune("#0,.", r) }
	runes := []rune(s)
	start := 0
	for start < len(runes) && !isActive(runes[start]) {
		start++
	}
	end := start
	for end < len(runes) && isActive(runes[end]) {
		end++
	}
	p.prefix = string(runes[:start])
	p.suffix = string(runes[end:])
	for _, r := range p.prefix + p.suffix {
		switch r {
		case '%':
			p.scale = 100
		case '\u2030':
			p.scale = 1000
		}
	}
	body := string(runes[start:end])
	if body == "" {
		return p, fmt.Errorf("%w: format-number picture %q has no digits", xpath.ErrEvaluation, s)
	}
	intPart, fracPart, _ := strings.Cut(body, ".")
	if strings.Contains(fracPart, ".") || strings.Contains(fracPart, ",") {
		return p, fmt.Errorf("%w: invalid format-number picture %q", xpath.ErrEvaluation, s)
	}
	if i := strings.LastIndex(intPart, ","); i >= 0 {
		p.group = len(intPart) - i - 1
	}
	p.minInt = strings.Count(intPart, "0")
	p.minFrac = strings.Count(fracPart, "0")
	p.maxFrac = len(fracPart)
	return p, nil
}

func (p picture) format(f float64) string {
	f *= p.scale
	s := fmt.Sprintf("%.*f", p.maxFrac, f)
	intPart, fracPart, _ := strings.Cut(s, ".")
	for len(fracPart) > p.minFrac && strings.HasSuffix(fracPart, "0") {
		fracPart = fracPart[:len(fracPart)-1]
	}
	intPart = strings.TrimLeft(intPart, "0")
	for len(intPart) < p.minInt {
		intPart = "0" + intPart
	}
	if p.group > 0 && len(intPart) > p.group {
		var b strings.Builder
		lead := len(intPart) % p.group
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += p.group {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+p.group])
		}
		intPart = b.String()
	}
	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if out == "" {
		out = "0"
	}
	return p.prefix + out + p.suffix
}

func cutQName(s string) (prefix, local string, hasPrefix bool) {
	prefix, local, hasPrefix = strings.Cut(s, ":")
	if !hasPrefix {
		return "", prefix, false
	}
	return prefix, local, true
}

func isNCName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)):
		default:
			return false
		}
	}
	return true
}
