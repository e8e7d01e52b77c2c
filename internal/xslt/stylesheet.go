package xslt

import (
	"slices"
	"strconv"
	"strings"

	"github.com/jacoelho/weffo/internal/xpath"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// Namespace is the XSLT namespace URI.
const Namespace = "http://www.w3.org/1999/XSL/Transform"

// expandedName identifies variables, templates and modes independent of prefix.
type expandedName struct {
	Space string
	Local string
}

func expand(n xmltree.Name) expandedName {
	return expandedName{Space: n.Space, Local: n.Local}
}

func (n expandedName) String() string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}

// Stylesheet is a compiled, immutable stylesheet.
type Stylesheet struct {
	systemID string
	source   *xmltree.Document
	rootNS   map[string]string
	output   xmltree.OutputOptions

	rules        map[expandedName][]*rule
	named        map[expandedName]*template
	globals      []*variable
	globalByName map[expandedName]*variable
	params       []string

	strip    []spaceRule
	preserve []spaceRule

	aliases  map[string]xmltree.Namespace
	excluded map[string]bool
}

type template struct {
	match    *xpath.Pattern
	name     expandedName
	hasName  bool
	mode     expandedName
	params   []*variable
	body     []instruction
	order    int
	describe string
}

type rule struct {
	tmpl     *template
	alt      *xpath.PatternAlt
	priority float64
	order    int
}

type spaceRule struct {
	any   bool
	space string
	local string // empty with any=false means every name in space
	order int
}

func (s spaceRule) priority() float64 {
	switch {
	case s.any:
		return -0.5
	case s.local == "":
		return -0.25
	default:
		return 0
	}
}

func (s spaceRule) matches(el *xmltree.Node) bool {
	if s.any {
		return true
	}
	if el.Name.Space != s.space {
		return false
	}
	return s.local == "" || el.Name.Local == s.local
}

// Output returns the serialization options declared by xsl:output.
func (s *Stylesheet) Output() xmltree.OutputOptions {
	return s.output
}

// Params returns the local names of the global parameters in declaration order.
func (s *Stylesheet) Params() []string {
	return slices.Clone(s.params)
}

// SystemID returns the system identifier of the stylesheet document.
func (s *Stylesheet) SystemID() string {
	return s.systemID
}

// Compile builds a Stylesheet from a parsed stylesheet document. The
// document must come from a namespace-aware parser.
func Compile(doc *xmltree.Document) (*Stylesheet, error) {
	if doc == nil {
		return nil, compileErrorf(nil, "nil document")
	}
	if !doc.NamespaceAware() {
		return nil, ErrNotNamespaceAware
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil, compileErrorf(nil, "document has no root element")
	}

	s := &Stylesheet{
		systemID:     doc.SystemID,
		source:       doc,
		rootNS:       namespaceContext(root),
		rules:        make(map[expandedName][]*rule),
		named:        make(map[expandedName]*template),
		globalByName: make(map[expandedName]*variable),
		aliases:      make(map[string]xmltree.Namespace),
		excluded:     map[string]bool{Namespace: true},
	}
	c := &compiler{sheet: s}

	switch {
	case root.Name.Space == Namespace && (root.Name.Local == "stylesheet" || root.Name.Local == "transform"):
		if err := c.excludePrefixes(root); err != nil {
			return nil, err
		}
		if err := c.topLevel(root); err != nil {
			return nil, err
		}
	case hasXSLAttr(root, "version"):
		if err := c.excludePrefixes(root); err != nil {
			return nil, err
		}
		body, err := c.instruction(root)
		if err != nil {
			return nil, err
		}
		pat, _ := xpath.CompilePattern("/", nil)
		c.addTemplate(&template{match: pat, body: []instruction{body}, describe: "simplified stylesheet"}, nil)
	default:
		return nil, compileErrorf(root, "not a stylesheet")
	}

	if err := c.checkCalls(); err != nil {
		return nil, err
	}
	for mode, rules := range s.rules {
		slices.SortStableFunc(rules, func(a, b *rule) int {
			switch {
			case a.priority > b.priority:
				return -1
			case a.priority < b.priority:
				return 1
			}
			return b.order - a.order
		})
		s.rules[mode] = rules
	}
	return s, nil
}

func hasXSLAttr(el *xmltree.Node, local string) bool {
	_, ok := el.Attr(Namespace, local)
	return ok
}

type compiler struct {
	sheet *Stylesheet
	order int
	calls []*callTemplateInstr
}

func (c *compiler) nextOrder() int {
	c.order++
	return c.order
}

// excludePrefixes records the namespaces named by exclude-result-prefixes and
// extension-element-prefixes on el.
func (c *compiler) excludePrefixes(el *xmltree.Node) error {
	// literal result elements carry these as xsl: attributes
	space := Namespace
	if el.Name.Space == Namespace {
		space = ""
	}
	for _, local := range []string{"exclude-result-prefixes", "extension-element-prefixes"} {
		a, ok := el.Attr(space, local)
		if !ok {
			continue
		}
		for _, prefix := range strings.Fields(a.Data) {
			if prefix == "#default" {
				prefix = ""
			}
			uri, found := el.LookupNamespace(prefix)
			if !found || (prefix != "" && uri == "") {
				return compileErrorf(el, "%s names undeclared prefix %q", local, prefix)
			}
			c.sheet.excluded[uri] = true
		}
	}
	return nil
}

func (c *compiler) topLevel(root *xmltree.Node) error {
	for _, child := range root.Children {
		switch child.Kind {
		case xmltree.TextNode:
			if !xmltree.IsWhitespace(child.Data) {
				return compileErrorf(root, "text is not allowed at the top level")
			}
			continue
		case xmltree.ElementNode:
		default:
			continue
		}
		if child.Name.Space != Namespace {
			if child.Name.Space == "" {
				return compileErrorf(child, "top-level element must be in a namespace")
			}
			continue
		}
		var err error
		switch child.Name.Local {
		case "template":
			err = c.template(child)
		case "param", "variable":
			err = c.global(child)
		case "output":
			err = c.outputDecl(child)
		case "strip-space":
			err = c.spaceDecl(child, &c.sheet.strip)
		case "preserve-space":
			err = c.spaceDecl(child, &c.sheet.preserve)
		case "namespace-alias":
			err = c.namespaceAlias(child)
		default:
			// include, import, key, decimal-format, attribute-set and unknown declarations
			err = wrapCompile(child, ErrUnsupported)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) template(el *xmltree.Node) error {
	t := &template{}
	matchSrc, hasMatch := el.AttrValue("match")
	nameSrc, hasName := el.AttrValue("name")
	if !hasMatch && !hasName {
		return compileErrorf(el, "template needs a match or name attribute")
	}
	ns := namespaceContext(el)
	var desc []string
	if hasMatch {
		pat, err := xpath.CompilePattern(matchSrc, ns)
		if err != nil {
			return wrapCompile(el, err)
		}
		t.match = pat
		desc = append(desc, "match="+strconv.Quote(matchSrc))
	}
	if hasName {
		name, err := resolveQName(el, nameSrc, false)
		if err != nil {
			return err
		}
		t.name = expand(name)
		t.hasName = true
		desc = append(desc, "name="+strconv.Quote(nameSrc))
	}
	if modeSrc, ok := el.AttrValue("mode"); ok {
		mode, err := resolveQName(el, modeSrc, false)
		if err != nil {
			return err
		}
		t.mode = expand(mode)
		desc = append(desc, "mode="+strconv.Quote(modeSrc))
	}
	t.describe = "xsl:template " + strings.Join(desc, " ")

	var priority *float64
	if src, ok := el.AttrValue("priority"); ok {
		p := xpath.ParseNumber(src)
		if p != p {
			return compileErrorf(el, "invalid priority %q", src)
		}
		priority = &p
	}

	params, body, err := c.bodyWithParams(el)
	if err != nil {
		return err
	}
	t.params = params
	t.body = body

	if t.hasName {
		if _, dup := c.sheet.named[t.name]; dup {
			return compileErrorf(el, "duplicate template named %s", t.name)
		}
		c.sheet.named[t.name] = t
	}
	if t.match != nil {
		c.addTemplate(t, priority)
	}
	return nil
}

func (c *compiler) addTemplate(t *template, priority *float64) {
	t.order = c.nextOrder()
	for _, alt := range t.match.Alternatives() {
		p := alt.DefaultPriority()
		if priority != nil {
			p = *priority
		}
		c.sheet.rules[t.mode] = append(c.sheet.rules[t.mode], &rule{tmpl: t, alt: alt, priority: p, order: t.order})
	}
}

// bodyWithParams splits leading xsl:param children from the rest of a template body.
func (c *compiler) bodyWithParams(el *xmltree.Node) ([]*variable, []instruction, error) {
	var params []*variable
	seen := map[expandedName]bool{}
	rest := 0
	for i, child := range el.Children {
		if child.Kind == xmltree.TextNode && xmltree.IsWhitespace(child.Data) {
			continue
		}
		if child.Kind == xmltree.ElementNode && child.Name.Space == Namespace && child.Name.Local == "param" {
			v, err := c.variable(child, true)
			if err != nil {
				return nil, nil, err
			}
			if seen[v.name] {
				return nil, nil, compileErrorf(child, "duplicate parameter %s", v.name)
			}
			seen[v.name] = true
			params = append(params, v)
			rest = i + 1
			continue
		}
		if child.Kind == xmltree.ElementNode || child.Kind == xmltree.TextNode {
			break
		}
	}
	body, err := c.body(el, el.Children[rest:])
	if err != nil {
		return nil, nil, err
	}
	return params, body, nil
}

func (c *compiler) global(el *xmltree.Node) error {
	v, err := c.variable(el, el.Name.Local == "param")
	if err != nil {
		return err
	}
	if _, dup := c.sheet.globalByName[v.name]; dup {
		return compileErrorf(el, "duplicate global %s", v.name)
	}
	c.sheet.globalByName[v.name] = v
	c.sheet.globals = append(c.sheet.globals, v)
	if v.isParam && v.name.Space == "" {
		c.sheet.params = append(c.sheet.params, v.name.Local)
	}
	return nil
}

func (c *compiler) outputDecl(el *xmltree.Node) error {
	out := &c.sheet.output
	for _, a := range el.Attrs {
		if a.Name.Space != "" {
			continue
		}
		switch a.Name.Local {
		case "method":
			switch a.Data {
			case xmltree.MethodXML, xmltree.MethodHTML, xmltree.MethodText:
				out.Method = a.Data
			default:
				return compileErrorf(el, "unsupported output method %q", a.Data)
			}
		case "indent":
			b, err := yesNo(el, a)
			if err != nil {
				return err
			}
			out.Indent = b
		case "omit-xml-declaration":
			b, err := yesNo(el, a)
			if err != nil {
				return err
			}
			out.OmitXMLDeclaration = b
		case "standalone":
			if _, err := yesNo(el, a); err != nil {
				return err
			}
			out.Standalone = a.Data
		case "doctype-public":
			out.DoctypePublic = a.Data
		case "doctype-system":
			out.DoctypeSystem = a.Data
		case "media-type":
			out.MediaType = a.Data
		case "encoding", "version", "cdata-section-elements":
			// output is always UTF-8 XML 1.0 without CDATA sections
		default:
			return compileErrorf(el, "unknown attribute %s", a.Name)
		}
	}
	return nil
}

func yesNo(el *xmltree.Node, a *xmltree.Node) (bool, error) {
	switch a.Data {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, compileErrorf(el, "%s must be yes or no, got %q", a.Name, a.Data)
}

func (c *compiler) spaceDecl(el *xmltree.Node, into *[]spaceRule) error {
	elements, ok := el.AttrValue("elements")
	if !ok {
		return compileErrorf(el, "missing elements attribute")
	}
	for _, tok := range strings.Fields(elements) {
		r := spaceRule{order: c.nextOrder()}
		switch {
		case tok == "*":
			r.any = true
		case strings.HasSuffix(tok, ":*"):
			prefix := strings.TrimSuffix(tok, ":*")
			uri, found := el.LookupNamespace(prefix)
			if !found {
				return compileErrorf(el, "undeclared prefix %q", prefix)
			}
			r.space = uri
		default:
			name, err := resolveQName(el, tok, false)
			if err != nil {
				return err
			}
			r.space, r.local = name.Space, name.Local
		}
		*into = append(*into, r)
	}
	return nil
}

func (c *compiler) namespaceAlias(el *xmltree.Node) error {
	from, ok1 := el.AttrValue("stylesheet-prefix")
	to, ok2 := el.AttrValue("result-prefix")
	if !ok1 || !ok2 {
		return compileErrorf(el, "namespace-alias needs stylesheet-prefix and result-prefix")
	}
	lookup := func(prefix string) (string, string, error) {
		if prefix == "#default" {
			prefix = ""
		}
		uri, found := el.LookupNamespace(prefix)
		if !found {
			return "", "", compileErrorf(el, "undeclared prefix %q", prefix)
		}
		return prefix, uri, nil
	}
	_, fromURI, err := lookup(from)
	if err != nil {
		return err
	}
	toPrefix, toURI, err := lookup(to)
	if err != nil {
		return err
	}
	c.sheet.aliases[fromURI] = xmltree.Namespace{Prefix: toPrefix, URI: toURI}
	return nil
}

func (c *compiler) checkCalls() error {
	for _, call := range c.calls {
		if _, ok := c.sheet.named[call.name]; !ok {
			return compileErrorf(call.el, "no template named %s", call.name)
		}
	}
	return nil
}

// shouldStrip reports whether whitespace-only text children of el are removed
// from source documents.
func (s *Stylesheet) shouldStrip(el *xmltree.Node) bool {
	best, bestPriority, bestOrder := false, 0.0, -1
	consider := func(rules []spaceRule, strip bool) {
		for _, r := range rules {
			if !r.matches(el) {
				continue
			}
			p := r.priority()
			if bestOrder < 0 || p > bestPriority || (p == bestPriority && r.order > bestOrder) {
				best, bestPriority, bestOrder = strip, p, r.order
			}
		}
	}
	consider(s.strip, true)
	consider(s.preserve, false)
	return best
}

// namespaceContext returns the prefix bindings in scope at el for XPath
// compilation. The default namespace is not used by XPath and is omitted.
func namespaceContext(el *xmltree.Node) map[string]string {
	out := make(map[string]string)
	for _, ns := range el.InScopeNamespaces() {
		if ns.Prefix != "" {
			out[ns.Prefix] = ns.URI
		}
	}
	return out
}

// resolveQName resolves a QName written in an attribute of el. The default
// namespace applies only when useDefault is set.
func resolveQName(el *xmltree.Node, qname string, useDefault bool) (xmltree.Name, error) {
	qname = strings.TrimSpace(qname)
	prefix, local, ok := strings.Cut(qname, ":")
	if !ok {
		local, prefix = prefix, ""
	}
	if local == "" || strings.ContainsAny(local, ": \t\n") || (ok && prefix == "") {
		return xmltree.Name{}, compileErrorf(el, "invalid QName %q", qname)
	}
	if prefix == "" {
		if !useDefault {
			return xmltree.Name{Local: local}, nil
		}
		uri, _ := el.LookupNamespace("")
		return xmltree.Name{Space: uri, Local: local}, nil
	}
	uri, found := el.LookupNamespace(prefix)
	if !found || uri == "" {
		return xmltree.Name{}, compileErrorf(el, "undeclared prefix %q in %q", prefix, qname)
	}
	return xmltree.Name{Space: uri, Local: local, Prefix: prefix}, nil
}
