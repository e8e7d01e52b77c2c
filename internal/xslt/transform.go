package xslt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jacoelho/weffo/internal/xpath"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// maxTemplateDepth bounds nested template invocations.
const maxTemplateDepth = 5000

// Loader fetches documents requested by the document() function.
// base is the system identifier the reference is relative to.
type Loader interface {
	Load(href, base string) (*xmltree.Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(href, base string) (*xmltree.Document, error)

// Load calls f.
func (f LoaderFunc) Load(href, base string) (*xmltree.Document, error) {
	return f(href, base)
}

// Transformer applies a Stylesheet once. It is not safe for concurrent use;
// create one per transformation.
type Transformer struct {
	sheet     *Stylesheet
	params    map[expandedName]xpath.Value
	loader    Loader
	onMessage func(string)
}

// NewTransformer returns a Transformer with no parameters bound.
func (s *Stylesheet) NewTransformer() *Transformer {
	return &Transformer{sheet: s, params: make(map[expandedName]xpath.Value)}
}

// SetParam binds a global parameter by local name. Names the stylesheet
// does not declare are ignored.
func (t *Transformer) SetParam(name string, v xpath.Value) {
	t.params[expandedName{Local: name}] = v
}

// SetLoader installs the loader used by document().
func (t *Transformer) SetLoader(l Loader) {
	t.loader = l
}

// SetMessageHandler receives the text of every xsl:message.
func (t *Transformer) SetMessageHandler(fn func(string)) {
	t.onMessage = fn
}

// Transform runs the stylesheet over source and returns the result tree.
// source is not modified.
func (t *Transformer) Transform(source *xmltree.Document) (*xmltree.Document, error) {
	if source == nil || source.Root() == nil {
		return nil, &Error{Instruction: "transform", Err: xmltree.ErrNilDocument}
	}
	if len(t.sheet.strip) > 0 {
		source = xmltree.Clone(source, t.sheet.shouldStrip)
	}
	r := &run{
		sheet:      t.sheet,
		out:        xmltree.NewBuilder(""),
		params:     t.params,
		globals:    make(map[expandedName]xpath.Value),
		evaluating: make(map[expandedName]bool),
		loader:     t.loader,
		onMessage:  t.onMessage,
		docs:       make(map[string]*xmltree.Document),
		source:     source.Root(),
	}
	if err := r.applyTemplates([]*xmltree.Node{source.Root()}, expandedName{}, nil); err != nil {
		return nil, err
	}
	return r.out.Document(), nil
}

type run struct {
	sheet      *Stylesheet
	out        *xmltree.Builder
	params     map[expandedName]xpath.Value
	globals    map[expandedName]xpath.Value
	evaluating map[expandedName]bool
	loader     Loader
	onMessage  func(string)
	docs       map[string]*xmltree.Document
	source     *xmltree.Node
	depth      int
}

type binding struct {
	name  expandedName
	value xpath.Value
	next  *binding
}

// frame is the dynamic context of an instruction. Instructions receive a
// pointer so xsl:variable can extend the bindings seen by later siblings.
type frame struct {
	node *xmltree.Node
	pos  int
	size int
	vars *binding
}

func (f *frame) bind(name expandedName, v xpath.Value) {
	f.vars = &binding{name: name, value: v, next: f.vars}
}

func (f *frame) lookup(name expandedName) (xpath.Value, bool) {
	for b := f.vars; b != nil; b = b.next {
		if b.name == name {
			return b.value, true
		}
	}
	return nil, false
}

func (r *run) ctx(f *frame) *xpath.Context {
	return &xpath.Context{Node: f.node, Position: f.pos, Size: f.size, Env: env{r: r, f: f}}
}

func (r *run) global(name expandedName) (xpath.Value, error) {
	if v, ok := r.globals[name]; ok {
		return v, nil
	}
	decl, ok := r.sheet.globalByName[name]
	if !ok {
		return nil, fmt.Errorf("variable $%s is not declared", name)
	}
	if decl.isParam {
		if v, ok := r.params[name]; ok {
			r.globals[name] = v
			return v, nil
		}
	}
	if r.evaluating[name] {
		return nil, fmt.Errorf("circular definition of $%s", name)
	}
	r.evaluating[name] = true
	defer delete(r.evaluating, name)
	v, err := decl.value(r, &frame{node: r.source, pos: 1, size: 1})
	if err != nil {
		return nil, err
	}
	r.globals[name] = v
	return v, nil
}

func (v *variable) value(r *run, f *frame) (xpath.Value, error) {
	switch {
	case v.sel != nil:
		return v.sel.Evaluate(r.ctx(f))
	case len(v.body) == 0:
		return xpath.String(""), nil
	}
	doc, err := r.capture(f, v.body)
	if err != nil {
		return nil, err
	}
	return xpath.NodeSet{doc.Root()}, nil
}

// capture runs body into a fresh result tree fragment.
func (r *run) capture(f *frame, body []instruction) (*xmltree.Document, error) {
	saved := r.out
	r.out = xmltree.NewBuilder("")
	defer func() { r.out = saved }()
	if err := r.execBody(f, body); err != nil {
		return nil, err
	}
	return r.out.Document(), nil
}

func (r *run) captureString(f *frame, body []instruction) (string, error) {
	if len(body) == 0 {
		return "", nil
	}
	if t, ok := body[0].(*textInstr); ok && len(body) == 1 {
		return t.data, nil
	}
	doc, err := r.capture(f, body)
	if err != nil {
		return "", err
	}
	return doc.Root().StringValue(), nil
}

// execBody runs body in a copy of f so bindings do not leak to the caller.
func (r *run) execBody(f *frame, body []instruction) error {
	local := *f
	for _, ins := range body {
		if err := ins.exec(r, &local); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) findRule(n *xmltree.Node, mode expandedName) (*rule, error) {
	match := env{r: r, f: &frame{node: n, pos: 1, size: 1}}
	for _, ru := range r.sheet.rules[mode] {
		ok, err := ru.alt.Matches(n, match)
		if err != nil {
			return nil, runtimeError(ru.tmpl.describe, err)
		}
		if ok {
			return ru, nil
		}
	}
	return nil, nil
}

type paramValue struct {
	name  expandedName
	value xpath.Value
}

func (r *run) evalParams(f *frame, params []*variable) ([]paramValue, error) {
	if len(params) == 0 {
		return nil, nil
	}
	out := make([]paramValue, 0, len(params))
	for _, p := range params {
		v, err := p.value(r, f)
		if err != nil {
			return nil, runtimeError("xsl:with-param", err)
		}
		out = append(out, paramValue{name: p.name, value: v})
	}
	return out, nil
}

func (r *run) applyTemplates(nodes []*xmltree.Node, mode expandedName, params []paramValue) error {
	for i, n := range nodes {
		ru, err := r.findRule(n, mode)
		if err != nil {
			return err
		}
		nf := &frame{node: n, pos: i + 1, size: len(nodes)}
		if ru == nil {
			if err := r.builtin(nf, mode); err != nil {
				return err
			}
			continue
		}
		if err := r.invoke(ru.tmpl, nf, params); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) builtin(f *frame, mode expandedName) error {
	n := f.node
	switch n.Kind {
	case xmltree.DocumentNode, xmltree.ElementNode:
		return r.applyTemplates(n.Children, mode, nil)
	case xmltree.TextNode, xmltree.AttributeNode:
		return r.out.CharData(n.Data)
	}
	return nil
}

func (r *run) invoke(t *template, f *frame, params []paramValue) error {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > maxTemplateDepth {
		return runtimeErrorf(t.describe, "template nesting deeper than %d", maxTemplateDepth)
	}
	for _, p := range t.params {
		v, ok := passed(params, p.name)
		if !ok {
			var err error
			v, err = p.value(r, f)
			if err != nil {
				return runtimeError(t.describe, err)
			}
		}
		f.bind(p.name, v)
	}
	return runtimeError(t.describe, r.execBody(f, t.body))
}

func passed(params []paramValue, name expandedName) (xpath.Value, bool) {
	for _, p := range params {
		if p.name == name {
			return p.value, true
		}
	}
	return nil, false
}

// attribute adds an attribute to the open result element. Attributes that
// arrive after children or outside an element are dropped.
func (r *run) attribute(name xmltree.Name, value string) error {
	err := r.out.SetAttribute(name, value)
	if errors.Is(err, xmltree.ErrAttributeAfterChildren) || errors.Is(err, xmltree.ErrNoOpenElement) {
		return nil
	}
	return err
}

func (i *textInstr) exec(r *run, _ *frame) error {
	return r.out.CharData(i.data)
}

func (s sequenceInstr) exec(r *run, f *frame) error {
	return r.execBody(f, s)
}

func (i *literalElementInstr) exec(r *run, f *frame) error {
	if err := r.out.StartElement(i.name, nil, i.ns); err != nil {
		return err
	}
	for _, a := range i.attrs {
		v, err := a.value.eval(r.ctx(f))
		if err != nil {
			return runtimeError("<"+i.name.String()+">", err)
		}
		if err := r.attribute(a.name, v); err != nil {
			return err
		}
	}
	if err := r.execBody(f, i.body); err != nil {
		return err
	}
	return r.out.EndElement(i.name)
}

func (i *valueOfInstr) exec(r *run, f *frame) error {
	s, err := i.sel.EvaluateString(r.ctx(f))
	if err != nil {
		return runtimeError("xsl:value-of "+i.sel.String(), err)
	}
	return r.out.CharData(s)
}

func (i *copyOfInstr) exec(r *run, f *frame) error {
	v, err := i.sel.Evaluate(r.ctx(f))
	if err != nil {
		return runtimeError("xsl:copy-of "+i.sel.String(), err)
	}
	ns, ok := v.(xpath.NodeSet)
	if !ok {
		return r.out.CharData(xpath.ToString(v))
	}
	for _, n := range ns {
		if n.Kind == xmltree.AttributeNode {
			if err := r.attribute(n.Name, n.Data); err != nil {
				return err
			}
			continue
		}
		if err := r.out.AppendCopy(n); err != nil {
			return err
		}
	}
	return nil
}

func (i *copyInstr) exec(r *run, f *frame) error {
	n := f.node
	switch n.Kind {
	case xmltree.DocumentNode:
		return r.execBody(f, i.body)
	case xmltree.ElementNode:
		if err := r.out.StartElement(n.Name, nil, n.InScopeNamespaces()); err != nil {
			return err
		}
		if err := r.execBody(f, i.body); err != nil {
			return err
		}
		return r.out.EndElement(n.Name)
	case xmltree.AttributeNode:
		return r.attribute(n.Name, n.Data)
	case xmltree.TextNode:
		return r.out.CharData(n.Data)
	case xmltree.CommentNode:
		return r.out.Comment(n.Data)
	case xmltree.ProcessingInstructionNode:
		return r.out.ProcessingInstruction(n.Name.Local, n.Data)
	}
	return nil
}

// computedName evaluates the name and namespace of xsl:element or xsl:attribute.
func (r *run) computedName(f *frame, el *xmltree.Node, name, namespace *avt, useDefault bool) (xmltree.Name, error) {
	ctx := r.ctx(f)
	qname, err := name.eval(ctx)
	if err != nil {
		return xmltree.Name{}, err
	}
	prefix, local, hasPrefix := splitQName(qname)
	if local == "" {
		return xmltree.Name{}, fmt.Errorf("invalid name %q", qname)
	}
	if namespace != nil {
		uri, err := namespace.eval(ctx)
		if err != nil {
			return xmltree.Name{}, err
		}
		if uri == "" {
			prefix = ""
		}
		return xmltree.Name{Space: uri, Local: local, Prefix: prefix}, nil
	}
	if !hasPrefix && !useDefault {
		return xmltree.Name{Local: local}, nil
	}
	uri, found := el.LookupNamespace(prefix)
	if !found || (hasPrefix && uri == "") {
		return xmltree.Name{}, fmt.Errorf("undeclared prefix %q in %q", prefix, qname)
	}
	return xmltree.Name{Space: uri, Local: local, Prefix: prefix}, nil
}

func splitQName(qname string) (prefix, local string, hasPrefix bool) {
	prefix, local, hasPrefix = cutQName(qname)
	if !isNCName(local) || (hasPrefix && !isNCName(prefix)) {
		return "", "", false
	}
	return prefix, local, hasPrefix
}

func (i *elementInstr) exec(r *run, f *frame) error {
	name, err := r.computedName(f, i.el, i.name, i.namespace, true)
	if err != nil {
		return runtimeError("xsl:element", err)
	}
	if err := r.out.StartElement(name, nil, nil); err != nil {
		return err
	}
	if err := r.execBody(f, i.body); err != nil {
		return err
	}
	return r.out.EndElement(name)
}

func (i *attributeInstr) exec(r *run, f *frame) error {
	name, err := r.computedName(f, i.el, i.name, i.namespace, false)
	if err != nil {
		return runtimeError("xsl:attribute", err)
	}
	if name.Space == "" && name.Local == "xmlns" {
		return runtimeErrorf("xsl:attribute", "cannot create an attribute named xmlns")
	}
	value, err := r.captureString(f, i.body)
	if err != nil {
		return err
	}
	return r.attribute(name, value)
}

func (i *commentInstr) exec(r *run, f *frame) error {
	data, err := r.captureString(f, i.body)
	if err != nil {
		return err
	}
	return r.out.Comment(data)
}

func (i *piInstr) exec(r *run, f *frame) error {
	target, err := i.name.eval(r.ctx(f))
	if err != nil {
		return runtimeError("xsl:processing-instruction", err)
	}
	if !isNCName(target) || strings.EqualFold(target, "xml") {
		return runtimeErrorf("xsl:processing-instruction", "invalid target %q", target)
	}
	data, err := r.captureString(f, i.body)
	if err != nil {
		return err
	}
	return r.out.ProcessingInstruction(target, data)
}

func (i *ifInstr) exec(r *run, f *frame) error {
	ok, err := i.test.EvaluateBool(r.ctx(f))
	if err != nil {
		return runtimeError("xsl:if "+i.test.String(), err)
	}
	if !ok {
		return nil
	}
	return r.execBody(f, i.body)
}

func (i *chooseInstr) exec(r *run, f *frame) error {
	for _, w := range i.whens {
		ok, err := w.test.EvaluateBool(r.ctx(f))
		if err != nil {
			return runtimeError("xsl:when "+w.test.String(), err)
		}
		if ok {
			return r.execBody(f, w.body)
		}
	}
	return r.execBody(f, i.otherwise)
}

func (r *run) selectNodes(f *frame, sel *xpath.Expr, sorts []*sortKey, instr string) ([]*xmltree.Node, error) {
	v, err := sel.Evaluate(r.ctx(f))
	if err != nil {
		return nil, runtimeError(instr+" "+sel.String(), err)
	}
	ns, ok := v.(xpath.NodeSet)
	if !ok {
		return nil, runtimeErrorf(instr+" "+sel.String(), "select returned a %s, not a node-set", xpath.TypeName(v))
	}
	nodes := []*xmltree.Node(ns)
	if len(sorts) > 0 {
		nodes, err = r.sortNodes(f, nodes, sorts)
		if err != nil {
			return nil, runtimeError(instr, err)
		}
	}
	return nodes, nil
}

func (i *forEachInstr) exec(r *run, f *frame) error {
	nodes, err := r.selectNodes(f, i.sel, i.sorts, "xsl:for-each")
	if err != nil {
		return err
	}
	for pos, n := range nodes {
		inner := &frame{node: n, pos: pos + 1, size: len(nodes), vars: f.vars}
		if err := r.execBody(inner, i.body); err != nil {
			return err
		}
	}
	return nil
}

func (i *applyTemplatesInstr) exec(r *run, f *frame) error {
	nodes, err := r.selectNodes(f, i.sel, i.sorts, "xsl:apply-templates")
	if err != nil {
		return err
	}
	params, err := r.evalParams(f, i.params)
	if err != nil {
		return err
	}
	return r.applyTemplates(nodes, i.mode, params)
}

func (i *callTemplateInstr) exec(r *run, f *frame) error {
	t := r.sheet.named[i.name]
	params, err := r.evalParams(f, i.params)
	if err != nil {
		return err
	}
	return r.invoke(t, &frame{node: f.node, pos: f.pos, size: f.size}, params)
}

func (i *variableInstr) exec(r *run, f *frame) error {
	v, err := i.v.value(r, f)
	if err != nil {
		kind := "xsl:variable"
		if i.v.isParam {
			kind = "xsl:param"
		}
		return runtimeError(kind+" "+i.v.name.String(), err)
	}
	f.bind(i.v.name, v)
	return nil
}

func (i *messageInstr) exec(r *run, f *frame) error {
	text, err := r.captureString(f, i.body)
	if err != nil {
		return err
	}
	if r.onMessage != nil {
		r.onMessage(text)
	}
	if i.terminate {
		return &TerminateError{Message: text}
	}
	return nil
}
