package xslt

import (
	"strings"

	"github.com/jacoelho/weffo/internal/xpath"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// instruction is one compiled node of a template body.
type instruction interface {
	exec(r *run, f *frame) error
}

type textInstr struct {
	data string
}

type literalElementInstr struct {
	name  xmltree.Name
	ns    []xmltree.Namespace
	attrs []literalAttr
	body  []instruction
}

type literalAttr struct {
	name  xmltree.Name
	value *avt
}

type valueOfInstr struct {
	sel *xpath.Expr
}

type copyOfInstr struct {
	sel *xpath.Expr
}

type copyInstr struct {
	body []instruction
}

type elementInstr struct {
	el        *xmltree.Node
	name      *avt
	namespace *avt
	body      []instruction
}

type attributeInstr struct {
	el        *xmltree.Node
	name      *avt
	namespace *avt
	body      []instruction
}

type commentInstr struct {
	body []instruction
}

type piInstr struct {
	name *avt
	body []instruction
}

type ifInstr struct {
	test *xpath.Expr
	body []instruction
}

type whenClause struct {
	test *xpath.Expr
	body []instruction
}

type chooseInstr struct {
	whens     []whenClause
	otherwise []instruction
}

type forEachInstr struct {
	sel   *xpath.Expr
	sorts []*sortKey
	body  []instruction
}

type applyTemplatesInstr struct {
	sel    *xpath.Expr
	mode   expandedName
	sorts  []*sortKey
	params []*variable
}

type callTemplateInstr struct {
	el     *xmltree.Node
	name   expandedName
	params []*variable
}

type sequenceInstr []instruction

type variableInstr struct {
	v *variable
}

type messageInstr struct {
	terminate bool
	body      []instruction
}

// variable is a compiled xsl:variable, xsl:param or xsl:with-param.
type variable struct {
	name    expandedName
	isParam bool
	sel     *xpath.Expr
	body    []instruction
}

var childNodes = xpath.MustCompile("child::node()", nil)

// body compiles the children of parent that form a sequence constructor.
func (c *compiler) body(parent *xmltree.Node, children []*xmltree.Node) ([]instruction, error) {
	preserve := preservesSpace(parent)
	var out []instruction
	for _, child := range children {
		switch child.Kind {
		case xmltree.TextNode:
			if !preserve && xmltree.IsWhitespace(child.Data) {
				continue
			}
			out = append(out, &textInstr{data: child.Data})
		case xmltree.ElementNode:
			ins, err := c.instruction(child)
			if err != nil {
				return nil, err
			}
			if ins != nil {
				out = append(out, ins)
			}
		}
	}
	return out, nil
}

func preservesSpace(el *xmltree.Node) bool {
	for cur := el; cur != nil && cur.Kind == xmltree.ElementNode; cur = cur.Parent {
		if a, ok := cur.Attr(xmltree.XMLNamespace, "space"); ok {
			return a.Data == "preserve"
		}
	}
	return false
}

func (c *compiler) instruction(el *xmltree.Node) (instruction, error) {
	if el.Name.Space != Namespace {
		return c.literalElement(el)
	}
	ns := namespaceContext(el)
	switch el.Name.Local {
	case "apply-templates":
		return c.applyTemplates(el, ns)
	case "call-template":
		return c.callTemplate(el)
	case "for-each":
		sel, err := requiredExpr(el, "select", ns)
		if err != nil {
			return nil, err
		}
		sorts, rest, err := c.sorts(el)
		if err != nil {
			return nil, err
		}
		body, err := c.body(el, rest)
		if err != nil {
			return nil, err
		}
		return &forEachInstr{sel: sel, sorts: sorts, body: body}, nil
	case "value-of":
		sel, err := requiredExpr(el, "select", ns)
		if err != nil {
			return nil, err
		}
		return &valueOfInstr{sel: sel}, nil
	case "copy-of":
		sel, err := requiredExpr(el, "select", ns)
		if err != nil {
			return nil, err
		}
		return &copyOfInstr{sel: sel}, nil
	case "copy":
		body, err := c.body(el, el.Children)
		if err != nil {
			return nil, err
		}
		return &copyInstr{body: body}, nil
	case "element", "attribute":
		return c.constructor(el, ns)
	case "text":
		var b strings.Builder
		for _, child := range el.Children {
			if child.Kind != xmltree.TextNode {
				return nil, compileErrorf(el, "xsl:text may only contain text")
			}
			b.WriteString(child.Data)
		}
		return &textInstr{data: b.String()}, nil
	case "comment":
		body, err := c.body(el, el.Children)
		if err != nil {
			return nil, err
		}
		return &commentInstr{body: body}, nil
	case "processing-instruction":
		name, err := requiredAVT(el, "name", ns)
		if err != nil {
			return nil, err
		}
		body, err := c.body(el, el.Children)
		if err != nil {
			return nil, err
		}
		return &piInstr{name: name, body: body}, nil
	case "if":
		test, err := requiredExpr(el, "test", ns)
		if err != nil {
			return nil, err
		}
		body, err := c.body(el, el.Children)
		if err != nil {
			return nil, err
		}
		return &ifInstr{test: test, body: body}, nil
	case "choose":
		return c.choose(el, ns)
	case "variable", "param":
		v, err := c.variable(el, el.Name.Local == "param")
		if err != nil {
			return nil, err
		}
		return &variableInstr{v: v}, nil
	case "message":
		body, err := c.body(el, el.Children)
		if err != nil {
			return nil, err
		}
		term, _ := el.AttrValue("terminate")
		return &messageInstr{terminate: term == "yes", body: body}, nil
	case "fallback":
		// only reached below a supported instruction, where it does nothing
		return nil, nil
	default:
		return c.fallback(el)
	}
}

// fallback compiles the xsl:fallback children of an unsupported instruction.
func (c *compiler) fallback(el *xmltree.Node) (instruction, error) {
	var body []instruction
	found := false
	for _, child := range el.Children {
		if child.Kind != xmltree.ElementNode || child.Name.Space != Namespace || child.Name.Local != "fallback" {
			continue
		}
		found = true
		ins, err := c.body(child, child.Children)
		if err != nil {
			return nil, err
		}
		body = append(body, ins...)
	}
	if !found {
		return nil, wrapCompile(el, ErrUnsupported)
	}
	return sequenceInstr(body), nil
}

func requiredExpr(el *xmltree.Node, attr string, ns map[string]string) (*xpath.Expr, error) {
	src, ok := el.AttrValue(attr)
	if !ok {
		return nil, compileErrorf(el, "missing %s attribute", attr)
	}
	e, err := xpath.Compile(src, ns)
	if err != nil {
		return nil, wrapCompile(el, err)
	}
	return e, nil
}

func optionalExpr(el *xmltree.Node, attr string, ns map[string]string) (*xpath.Expr, error) {
	if _, ok := el.AttrValue(attr); !ok {
		return nil, nil
	}
	return requiredExpr(el, attr, ns)
}

func requiredAVT(el *xmltree.Node, attr string, ns map[string]string) (*avt, error) {
	src, ok := el.AttrValue(attr)
	if !ok {
		return nil, compileErrorf(el, "missing %s attribute", attr)
	}
	a, err := parseAVT(src, ns)
	if err != nil {
		return nil, wrapCompile(el, err)
	}
	return a, nil
}

func optionalAVT(el *xmltree.Node, attr string, ns map[string]string) (*avt, error) {
	if _, ok := el.AttrValue(attr); !ok {
		return nil, nil
	}
	return requiredAVT(el, attr, ns)
}

func (c *compiler) literalElement(el *xmltree.Node) (instruction, error) {
	if err := c.excludePrefixes(el); err != nil {
		return nil, err
	}
	ns := namespaceContext(el)
	ins := &literalElementInstr{name: c.alias(el.Name)}
	seen := map[string]bool{}
	for _, decl := range el.InScopeNamespaces() {
		if c.sheet.excluded[decl.URI] {
			continue
		}
		if to, ok := c.sheet.aliases[decl.URI]; ok {
			decl = to
		}
		if seen[decl.Prefix] {
			continue
		}
		seen[decl.Prefix] = true
		ins.ns = append(ins.ns, decl)
	}
	for _, a := range el.Attrs {
		if a.Name.Space == Namespace {
			continue
		}
		value, err := parseAVT(a.Data, ns)
		if err != nil {
			return nil, wrapCompile(el, err)
		}
		ins.attrs = append(ins.attrs, literalAttr{name: c.alias(a.Name), value: value})
	}
	body, err := c.body(el, el.Children)
	if err != nil {
		return nil, err
	}
	ins.body = body
	return ins, nil
}

// alias maps a stylesheet name through xsl:namespace-alias.
func (c *compiler) alias(name xmltree.Name) xmltree.Name {
	if to, ok := c.sheet.aliases[name.Space]; ok && name.Space != "" {
		name.Space = to.URI
		name.Prefix = to.Prefix
		if to.URI == "" {
			name.Prefix = ""
		}
	}
	return name
}

func (c *compiler) applyTemplates(el *xmltree.Node, ns map[string]string) (instruction, error) {
	sel, err := optionalExpr(el, "select", ns)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		sel = childNodes
	}
	ins := &applyTemplatesInstr{sel: sel}
	if modeSrc, ok := el.AttrValue("mode"); ok {
		mode, err := resolveQName(el, modeSrc, false)
		if err != nil {
			return nil, err
		}
		ins.mode = expand(mode)
	}
	sorts, rest, err := c.sorts(el)
	if err != nil {
		return nil, err
	}
	ins.sorts = sorts
	ins.params, err = c.withParams(el, rest)
	if err != nil {
		return nil, err
	}
	return ins, nil
}

func (c *compiler) callTemplate(el *xmltree.Node) (instruction, error) {
	src, ok := el.AttrValue("name")
	if !ok {
		return nil, compileErrorf(el, "missing name attribute")
	}
	name, err := resolveQName(el, src, false)
	if err != nil {
		return nil, err
	}
	params, err := c.withParams(el, el.Children)
	if err != nil {
		return nil, err
	}
	ins := &callTemplateInstr{el: el, name: expand(name), params: params}
	c.calls = append(c.calls, ins)
	return ins, nil
}

func (c *compiler) withParams(el *xmltree.Node, children []*xmltree.Node) ([]*variable, error) {
	var params []*variable
	seen := map[expandedName]bool{}
	for _, child := range children {
		switch {
		case child.Kind == xmltree.TextNode && xmltree.IsWhitespace(child.Data):
		case child.Kind == xmltree.CommentNode || child.Kind == xmltree.ProcessingInstructionNode:
		case child.Kind == xmltree.ElementNode && child.Name.Space == Namespace && child.Name.Local == "with-param":
			v, err := c.variable(child, false)
			if err != nil {
				return nil, err
			}
			if seen[v.name] {
				return nil, compileErrorf(child, "duplicate parameter %s", v.name)
			}
			seen[v.name] = true
			params = append(params, v)
		default:
			return nil, compileErrorf(el, "unexpected content %s", describeNode(child))
		}
	}
	return params, nil
}

func describeNode(n *xmltree.Node) string {
	if n.Kind == xmltree.ElementNode {
		return "<" + n.Name.String() + ">"
	}
	return n.Kind.String()
}

func (c *compiler) variable(el *xmltree.Node, isParam bool) (*variable, error) {
	src, ok := el.AttrValue("name")
	if !ok {
		return nil, compileErrorf(el, "missing name attribute")
	}
	name, err := resolveQName(el, src, false)
	if err != nil {
		return nil, err
	}
	v := &variable{name: expand(name), isParam: isParam}
	v.sel, err = optionalExpr(el, "select", namespaceContext(el))
	if err != nil {
		return nil, err
	}
	body, err := c.body(el, el.Children)
	if err != nil {
		return nil, err
	}
	if v.sel != nil && len(body) > 0 {
		return nil, compileErrorf(el, "%s has both a select attribute and content", src)
	}
	v.body = body
	return v, nil
}

func (c *compiler) choose(el *xmltree.Node, ns map[string]string) (instruction, error) {
	ins := &chooseInstr{}
	seenOtherwise := false
	for _, child := range el.Children {
		switch {
		case child.Kind == xmltree.TextNode && xmltree.IsWhitespace(child.Data):
			continue
		case child.Kind == xmltree.CommentNode || child.Kind == xmltree.ProcessingInstructionNode:
			continue
		case child.Kind != xmltree.ElementNode || child.Name.Space != Namespace:
			return nil, compileErrorf(el, "unexpected content %s", describeNode(child))
		}
		if seenOtherwise {
			return nil, compileErrorf(el, "xsl:otherwise must be last")
		}
		body, err := c.body(child, child.Children)
		if err != nil {
			return nil, err
		}
		switch child.Name.Local {
		case "when":
			test, err := requiredExpr(child, "test", namespaceContext(child))
			if err != nil {
				return nil, err
			}
			ins.whens = append(ins.whens, whenClause{test: test, body: body})
		case "otherwise":
			ins.otherwise = body
			seenOtherwise = true
		default:
			return nil, compileErrorf(el, "unexpected content %s", describeNode(child))
		}
	}
	if len(ins.whens) == 0 {
		return nil, compileErrorf(el, "xsl:choose needs at least one xsl:when")
	}
	return ins, nil
}

func (c *compiler) constructor(el *xmltree.Node, ns map[string]string) (instruction, error) {
	name, err := requiredAVT(el, "name", ns)
	if err != nil {
		return nil, err
	}
	namespace, err := optionalAVT(el, "namespace", ns)
	if err != nil {
		return nil, err
	}
	body, err := c.body(el, el.Children)
	if err != nil {
		return nil, err
	}
	if el.Name.Local == "element" {
		return &elementInstr{el: el, name: name, namespace: namespace, body: body}, nil
	}
	return &attributeInstr{el: el, name: name, namespace: namespace, body: body}, nil
}

// sorts compiles leading xsl:sort children and returns the remaining children.
func (c *compiler) sorts(el *xmltree.Node) ([]*sortKey, []*xmltree.Node, error) {
	var keys []*sortKey
	var rest []*xmltree.Node
	for _, child := range el.Children {
		if child.Kind == xmltree.ElementNode && child.Name.Space == Namespace && child.Name.Local == "sort" {
			if len(rest) > 0 && !allWhitespace(rest) {
				return nil, nil, compileErrorf(child, "xsl:sort must come first")
			}
			rest = rest[:0]
			key, err := compileSort(child, namespaceContext(child))
			if err != nil {
				return nil, nil, err
			}
			keys = append(keys, key)
			continue
		}
		rest = append(rest, child)
	}
	return keys, rest, nil
}

func allWhitespace(nodes []*xmltree.Node) bool {
	for _, n := range nodes {
		switch n.Kind {
		case xmltree.TextNode:
			if !xmltree.IsWhitespace(n.Data) {
				return false
			}
		case xmltree.CommentNode, xmltree.ProcessingInstructionNode:
		default:
			return false
		}
	}
	return true
}
