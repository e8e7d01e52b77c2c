package xpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

// ErrInvalidXPath reports an expression or pattern that does not parse.
var ErrInvalidXPath = errors.New("invalid xpath")

func xpathErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidXPath}, args...)...)
}

// Axis describes the XPath axis used in a step.
type Axis int

const (
	AxisChild Axis = iota
	AxisDescendant
	AxisDescendantOrSelf
	AxisSelf
	AxisParent
	AxisAncestor
	AxisAncestorOrSelf
	AxisFollowingSibling
	AxisPrecedingSibling
	AxisFollowing
	AxisPreceding
	AxisAttribute
)

var axisNames = map[string]Axis{
	"child":              AxisChild,
	"descendant":         AxisDescendant,
	"descendant-or-self": AxisDescendantOrSelf,
	"self":               AxisSelf,
	"parent":             AxisParent,
	"ancestor":           AxisAncestor,
	"ancestor-or-self":   AxisAncestorOrSelf,
	"following-sibling":  AxisFollowingSibling,
	"preceding-sibling":  AxisPrecedingSibling,
	"following":          AxisFollowing,
	"preceding":          AxisPreceding,
	"attribute":          AxisAttribute,
}

func (a Axis) reverse() bool {
	switch a {
	case AxisParent, AxisAncestor, AxisAncestorOrSelf, AxisPrecedingSibling, AxisPreceding:
		return true
	}
	return false
}

type testKind uint8

const (
	testName      testKind = iota // QName
	testAnyName                   // *
	testNamespace                 // prefix:*
	testNode                      // node()
	testText                      // text()
	testComment                   // comment()
	testPI                        // processing-instruction('target'?)
)

type nodeTest struct {
	kind     testKind
	name     xmltree.Name
	piTarget string
}

type step struct {
	axis  Axis
	test  nodeTest
	preds []expr
}

// Expr is a compiled XPath expression.
type Expr struct {
	src  string
	root expr
}

// String returns the source text of the expression.
func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	return e.src
}

// Compile parses expr, resolving prefixes against nsContext.
// Unprefixed names in node tests and variable references are in no namespace.
func Compile(expr string, nsContext map[string]string) (*Expr, error) {
	p, err := newParser(expr, nsContext)
	if err != nil {
		return nil, err
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.peek().is(tokEOF, "") {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return &Expr{src: expr, root: root}, nil
}

// MustCompile is like Compile but panics on error. It is meant for
// expressions fixed at build time.
func MustCompile(expr string, nsContext map[string]string) *Expr {
	e, err := Compile(expr, nsContext)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	src  string
	toks []token
	pos  int
	ns   map[string]string
}

func newParser(src string, nsContext map[string]string) (*parser, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, xpathErrorf("xpath cannot be empty")
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	return &parser{src: src, toks: toks, ns: nsContext}, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.peek().is(kind, text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) error {
	if !p.accept(kind, text) {
		found := p.peek().text
		if p.peek().kind == tokEOF {
			found = "end of expression"
		}
		return p.errorf("expected %q, found %q", text, found)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return xpathErrorf("%s in %q at %d", fmt.Sprintf(format, args...), p.src, p.peek().pos)
}

func (p *parser) resolveQName(qname string) (xmltree.Name, error) {
	prefix, local, ok := strings.Cut(qname, ":")
	if !ok {
		return xmltree.Name{Local: qname}, nil
	}
	uri, found := p.lookupPrefix(prefix)
	if !found {
		return xmltree.Name{}, p.errorf("undeclared prefix %q", prefix)
	}
	return xmltree.Name{Space: uri, Local: local, Prefix: prefix}, nil
}

func (p *parser) lookupPrefix(prefix string) (string, bool) {
	if prefix == "xml" {
		return xmltree.XMLNamespace, true
	}
	uri, ok := p.ns[prefix]
	return uri, ok && uri != ""
}

func (p *parser) parseExpr() (expr, error) {
	return p.parseBinary(0)
}

// binaryLevels lists operators from lowest to highest precedence.
var binaryLevels = [][]string{
	{"or"},
	{"and"},
	{"=", "!="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "div", "mod"},
}

func (p *parser) parseBinary(level int) (expr, error) {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOperator || !contains(binaryLevels[level], t.text) {
			return left, nil
		}
		p.next()
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left = newBinary(t.text, left, right)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func newBinary(op string, left, right expr) expr {
	switch op {
	case "or":
		return &logicalExpr{and: false, left: left, right: right}
	case "and":
		return &logicalExpr{and: true, left: left, right: right}
	case "=", "!=", "<", "<=", ">", ">=":
		return &compareExpr{op: op, left: left, right: right}
	default:
		return &arithExpr{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (expr, error) {
	if p.accept(tokOperator, "-") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negExpr{x: x}, nil
	}
	return p.parseUnion()
}

func (p *parser) parseUnion() (expr, error) {
	left, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	for p.accept(tokOperator, "|") {
		right, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		left = &unionExpr{left: left, right: right}
	}
	return left, nil
}

func isNodeType(name string) bool {
	switch name {
	case "node", "text", "comment", "processing-instruction":
		return true
	}
	return false
}

func (p *parser) startsFilter() bool {
	t := p.peek()
	switch t.kind {
	case tokVariable, tokLiteral, tokNumber:
		return true
	case tokPunct:
		return t.text == "("
	case tokName:
		return p.peekAt(1).is(tokPunct, "(") && !isNodeType(t.text)
	}
	return false
}

func (p *parser) parsePath() (expr, error) {
	if p.startsFilter() {
		primary, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		preds, err := p.parsePredicates()
		if err != nil {
			return nil, err
		}
		var base expr = primary
		if len(preds) > 0 {
			base = &filterExpr{primary: primary, preds: preds}
		}
		t := p.peek()
		if !t.is(tokOperator, "/") && !t.is(tokOperator, "//") {
			return base, nil
		}
		path := &pathExpr{filter: base}
		if err := p.parseRelative(path); err != nil {
			return nil, err
		}
		return path, nil
	}
	return p.parseLocationPath()
}

func (p *parser) parseLocationPath() (expr, error) {
	path := &pathExpr{}
	switch {
	case p.accept(tokOperator, "/"):
		path.absolute = true
		if !p.startsStep() {
			return path, nil
		}
		if err := p.parseSteps(path); err != nil {
			return nil, err
		}
	case p.accept(tokOperator, "//"):
		path.absolute = true
		path.steps = append(path.steps, descendantOrSelfStep())
		if err := p.parseSteps(path); err != nil {
			return nil, err
		}
	default:
		if err := p.parseSteps(path); err != nil {
			return nil, err
		}
	}
	return path, nil
}

// parseRelative parses ('/' | '//') RelativeLocationPath after a filter.
func (p *parser) parseRelative(path *pathExpr) error {
	switch {
	case p.accept(tokOperator, "/"):
	case p.accept(tokOperator, "//"):
		path.steps = append(path.steps, descendantOrSelfStep())
	default:
		return nil
	}
	return p.parseSteps(path)
}

func (p *parser) startsStep() bool {
	t := p.peek()
	switch t.kind {
	case tokName:
		return true
	case tokPunct:
		return t.text == "." || t.text == ".." || t.text == "@"
	}
	return false
}

func descendantOrSelfStep() step {
	return step{axis: AxisDescendantOrSelf, test: nodeTest{kind: testNode}}
}

func (p *parser) parseSteps(path *pathExpr) error {
	for {
		st, err := p.parseStep()
		if err != nil {
			return err
		}
		path.steps = append(path.steps, st)
		switch {
		case p.accept(tokOperator, "/"):
		case p.accept(tokOperator, "//"):
			path.steps = append(path.steps, descendantOrSelfStep())
		default:
			return nil
		}
	}
}

func (p *parser) parseStep() (step, error) {
	if p.accept(tokPunct, ".") {
		return step{axis: AxisSelf, test: nodeTest{kind: testNode}}, nil
	}
	if p.accept(tokPunct, "..") {
		return step{axis: AxisParent, test: nodeTest{kind: testNode}}, nil
	}

	axis := AxisChild
	switch {
	case p.accept(tokPunct, "@"):
		axis = AxisAttribute
	case p.peek().kind == tokName && p.peekAt(1).is(tokPunct, "::"):
		name := p.next().text
		a, ok := axisNames[name]
		if !ok {
			if name == "namespace" {
				return step{}, p.errorf("namespace axis is not supported")
			}
			return step{}, p.errorf("unknown axis %q", name)
		}
		p.next()
		axis = a
	}

	test, err := p.parseNodeTest()
	if err != nil {
		return step{}, err
	}
	preds, err := p.parsePredicates()
	if err != nil {
		return step{}, err
	}
	return step{axis: axis, test: test, preds: preds}, nil
}

func (p *parser) parseNodeTest() (nodeTest, error) {
	t := p.peek()
	if t.kind != tokName {
		if t.kind == tokEOF {
			return nodeTest{}, p.errorf("step is missing a node test")
		}
		return nodeTest{}, p.errorf("expected node test, found %q", t.text)
	}
	p.next()

	if isNodeType(t.text) && p.peek().is(tokPunct, "(") {
		p.next()
		test := nodeTest{}
		switch t.text {
		case "node":
			test.kind = testNode
		case "text":
			test.kind = testText
		case "comment":
			test.kind = testComment
		case "processing-instruction":
			test.kind = testPI
			if p.peek().kind == tokLiteral {
				test.piTarget = p.next().text
			}
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return nodeTest{}, err
		}
		return test, nil
	}

	if t.text == "*" {
		return nodeTest{kind: testAnyName}, nil
	}
	if prefix, ok := strings.CutSuffix(t.text, ":*"); ok {
		uri, found := p.lookupPrefix(prefix)
		if !found {
			return nodeTest{}, p.errorf("undeclared prefix %q", prefix)
		}
		return nodeTest{kind: testNamespace, name: xmltree.Name{Space: uri, Prefix: prefix}}, nil
	}
	name, err := p.resolveQName(t.text)
	if err != nil {
		return nodeTest{}, err
	}
	return nodeTest{kind: testName, name: name}, nil
}

func (p *parser) parsePredicates() ([]expr, error) {
	var preds []expr
	for p.accept(tokPunct, "[") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokPunct, "]"); err != nil {
			return nil, err
		}
		preds = append(preds, e)
	}
	return preds, nil
}

func (p *parser) parsePrimary() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokVariable:
		name, err := p.resolveQName(t.text)
		if err != nil {
			return nil, err
		}
		return &varExpr{name: name}, nil
	case tokLiteral:
		return &literalExpr{v: String(t.text)}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, xpathErrorf("invalid number %q", t.text)
		}
		return &numberExpr{v: Number(f)}, nil
	case tokPunct:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokPunct, ")"); err != nil {
			return nil, err
		}
		return e, nil
	case tokName:
		return p.parseCall(t)
	}
	return nil, p.errorf("unexpected %q", t.text)
}

func (p *parser) parseCall(t token) (expr, error) {
	name, err := p.resolveQName(t.text)
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokPunct, "("); err != nil {
		return nil, err
	}
	var args []expr
	if !p.accept(tokPunct, ")") {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.accept(tokPunct, ")") {
				break
			}
			if err := p.expect(tokPunct, ","); err != nil {
				return nil, err
			}
		}
	}
	call := &callExpr{name: name, args: args}
	if name.Space == "" {
		if fn, ok := coreFunctions[name.Local]; ok {
			if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
				return nil, xpathErrorf("function %s called with %d arguments in %q", name.Local, len(args), p.src)
			}
			call.core = fn.fn
		}
	}
	return call, nil
}
