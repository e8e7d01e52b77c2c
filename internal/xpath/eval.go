package xpath

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

// ErrEvaluation reports a dynamic error raised while evaluating an expression.
var ErrEvaluation = errors.New("xpath evaluation failed")

func evalErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrEvaluation}, args...)...)
}

// Function implements an XPath function. Arguments are already evaluated.
type Function func(ctx *Context, args []Value) (Value, error)

// Environment supplies variable bindings and functions beyond the core library.
type Environment interface {
	// Variable returns the value bound to name or an error when unbound.
	Variable(name xmltree.Name) (Value, error)
	// Function returns the implementation of name, if any.
	Function(name xmltree.Name) (Function, bool)
}

// Context is the dynamic evaluation context.
type Context struct {
	Node     *xmltree.Node
	Position int
	Size     int
	Env      Environment
}

// NewContext returns a context for node at position 1 of 1.
func NewContext(node *xmltree.Node, env Environment) *Context {
	return &Context{Node: node, Position: 1, Size: 1, Env: env}
}

func (c *Context) with(node *xmltree.Node, pos, size int) *Context {
	return &Context{Node: node, Position: pos, Size: size, Env: c.Env}
}

// Evaluate returns the value of e in ctx.
func (e *Expr) Evaluate(ctx *Context) (Value, error) {
	if e == nil || e.root == nil {
		return nil, evalErrorf("nil expression")
	}
	if ctx == nil {
		ctx = &Context{}
	}
	return e.root.eval(ctx)
}

// EvaluateString evaluates e and converts the result with string().
func (e *Expr) EvaluateString(ctx *Context) (string, error) {
	v, err := e.Evaluate(ctx)
	if err != nil {
		return "", err
	}
	return ToString(v), nil
}

// EvaluateBool evaluates e and converts the result with boolean().
func (e *Expr) EvaluateBool(ctx *Context) (bool, error) {
	v, err := e.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	return ToBoolean(v), nil
}

// EvaluateNumber evaluates e and converts the result with number().
func (e *Expr) EvaluateNumber(ctx *Context) (float64, error) {
	v, err := e.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	return ToNumber(v), nil
}

// EvaluateNodeSet evaluates e and requires a node-set result.
func (e *Expr) EvaluateNodeSet(ctx *Context) (NodeSet, error) {
	v, err := e.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	ns, ok := v.(NodeSet)
	if !ok {
		return nil, evalErrorf("%q evaluates to a %s, not a node-set", e.src, TypeName(v))
	}
	return ns, nil
}

type expr interface {
	eval(ctx *Context) (Value, error)
}

type literalExpr struct{ v String }

func (e *literalExpr) eval(*Context) (Value, error) { return e.v, nil }

type numberExpr struct{ v Number }

func (e *numberExpr) eval(*Context) (Value, error) { return e.v, nil }

type varExpr struct{ name xmltree.Name }

func (e *varExpr) eval(ctx *Context) (Value, error) {
	if ctx.Env == nil {
		return nil, evalErrorf("variable $%s is not bound", e.name)
	}
	return ctx.Env.Variable(e.name)
}

type logicalExpr struct {
	and         bool
	left, right expr
}

func (e *logicalExpr) eval(ctx *Context) (Value, error) {
	l, err := e.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	lb := ToBoolean(l)
	if e.and && !lb {
		return Boolean(false), nil
	}
	if !e.and && lb {
		return Boolean(true), nil
	}
	r, err := e.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	return Boolean(ToBoolean(r)), nil
}

type arithExpr struct {
	op          string
	left, right expr
}

func (e *arithExpr) eval(ctx *Context) (Value, error) {
	l, err := e.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := e.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	a, b := ToNumber(l), ToNumber(r)
	switch e.op {
	case "+":
		return Number(a + b), nil
	case "-":
		return Number(a - b), nil
	case "*":
		return Number(a * b), nil
	case "div":
		return Number(a / b), nil
	case "mod":
		return Number(math.Mod(a, b)), nil
	}
	return nil, evalErrorf("unknown operator %s", e.op)
}

type negExpr struct{ x expr }

func (e *negExpr) eval(ctx *Context) (Value, error) {
	v, err := e.x.eval(ctx)
	if err != nil {
		return nil, err
	}
	return Number(-ToNumber(v)), nil
}

type unionExpr struct{ left, right expr }

func (e *unionExpr) eval(ctx *Context) (Value, error) {
	l, err := e.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := e.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	ln, lok := l.(NodeSet)
	rn, rok := r.(NodeSet)
	if !lok || !rok {
		return nil, evalErrorf("union operands must be node-sets")
	}
	return NewNodeSet(append(slices.Clone(ln), rn...)), nil
}

type callExpr struct {
	name xmltree.Name
	args []expr
	core Function
}

func (e *callExpr) eval(ctx *Context) (Value, error) {
	fn := e.core
	if fn == nil {
		if ctx.Env != nil {
			fn, _ = ctx.Env.Function(e.name)
		}
		if fn == nil {
			return nil, evalErrorf("unknown function %s()", e.name)
		}
	}
	args := make([]Value, len(e.args))
	for i, a := range e.args {
		v, err := a.eval(ctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(ctx, args)
}

type filterExpr struct {
	primary expr
	preds   []expr
}

func (e *filterExpr) eval(ctx *Context) (Value, error) {
	v, err := e.primary.eval(ctx)
	if err != nil {
		return nil, err
	}
	ns, ok := v.(NodeSet)
	if !ok {
		return nil, evalErrorf("predicate applied to a %s", TypeName(v))
	}
	nodes := []*xmltree.Node(ns)
	for _, pred := range e.preds {
		nodes, err = applyPredicate(ctx, nodes, pred)
		if err != nil {
			return nil, err
		}
	}
	return NodeSet(nodes), nil
}

type pathExpr struct {
	filter   expr
	absolute bool
	steps    []step
}

func (e *pathExpr) eval(ctx *Context) (Value, error) {
	var current []*xmltree.Node
	switch {
	case e.filter != nil:
		v, err := e.filter.eval(ctx)
		if err != nil {
			return nil, err
		}
		ns, ok := v.(NodeSet)
		if !ok {
			return nil, evalErrorf("path applied to a %s", TypeName(v))
		}
		current = ns
	case e.absolute:
		if ctx.Node == nil {
			return nil, evalErrorf("absolute path without a context node")
		}
		current = []*xmltree.Node{ctx.Node.Root()}
	default:
		if ctx.Node == nil {
			return nil, evalErrorf("relative path without a context node")
		}
		current = []*xmltree.Node{ctx.Node}
	}

	for i := range e.steps {
		st := &e.steps[i]
		var next []*xmltree.Node
		for _, n := range current {
			selected, err := st.apply(ctx, n)
			if err != nil {
				return nil, err
			}
			next = append(next, selected...)
		}
		current = []*xmltree.Node(NewNodeSet(next))
	}
	return NodeSet(current), nil
}

// apply selects the nodes reached from n along the step, in axis order.
func (st *step) apply(ctx *Context, n *xmltree.Node) ([]*xmltree.Node, error) {
	var out []*xmltree.Node
	walkAxis(st.axis, n, func(c *xmltree.Node) {
		if st.test.matches(c, st.axis) {
			out = append(out, c)
		}
	})
	var err error
	for _, pred := range st.preds {
		out, err = applyPredicate(ctx, out, pred)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyPredicate(ctx *Context, nodes []*xmltree.Node, pred expr) ([]*xmltree.Node, error) {
	out := nodes[:0:0]
	size := len(nodes)
	for i, n := range nodes {
		v, err := pred.eval(ctx.with(n, i+1, size))
		if err != nil {
			return nil, err
		}
		keep := false
		if num, ok := v.(Number); ok {
			keep = float64(num) == float64(i+1)
		} else {
			keep = ToBoolean(v)
		}
		if keep {
			out = append(out, n)
		}
	}
	return out, nil
}

func (t nodeTest) matches(n *xmltree.Node, axis Axis) bool {
	principal := xmltree.ElementNode
	if axis == AxisAttribute {
		principal = xmltree.AttributeNode
	}
	switch t.kind {
	case testNode:
		return true
	case testText:
		return n.Kind == xmltree.TextNode
	case testComment:
		return n.Kind == xmltree.CommentNode
	case testPI:
		return n.Kind == xmltree.ProcessingInstructionNode && (t.piTarget == "" || n.Name.Local == t.piTarget)
	case testAnyName:
		return n.Kind == principal
	case testNamespace:
		return n.Kind == principal && n.Name.Space == t.name.Space
	case testName:
		return n.Kind == principal && n.Name.Local == t.name.Local && n.Name.Space == t.name.Space
	}
	return false
}

// walkAxis visits the nodes on axis from n in axis order: reverse axes
// yield nearest nodes first.
func walkAxis(axis Axis, n *xmltree.Node, visit func(*xmltree.Node)) {
	switch axis {
	case AxisChild:
		for _, c := range n.Children {
			visit(c)
		}
	case AxisAttribute:
		if n.Kind == xmltree.ElementNode {
			for _, a := range n.Attrs {
				visit(a)
			}
		}
	case AxisSelf:
		visit(n)
	case AxisDescendant:
		descendants(n, visit)
	case AxisDescendantOrSelf:
		visit(n)
		descendants(n, visit)
	case AxisParent:
		if n.Parent != nil {
			visit(n.Parent)
		}
	case AxisAncestor:
		for p := n.Parent; p != nil; p = p.Parent {
			visit(p)
		}
	case AxisAncestorOrSelf:
		for p := n; p != nil; p = p.Parent {
			visit(p)
		}
	case AxisFollowingSibling:
		sibs, idx := siblings(n)
		for _, s := range sibs[idx+1:] {
			visit(s)
		}
	case AxisPrecedingSibling:
		sibs, idx := siblings(n)
		for i := idx - 1; i >= 0; i-- {
			visit(sibs[i])
		}
	case AxisFollowing:
		start := n
		if n.Kind == xmltree.AttributeNode {
			start = n.Parent
			descendants(start, visit)
		}
		for cur := start; cur != nil && cur.Parent != nil; cur = cur.Parent {
			sibs, idx := siblings(cur)
			for _, s := range sibs[idx+1:] {
				visit(s)
				descendants(s, visit)
			}
		}
	case AxisPreceding:
		start := n
		if n.Kind == xmltree.AttributeNode {
			start = n.Parent
		}
		for cur := start; cur != nil && cur.Parent != nil; cur = cur.Parent {
			sibs, idx := siblings(cur)
			for i := idx - 1; i >= 0; i-- {
				reverseDescendants(sibs[i], visit)
				visit(sibs[i])
			}
		}
	}
}

func descendants(n *xmltree.Node, visit func(*xmltree.Node)) {
	for _, c := range n.Children {
		visit(c)
		descendants(c, visit)
	}
}

func reverseDescendants(n *xmltree.Node, visit func(*xmltree.Node)) {
	for i := len(n.Children) - 1; i >= 0; i-- {
		c := n.Children[i]
		reverseDescendants(c, visit)
		visit(c)
	}
}

// siblings returns the child list containing n and its index. Attributes
// and the document node have no siblings.
func siblings(n *xmltree.Node) ([]*xmltree.Node, int) {
	if n.Parent == nil || n.Kind == xmltree.AttributeNode {
		return nil, -1
	}
	for i, c := range n.Parent.Children {
		if c == n {
			return n.Parent.Children, i
		}
	}
	return nil, -1
}
