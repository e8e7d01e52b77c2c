package xpath

import (
	"strings"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

// Pattern is a compiled XSLT match pattern: a union of location path
// alternatives using only the child and attribute axes.
type Pattern struct {
	src  string
	alts []*PatternAlt
}

// PatternAlt is one alternative of a union pattern.
type PatternAlt struct {
	src      string
	absolute bool
	steps    []step
}

// String returns the source text of the pattern.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.src
}

// Alternatives returns the union branches in source order.
func (p *Pattern) Alternatives() []*PatternAlt {
	return p.alts
}

// CompilePattern parses a match pattern, resolving prefixes against nsContext.
func CompilePattern(src string, nsContext map[string]string) (*Pattern, error) {
	p, err := newParser(src, nsContext)
	if err != nil {
		return nil, err
	}
	pat := &Pattern{src: src}
	for {
		start := p.peek().pos
		path, err := p.parseLocationPath()
		if err != nil {
			return nil, err
		}
		end := len(p.src)
		if t := p.peek(); t.kind != tokEOF {
			end = t.pos
		}
		alt, err := newPatternAlt(strings.TrimSpace(p.src[start:end]), path.(*pathExpr))
		if err != nil {
			return nil, err
		}
		pat.alts = append(pat.alts, alt)
		if p.accept(tokOperator, "|") {
			continue
		}
		if !p.peek().is(tokEOF, "") {
			return nil, p.errorf("unexpected %q in pattern", p.peek().text)
		}
		return pat, nil
	}
}

func newPatternAlt(src string, path *pathExpr) (*PatternAlt, error) {
	for i, st := range path.steps {
		switch st.axis {
		case AxisChild, AxisAttribute:
		case AxisDescendantOrSelf:
			if st.test.kind != testNode || len(st.preds) > 0 || i == len(path.steps)-1 {
				return nil, xpathErrorf("pattern %q uses the descendant-or-self axis", src)
			}
		default:
			return nil, xpathErrorf("pattern %q may only use the child and attribute axes", src)
		}
	}
	return &PatternAlt{src: src, absolute: path.absolute, steps: path.steps}, nil
}

// String returns the source text of the alternative.
func (a *PatternAlt) String() string {
	return a.src
}

// DefaultPriority returns the priority assigned to the alternative when a
// template gives none.
func (a *PatternAlt) DefaultPriority() float64 {
	if len(a.steps) != 1 || a.absolute || len(a.steps[0].preds) > 0 {
		return 0.5
	}
	switch a.steps[0].test.kind {
	case testName:
		return 0
	case testPI:
		if a.steps[0].test.piTarget != "" {
			return 0
		}
		return -0.5
	case testNamespace:
		return -0.25
	default:
		return -0.5
	}
}

// Matches reports whether n matches the pattern.
func (p *Pattern) Matches(n *xmltree.Node, env Environment) (bool, error) {
	for _, alt := range p.alts {
		ok, err := alt.Matches(n, env)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Matches reports whether n matches the alternative.
func (a *PatternAlt) Matches(n *xmltree.Node, env Environment) (bool, error) {
	if n == nil {
		return false, nil
	}
	if len(a.steps) == 0 {
		return a.absolute && n.Kind == xmltree.DocumentNode, nil
	}
	return a.matchAt(n, len(a.steps)-1, env)
}

func (a *PatternAlt) matchAt(n *xmltree.Node, i int, env Environment) (bool, error) {
	ok, err := matchStep(n, &a.steps[i], env)
	if err != nil || !ok {
		return false, err
	}
	if i == 0 {
		if a.absolute {
			return n.Parent != nil && n.Parent.Kind == xmltree.DocumentNode, nil
		}
		return true, nil
	}
	if a.steps[i-1].axis == AxisDescendantOrSelf {
		if i-1 == 0 {
			return !a.absolute || n.Root().Kind == xmltree.DocumentNode, nil
		}
		for anc := n.Parent; anc != nil; anc = anc.Parent {
			ok, err := a.matchAt(anc, i-2, env)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	if n.Parent == nil {
		return false, nil
	}
	return a.matchAt(n.Parent, i-1, env)
}

// matchStep tests n against one pattern step. Predicates are evaluated
// with positions counted among the nodes the step selects from n's parent.
func matchStep(n *xmltree.Node, st *step, env Environment) (bool, error) {
	switch st.axis {
	case AxisAttribute:
		if n.Kind != xmltree.AttributeNode {
			return false, nil
		}
	default:
		if n.Kind == xmltree.AttributeNode || n.Kind == xmltree.DocumentNode {
			return false, nil
		}
	}
	if !st.test.matches(n, st.axis) {
		return false, nil
	}
	if len(st.preds) == 0 {
		return true, nil
	}
	if n.Parent == nil {
		return false, nil
	}
	candidates, err := st.apply(&Context{Env: env}, n.Parent)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if c == n {
			return true, nil
		}
	}
	return false, nil
}
