package xslt

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/jacoelho/weffo/internal/xpath"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// sortKey is a compiled xsl:sort.
type sortKey struct {
	sel       *xpath.Expr
	order     *avt
	dataType  *avt
	caseOrder *avt
}

var dotExpr = xpath.MustCompile(".", nil)

func compileSort(el *xmltree.Node, ns map[string]string) (*sortKey, error) {
	sel, err := optionalExpr(el, "select", ns)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		sel = dotExpr
	}
	k := &sortKey{sel: sel}
	if k.order, err = optionalAVT(el, "order", ns); err != nil {
		return nil, err
	}
	if k.dataType, err = optionalAVT(el, "data-type", ns); err != nil {
		return nil, err
	}
	if k.caseOrder, err = optionalAVT(el, "case-order", ns); err != nil {
		return nil, err
	}
	return k, nil
}

type resolvedKey struct {
	descending bool
	numeric    bool
	upperFirst bool
}

func (k *sortKey) resolve(ctx *xpath.Context) (resolvedKey, error) {
	var rk resolvedKey
	attr := func(a *avt, def string) (string, error) {
		if a == nil {
			return def, nil
		}
		return a.eval(ctx)
	}
	order, err := attr(k.order, "ascending")
	if err != nil {
		return rk, err
	}
	switch order {
	case "ascending":
	case "descending":
		rk.descending = true
	default:
		return rk, fmt.Errorf("invalid sort order %q", order)
	}
	dataType, err := attr(k.dataType, "text")
	if err != nil {
		return rk, err
	}
	switch dataType {
	case "text":
	case "number":
		rk.numeric = true
	default:
		return rk, fmt.Errorf("unsupported sort data-type %q", dataType)
	}
	caseOrder, err := attr(k.caseOrder, "lower-first")
	if err != nil {
		return rk, err
	}
	rk.upperFirst = caseOrder == "upper-first"
	return rk, nil
}

type sortRow struct {
	node    *xmltree.Node
	strings []string
	numbers []float64
}

// sortNodes orders nodes by keys. The sort is stable, so nodes with equal
// keys stay in their original order.
func (r *run) sortNodes(f *frame, nodes []*xmltree.Node, keys []*sortKey) ([]*xmltree.Node, error) {
	resolved := make([]resolvedKey, len(keys))
	for i, k := range keys {
		rk, err := k.resolve(r.ctx(f))
		if err != nil {
			return nil, err
		}
		resolved[i] = rk
	}
	rows := make([]sortRow, len(nodes))
	for i, n := range nodes {
		row := sortRow{node: n, strings: make([]string, len(keys)), numbers: make([]float64, len(keys))}
		ctx := r.ctx(&frame{node: n, pos: i + 1, size: len(nodes), vars: f.vars})
		for j, k := range keys {
			s, err := k.sel.EvaluateString(ctx)
			if err != nil {
				return nil, err
			}
			row.strings[j] = s
			if resolved[j].numeric {
				row.numbers[j] = xpath.ParseNumber(s)
			}
		}
		rows[i] = row
	}
	slices.SortStableFunc(rows, func(a, b sortRow) int {
		for j, rk := range resolved {
			var c int
			if rk.numeric {
				c = compareNumbers(a.numbers[j], b.numbers[j])
			} else {
				c = compareText(a.strings[j], b.strings[j], rk.upperFirst)
			}
			if rk.descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	out := make([]*xmltree.Node, len(rows))
	for i, row := range rows {
		out[i] = row.node
	}
	return out, nil
}

// compareNumbers places NaN before every number.
func compareNumbers(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	return cmp.Compare(a, b)
}

// compareText compares case-insensitively first, then breaks ties by case.
func compareText(a, b string, upperFirst bool) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	c := strings.Compare(a, b)
	if !upperFirst {
		c = -c
	}
	return c
}
