package xpath

type compareExpr struct {
	op          string
	left, right expr
}

func (e *compareExpr) eval(ctx *Context) (Value, error) {
	l, err := e.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := e.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	return Boolean(Compare(e.op, l, r)), nil
}

// Compare applies an XPath comparison operator (=, !=, <, <=, >, >=) to two
// values with the node-set existential rules.
func Compare(op string, l, r Value) bool {
	ln, lok := l.(NodeSet)
	rn, rok := r.(NodeSet)
	switch {
	case lok && rok:
		for _, a := range ln {
			sa := a.StringValue()
			for _, b := range rn {
				if compareAtoms(op, String(sa), String(b.StringValue())) {
					return true
				}
			}
		}
		return false
	case lok:
		return compareNodeSet(op, ln, r, false)
	case rok:
		return compareNodeSet(op, rn, l, true)
	}
	return compareAtoms(op, l, r)
}

// compareNodeSet compares every node of ns with the atomic value v. When
// swapped is set, v is the left operand.
func compareNodeSet(op string, ns NodeSet, v Value, swapped bool) bool {
	if b, ok := v.(Boolean); ok {
		if swapped {
			return compareAtoms(op, b, Boolean(len(ns) > 0))
		}
		return compareAtoms(op, Boolean(len(ns) > 0), b)
	}
	for _, n := range ns {
		var nv Value = String(n.StringValue())
		if _, isNum := v.(Number); isNum {
			nv = Number(ParseNumber(n.StringValue()))
		}
		if swapped {
			if compareAtoms(op, v, nv) {
				return true
			}
		} else if compareAtoms(op, nv, v) {
			return true
		}
	}
	return false
}

func compareAtoms(op string, l, r Value) bool {
	switch op {
	case "=", "!=":
		var eq bool
		_, lb := l.(Boolean)
		_, rb := r.(Boolean)
		_, lnum := l.(Number)
		_, rnum := r.(Number)
		switch {
		case lb || rb:
			eq = ToBoolean(l) == ToBoolean(r)
		case lnum || rnum:
			eq = ToNumber(l) == ToNumber(r)
		default:
			eq = ToString(l) == ToString(r)
		}
		if op == "=" {
			return eq
		}
		return !eq
	}
	a, b := ToNumber(l), ToNumber(r)
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}
