package weffo

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/mitchellh/mapstructure"

	"github.com/jacoelho/weffo/errors"
	"github.com/jacoelho/weffo/internal/xpath"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// Kind is the type of a parameter value.
type Kind uint8

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindNodeSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindNodeSet:
		return "node-set"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a stylesheet parameter value.
type Value struct {
	kind  Kind
	str   string
	num   float64
	b     bool
	nodes []*xmltree.Node
}

// String returns a string parameter value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a number parameter value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean parameter value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// NodeSet returns a node-set parameter value. Nil nodes are dropped.
func NodeSet(nodes ...*xmltree.Node) Value {
	return Value{kind: KindNodeSet, nodes: slices.DeleteFunc(slices.Clone(nodes), func(n *xmltree.Node) bool { return n == nil })}
}

// Kind reports the type of v.
func (v Value) Kind() Kind { return v.kind }

// GoString formats v for debugging.
func (v Value) GoString() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("weffo.Number(%v)", v.num)
	case KindBool:
		return fmt.Sprintf("weffo.Bool(%t)", v.b)
	case KindNodeSet:
		return fmt.Sprintf("weffo.NodeSet(%d nodes)", len(v.nodes))
	}
	return fmt.Sprintf("weffo.String(%q)", v.str)
}

func (v Value) xpath() xpath.Value {
	switch v.kind {
	case KindNumber:
		return xpath.Number(v.num)
	case KindBool:
		return xpath.Boolean(v.b)
	case KindNodeSet:
		return xpath.NewNodeSet(v.nodes)
	}
	return xpath.String(v.str)
}

// Params binds stylesheet parameters by local name.
type Params map[string]Value

// ParamsFromMap converts untyped values. Strings, booleans, Go numeric
// types, Value, *xmltree.Node and []*xmltree.Node are accepted; anything
// else fails with a transform error naming the parameter.
func ParamsFromMap(m map[string]any) (Params, error) {
	out := make(Params, len(m))
	for name, raw := range m {
		if name == "" {
			return nil, errors.Newf(errors.ErrTransform, errors.StageExecute, "", "empty parameter name")
		}
		v, err := toValue(raw)
		if err != nil {
			return nil, errors.Newf(errors.ErrTransform, errors.StageExecute, "", "parameter %q: %v", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func toValue(raw any) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case *xmltree.Node:
		return NodeSet(x), nil
	case []*xmltree.Node:
		return NodeSet(x...), nil
	case nil:
		return Value{}, fmt.Errorf("nil value")
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	}
	return Value{}, fmt.Errorf("unsupported type %T", raw)
}

// ParamsFromStruct converts the exported fields of a struct, or a pointer to
// one, into parameters. Field names come from `weffo` tags, falling back to
// the field name; a tag of "-" skips the field.
func ParamsFromStruct(v any) (Params, error) {
	var m map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "weffo",
		Result:  &m,
	})
	if err != nil {
		return nil, errors.New(errors.ErrTransform, errors.StageExecute, "", err)
	}
	if err := dec.Decode(v); err != nil {
		return nil, errors.New(errors.ErrTransform, errors.StageExecute, "", fmt.Errorf("decode parameters: %w", err))
	}
	return ParamsFromMap(m)
}
