package weffo

import (
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacoelho/weffo/errors"
	"github.com/jacoelho/weffo/internal/xpath"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

func TestParamsFromMap(t *testing.T) {
	type label string
	node := &xmltree.Node{Kind: xmltree.ElementNode}

	params, err := ParamsFromMap(map[string]any{
		"s":     "text",
		"named": label("x"),
		"i":     42,
		"u":     uint8(7),
		"f":     2.5,
		"b":     true,
		"v":     Number(3),
		"node":  node,
		"nodes": []*xmltree.Node{node, nil},
	})
	if err != nil {
		t.Fatalf("ParamsFromMap() error = %v", err)
	}

	want := map[string]xpath.Value{
		"s":     xpath.String("text"),
		"named": xpath.String("x"),
		"i":     xpath.Number(42),
		"u":     xpath.Number(7),
		"f":     xpath.Number(2.5),
		"b":     xpath.Boolean(true),
		"v":     xpath.Number(3),
		"node":  xpath.NodeSet{node},
		"nodes": xpath.NodeSet{node},
	}
	for name, v := range want {
		if got := params[name].xpath(); !reflect.DeepEqual(got, v) {
			t.Errorf("%s = %#v, want %#v", name, got, v)
		}
	}
	if got := params["nodes"].Kind(); got != KindNodeSet {
		t.Errorf("nodes kind = %s, want %s", got, KindNodeSet)
	}
}

func TestParamsFromMapRejectsUnsupportedTypes(t *testing.T) {
	for name, raw := range map[string]any{
		"struct": struct{}{},
		"slice":  []string{"a"},
		"nil":    nil,
		"map":    map[string]string{},
	} {
		_, err := ParamsFromMap(map[string]any{name: raw})
		if !stderrors.Is(err, errors.ErrTransform) {
			t.Errorf("%s: error = %v, want %v", name, err, errors.ErrTransform)
			continue
		}
		if !strings.Contains(err.Error(), name) {
			t.Errorf("%s: error %q does not name the parameter", name, err)
		}
	}
	if _, err := ParamsFromMap(map[string]any{"": "x"}); !stderrors.Is(err, errors.ErrTransform) {
		t.Errorf("empty name: error = %v, want %v", err, errors.ErrTransform)
	}
}

func TestParamsFromStruct(t *testing.T) {
	type request struct {
		User    string  `weffo:"user"`
		Count   int     `weffo:"count"`
		Ratio   float64 `weffo:"ratio"`
		Admin   bool
		Ignored string `weffo:"-"`
	}
	params, err := ParamsFromStruct(&request{User: "ada", Count: 2, Ratio: 0.5, Admin: true, Ignored: "x"})
	if err != nil {
		t.Fatalf("ParamsFromStruct() error = %v", err)
	}

	want := Params{
		"user":  String("ada"),
		"count": Number(2),
		"ratio": Number(0.5),
		"Admin": Bool(true),
	}
	if diff := cmp.Diff(want, params, cmp.AllowUnexported(Value{})); diff != "" {
		t.Errorf("ParamsFromStruct() mismatch (-want +got):\n%s", diff)
	}

	_, err = ParamsFromStruct(struct {
		Nested []int `weffo:"nested"`
	}{Nested: []int{1}})
	if !stderrors.Is(err, errors.ErrTransform) {
		t.Errorf("nested slice: error = %v, want %v", err, errors.ErrTransform)
	}
}

func TestValueKinds(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{String(""), "string"},
		{Number(0), "number"},
		{Bool(false), "boolean"},
		{NodeSet(), "node-set"},
	}
	for _, tt := range tests {
		if got := tt.v.Kind().String(); got != tt.want {
			t.Errorf("Kind() = %s, want %s", got, tt.want)
		}
	}
	if got := String("a").GoString(); got != `weffo.String("a")` {
		t.Errorf("GoString() = %s", got)
	}
}
