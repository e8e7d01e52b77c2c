package weffo

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

func TestResolveSystemID(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		location string
		want     string
		wantErr  bool
	}{
		{name: "relative", location: "a.xml", want: "a.xml"},
		{name: "base directory", base: "views/page.xml", location: "data/a.xml", want: "views/data/a.xml"},
		{name: "parent within root", base: "views/page.xml", location: "../shared/a.xml", want: "shared/a.xml"},
		{name: "escapes root", base: "page.xml", location: "../a.xml", wantErr: true},
		{name: "absolute", location: "/etc/passwd", wantErr: true},
		{name: "backslash", location: `a\b.xml`, wantErr: true},
		{name: "empty segment", location: "a//b.xml", wantErr: true},
		{name: "empty", location: "", wantErr: true},
		{name: "dot", location: ".", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSystemID(tt.base, tt.location)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolveSystemID() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveSystemID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveSystemID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFSResolver(t *testing.T) {
	fsys := fstest.MapFS{"dir/a.xml": {Data: []byte(`<a>1</a>`)}}
	r := NewFSResolver(fsys)

	src, err := r.Resolve("a.xml", "dir/view.xml")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := src.SystemID(); got != "dir/a.xml" {
		t.Errorf("SystemID() = %q, want %q", got, "dir/a.xml")
	}
	doc, err := src.Document(xmltree.NewParser(xmltree.NamespaceAware))
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if got := doc.DocumentElement().StringValue(); got != "1" {
		t.Errorf("StringValue() = %q, want %q", got, "1")
	}

	if _, err := r.Resolve("missing.xml", "dir/view.xml"); !stderrors.Is(err, fs.ErrNotExist) {
		t.Errorf("Resolve(missing) error = %v, want %v", err, fs.ErrNotExist)
	}
	if _, err := (*FSResolver)(nil).Resolve("a.xml", ""); err == nil {
		t.Error("nil resolver: err = nil, want error")
	}
}

func TestFileResolver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.xml")
	if err := os.WriteFile(path, []byte(`<a/>`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		href, base string
	}{
		{href: path},
		{href: "a.xml", base: filepath.Join(dir, "view.xml")},
		{href: "file://" + filepath.ToSlash(path)},
		{href: "a.xml", base: "file://" + filepath.ToSlash(filepath.Join(dir, "view.xml"))},
	}
	for _, tt := range tests {
		src, err := fileResolver{}.Resolve(tt.href, tt.base)
		if err != nil {
			t.Errorf("Resolve(%q, %q) error = %v", tt.href, tt.base, err)
			continue
		}
		if got := src.SystemID(); got != path {
			t.Errorf("Resolve(%q, %q).SystemID() = %q, want %q", tt.href, tt.base, got, path)
		}
	}

	for _, href := range []string{"urn:x", "http://example.com/a.xml", "file://remote/a.xml"} {
		if _, err := (fileResolver{}).Resolve(href, ""); err == nil {
			t.Errorf("Resolve(%q) err = nil, want error", href)
		}
	}
}
