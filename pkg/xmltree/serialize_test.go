package xmltree

import (
	"bytes"
	"errors"
	"testing"
)

func TestSerializeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "default namespace", in: `<root xmlns="http://example.com"><child attr="value">x</child></root>`},
		{name: "prefixed", in: `<p:a xmlns:p="urn:p" p:x="1"><p:b/></p:a>`},
		{name: "escaping", in: `<a t="&quot;&lt;&amp;">1 &lt; 2 &amp;&amp; 3 &gt; 2</a>`},
		{name: "comment and pi", in: `<a><!--note--><?target data?></a>`},
		{name: "undeclare default", in: `<a xmlns="urn:a"><b xmlns=""/></a>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, NamespaceAware, tt.in)
			got, err := SerializeString(doc, OutputOptions{OmitXMLDeclaration: true})
			if err != nil {
				t.Fatalf("SerializeString() error = %v", err)
			}
			if got != tt.in {
				t.Errorf("got  %s\nwant %s", got, tt.in)
			}
		})
	}
}

func TestSerializeNamespaceFixup(t *testing.T) {
	b := NewBuilder("")
	_ = b.StartElement(Name{Space: "urn:x", Local: "a"}, []Attr{{Name: Name{Space: "urn:y", Local: "b"}, Value: "1"}}, nil)
	_ = b.EndElement(Name{})

	got, err := SerializeString(b.Document(), OutputOptions{OmitXMLDeclaration: true})
	if err != nil {
		t.Fatalf("SerializeString() error = %v", err)
	}
	want := `<a xmlns="urn:x" xmlns:ns0="urn:y" ns0:b="1"/>`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestSerializeDeclarationAndIndent(t *testing.T) {
	doc := mustParse(t, NamespaceAware, `<a><b>t</b><c/></a>`)

	got, err := SerializeString(doc, OutputOptions{Method: MethodXML, Indent: true})
	if err != nil {
		t.Fatalf("SerializeString() error = %v", err)
	}
	want := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<a>\n  <b>t</b>\n  <c/>\n</a>"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestSerializeHTML(t *testing.T) {
	doc := mustParse(t, NamespaceAware, `<html><body><br/><p/><script>if (a &lt; b) {}</script><a href="?x=1&amp;y=&lt;2"/></body></html>`)

	got, err := SerializeString(doc, OutputOptions{Method: MethodHTML})
	if err != nil {
		t.Fatalf("SerializeString() error = %v", err)
	}
	want := `<html><body><br><p></p><script>if (a < b) {}</script><a href="?x=1&amp;y=<2"></a></body></html>`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestSerializeMethodDetection(t *testing.T) {
	doc := mustParse(t, NamespaceAware, `<HTML><br/></HTML>`)
	if got := (OutputOptions{}).ResolvedMethod(doc); got != MethodHTML {
		t.Errorf("ResolvedMethod() = %q, want html", got)
	}
	ns := mustParse(t, NamespaceAware, `<html xmlns="http://www.w3.org/1999/xhtml"/>`)
	if got := (OutputOptions{}).ResolvedMethod(ns); got != MethodXML {
		t.Errorf("ResolvedMethod(xhtml) = %q, want xml", got)
	}
}

func TestSerializeText(t *testing.T) {
	doc := mustParse(t, NamespaceAware, `<a>x<b>y &amp; z</b></a>`)
	got, err := SerializeString(doc, OutputOptions{Method: MethodText})
	if err != nil {
		t.Fatalf("SerializeString() error = %v", err)
	}
	if got != "xy & z" {
		t.Errorf("got %q", got)
	}
}

func TestSerializeDoctype(t *testing.T) {
	doc := mustParse(t, NamespaceAware, `<note/>`)
	got, err := SerializeString(doc, OutputOptions{OmitXMLDeclaration: true, DoctypeSystem: "note.dtd"})
	if err != nil {
		t.Fatalf("SerializeString() error = %v", err)
	}
	if want := "<!DOCTYPE note SYSTEM \"note.dtd\">\n<note/>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]OutputOptions{
		"application/xml; charset=utf-8": {},
		"text/html; charset=utf-8":       {Method: MethodHTML},
		"text/plain; charset=utf-8":      {Method: MethodText},
		"image/svg+xml; charset=utf-8":   {MediaType: "image/svg+xml"},
	}
	for want, opts := range tests {
		if got := opts.ContentType(); got != want {
			t.Errorf("ContentType(%+v) = %q, want %q", opts, got, want)
		}
	}
}

type failingWriter struct{}

var errSink = errors.New("sink closed")

func (failingWriter) Write([]byte) (int, error) { return 0, errSink }

func TestSerializeWriterError(t *testing.T) {
	doc := mustParse(t, NamespaceAware, `<a/>`)
	err := Serialize(failingWriter{}, doc, OutputOptions{})
	if !errors.Is(err, errSink) {
		t.Fatalf("error = %v, want sink error", err)
	}
	if err := Serialize(&bytes.Buffer{}, nil, OutputOptions{}); !errors.Is(err, ErrNilDocument) {
		t.Fatalf("nil document error = %v", err)
	}
}

func TestBuilderAttributes(t *testing.T) {
	b := NewBuilder("")
	if err := b.SetAttribute(Name{Local: "x"}, "1"); !errors.Is(err, ErrNoOpenElement) {
		t.Fatalf("SetAttribute on document error = %v", err)
	}
	_ = b.StartElement(Name{Local: "a"}, nil, nil)
	_ = b.SetAttribute(Name{Local: "x"}, "1")
	_ = b.SetAttribute(Name{Local: "x"}, "2")
	_ = b.CharData("t")
	_ = b.CharData("u")
	if err := b.SetAttribute(Name{Local: "y"}, "3"); !errors.Is(err, ErrAttributeAfterChildren) {
		t.Fatalf("late SetAttribute error = %v", err)
	}
	_ = b.EndElement(Name{})
	if err := b.EndElement(Name{}); !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("extra EndElement error = %v", err)
	}
	if got := b.Document().DocumentElement().String(); got != `<a x="2">tu</a>` {
		t.Errorf("tree = %s", got)
	}
}
