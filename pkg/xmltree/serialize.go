package xmltree

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Output methods.
const (
	MethodXML  = "xml"
	MethodHTML = "html"
	MethodText = "text"
)

// OutputOptions controls serialization of a result tree.
type OutputOptions struct {
	// Method is "xml", "html" or "text". Empty selects xml unless the
	// document element is an html element in no namespace.
	Method             string
	Indent             bool
	OmitXMLDeclaration bool
	Standalone         string
	DoctypePublic      string
	DoctypeSystem      string
	MediaType          string
}

// ResolvedMethod returns the output method that Serialize uses for doc.
func (o OutputOptions) ResolvedMethod(doc *Document) string {
	switch o.Method {
	case MethodXML, MethodHTML, MethodText:
		return o.Method
	}
	if el := doc.DocumentElement(); el != nil && el.Name.Space == "" && strings.EqualFold(el.Name.Local, "html") {
		if !hasTextBefore(doc.root, el) {
			return MethodHTML
		}
	}
	return MethodXML
}

// ContentType returns the media type with charset for the method.
func (o OutputOptions) ContentType() string {
	mt := o.MediaType
	if mt == "" {
		switch o.Method {
		case MethodHTML:
			mt = "text/html"
		case MethodText:
			mt = "text/plain"
		default:
			mt = "application/xml"
		}
	}
	return mt + "; charset=utf-8"
}

func hasTextBefore(root, el *Node) bool {
	for _, c := range root.Children {
		if c == el {
			return false
		}
		if c.Kind == TextNode && !IsWhitespace(c.Data) {
			return true
		}
	}
	return false
}

// ErrNilDocument is returned when Serialize is called without a document.
var ErrNilDocument = errors.New("xmltree: nil document")

// Serialize writes doc to w using opts. Output is always UTF-8.
func Serialize(w io.Writer, doc *Document, opts OutputOptions) error {
	if doc == nil {
		return ErrNilDocument
	}
	bw := bufio.NewWriter(w)
	s := &serializer{w: bw, opts: opts, method: opts.ResolvedMethod(doc)}
	if err := s.document(doc); err != nil {
		return err
	}
	return bw.Flush()
}

// SerializeString renders doc with opts.
func SerializeString(doc *Document, opts OutputOptions) (string, error) {
	var b strings.Builder
	if err := Serialize(&b, doc, opts); err != nil {
		return "", err
	}
	return b.String(), nil
}

type serializer struct {
	w      *bufio.Writer
	opts   OutputOptions
	method string
	scopes []map[string]string
	genSeq int
	err    error
}

func (s *serializer) write(str string) {
	if s.err != nil {
		return
	}
	_, s.err = s.w.WriteString(str)
}

func (s *serializer) document(doc *Document) error {
	root := doc.root
	switch s.method {
	case MethodText:
		s.write(root.StringValue())
		return s.err
	case MethodXML:
		if !s.opts.OmitXMLDeclaration {
			s.write(`<?xml version="1.0" encoding="UTF-8"`)
			if s.opts.Standalone != "" {
				s.write(` standalone="` + s.opts.Standalone + `"`)
			}
			s.write("?>")
			if s.opts.Indent {
				s.write("\n")
			}
		}
	}
	if el := doc.DocumentElement(); el != nil && (s.opts.DoctypeSystem != "" || (s.method == MethodHTML && s.opts.DoctypePublic != "")) {
		s.doctype(el)
	}
	s.scopes = []map[string]string{{"": ""}}
	for i, c := range root.Children {
		if s.opts.Indent && i > 0 && c.Kind != TextNode {
			s.write("\n")
		}
		s.node(c, 0)
	}
	return s.err
}

func (s *serializer) doctype(el *Node) {
	name := el.Name.String()
	if s.method == MethodHTML {
		name = "html"
	}
	s.write("<!DOCTYPE " + name)
	switch {
	case s.opts.DoctypePublic != "":
		s.write(` PUBLIC "` + s.opts.DoctypePublic + `"`)
		if s.opts.DoctypeSystem != "" {
			s.write(` "` + s.opts.DoctypeSystem + `"`)
		}
	case s.opts.DoctypeSystem != "":
		s.write(` SYSTEM "` + s.opts.DoctypeSystem + `"`)
	}
	s.write(">\n")
}

func (s *serializer) node(n *Node, depth int) {
	switch n.Kind {
	case ElementNode:
		s.element(n, depth)
	case TextNode:
		if s.rawText(n.Parent) {
			s.write(n.Data)
		} else {
			s.write(escapeText(n.Data))
		}
	case CommentNode:
		s.write("<!--" + n.Data + "-->")
	case ProcessingInstructionNode:
		s.write("<?" + n.Name.Local)
		if n.Data != "" {
			s.write(" " + n.Data)
		}
		if s.method == MethodHTML {
			s.write(">")
		} else {
			s.write("?>")
		}
	}
}

func (s *serializer) rawText(parent *Node) bool {
	if s.method != MethodHTML || parent == nil || parent.Kind != ElementNode || parent.Name.Space != "" {
		return false
	}
	switch strings.ToLower(parent.Name.Local) {
	case "script", "style":
		return true
	}
	return false
}

func (s *serializer) lookup(prefix string) (string, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if uri, ok := s.scopes[i][prefix]; ok {
			return uri, true
		}
	}
	return "", false
}

type nsDecl struct {
	prefix string
	uri    string
}

func (s *serializer) element(n *Node, depth int) {
	scope := map[string]string{}
	var decls []nsDecl
	declare := func(prefix, uri string) {
		if _, done := scope[prefix]; done {
			return
		}
		if have, ok := s.lookup(prefix); ok && have == uri {
			return
		}
		if !writable(prefix, uri) {
			return
		}
		scope[prefix] = uri
		decls = append(decls, nsDecl{prefix: prefix, uri: uri})
	}

	name := n.Name
	aware := n.doc == nil || n.doc.mode != NamespaceUnaware
	if aware {
		for _, ns := range n.Namespaces {
			if ns.Prefix == "xml" {
				continue
			}
			declare(ns.Prefix, ns.URI)
		}
		if name.Space == "" {
			name.Prefix = ""
			declare("", "")
		} else if uri, found := s.inScope(scope, name.Prefix); !found || uri != name.Space {
			if bound, conflict := scope[name.Prefix]; conflict && bound != name.Space {
				name.Prefix = s.prefixFor(scope, name.Space)
			}
			declare(name.Prefix, name.Space)
		}
	}

	attrs := make([]Attr, 0, len(n.Attrs))
	for _, a := range n.Attrs {
		an := a.Name
		if aware && an.Space != "" && an.Space != XMLNamespace {
			uri, found := s.inScope(scope, an.Prefix)
			switch {
			case an.Prefix != "" && found && uri == an.Space:
			case an.Prefix == "" || found:
				an.Prefix = s.prefixFor(scope, an.Space)
				declare(an.Prefix, an.Space)
			default:
				declare(an.Prefix, an.Space)
			}
		}
		if aware && an.Space == XMLNamespace {
			an.Prefix = "xml"
		}
		attrs = append(attrs, Attr{Name: an, Value: a.Data})
	}

	tag := name.String()
	s.write("<" + tag)
	for _, d := range decls {
		if d.prefix == "" {
			s.write(` xmlns="` + escapeAttr(d.uri) + `"`)
		} else {
			s.write(` xmlns:` + d.prefix + `="` + escapeAttr(d.uri) + `"`)
		}
	}
	for _, a := range attrs {
		s.write(" " + a.Name.String() + `="`)
		if s.method == MethodHTML && n.Name.Space == "" {
			s.write(escapeHTMLAttr(a.Value))
		} else {
			s.write(escapeAttr(a.Value))
		}
		s.write(`"`)
	}

	s.scopes = append(s.scopes, scope)
	defer func() { s.scopes = s.scopes[:len(s.scopes)-1] }()

	if len(n.Children) == 0 {
		switch {
		case s.method == MethodHTML && name.Space == "":
			s.write(">")
			if !isHTMLVoid(n.Name.Local) {
				s.write("</" + tag + ">")
			}
		default:
			s.write("/>")
		}
		return
	}
	s.write(">")
	indent := s.opts.Indent && !hasMixedText(n)
	for _, c := range n.Children {
		if indent {
			s.write("\n" + strings.Repeat("  ", depth+1))
		}
		s.node(c, depth+1)
	}
	if indent {
		s.write("\n" + strings.Repeat("  ", depth))
	}
	s.write("</" + tag + ">")
}

// writable rejects bindings that cannot be written: a non-default prefix may not be undeclared.
func writable(prefix, uri string) bool {
	return prefix == "" || uri != ""
}

func (s *serializer) inScope(local map[string]string, prefix string) (string, bool) {
	if uri, ok := local[prefix]; ok {
		return uri, true
	}
	return s.lookup(prefix)
}

func (s *serializer) prefixFor(local map[string]string, uri string) string {
	for prefix, bound := range local {
		if prefix != "" && bound == uri {
			return prefix
		}
	}
	for i := len(s.scopes) - 1; i >= 0; i-- {
		for prefix, bound := range s.scopes[i] {
			if prefix == "" || bound != uri {
				continue
			}
			if cur, _ := s.inScope(local, prefix); cur == uri {
				return prefix
			}
		}
	}
	for {
		prefix := "ns" + strconv.Itoa(s.genSeq)
		s.genSeq++
		if _, taken := s.inScope(local, prefix); !taken {
			return prefix
		}
	}
}

func hasMixedText(n *Node) bool {
	for _, c := range n.Children {
		if c.Kind == TextNode {
			return true
		}
	}
	return false
}

var htmlVoid = map[string]struct{}{
	"area": {}, "base": {}, "basefont": {}, "br": {}, "col": {}, "embed": {},
	"frame": {}, "hr": {}, "img": {}, "input": {}, "isindex": {}, "link": {},
	"meta": {}, "param": {}, "source": {}, "track": {}, "wbr": {},
}

func isHTMLVoid(local string) bool {
	_, ok := htmlVoid[strings.ToLower(local)]
	return ok
}

var (
	textEscaper     = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#13;")
	attrEscaper     = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;", "\n", "&#10;", "\r", "&#13;", "\t", "&#9;")
	htmlAttrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;")
)

func escapeText(s string) string     { return textEscaper.Replace(s) }
func escapeAttr(s string) string     { return attrEscaper.Replace(s) }
func escapeHTMLAttr(s string) string { return htmlAttrEscaper.Replace(s) }

// String renders the subtree at n as XML without a declaration. It is meant
// for diagnostics and tests.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	bw := bufio.NewWriter(&b)
	s := &serializer{w: bw, method: MethodXML, scopes: []map[string]string{{"": ""}}}
	switch n.Kind {
	case DocumentNode:
		for _, c := range n.Children {
			s.node(c, 0)
		}
	case AttributeNode:
		s.write(fmt.Sprintf("%s=%q", n.Name, n.Data))
	default:
		s.node(n, 0)
	}
	_ = bw.Flush()
	return b.String()
}
