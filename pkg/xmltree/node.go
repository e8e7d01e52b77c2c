package xmltree

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Common XML namespaces.
const (
	XMLNamespace   = "http://www.w3.org/XML/1998/namespace"
	XMLNSNamespace = "http://www.w3.org/2000/xmlns/"
)

// NodeKind classifies nodes in the tree.
type NodeKind uint8

const (
	// DocumentNode is the root of every tree.
	DocumentNode NodeKind = iota + 1
	// ElementNode is an element.
	ElementNode
	// AttributeNode is an attribute; its Parent is the owning element.
	AttributeNode
	// TextNode is character data. Adjacent text is always merged.
	TextNode
	// CommentNode is a comment.
	CommentNode
	// ProcessingInstructionNode is a processing instruction; the target is Name.Local.
	ProcessingInstructionNode
)

func (k NodeKind) String() string {
	switch k {
	case DocumentNode:
		return "document"
	case ElementNode:
		return "element"
	case AttributeNode:
		return "attribute"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	case ProcessingInstructionNode:
		return "processing-instruction"
	default:
		return "unknown"
	}
}

// Name is a namespace-qualified name. Prefix is kept for serialization only;
// names compare by Space and Local.
type Name struct {
	Space  string
	Local  string
	Prefix string
}

// String returns the qualified name as written.
func (n Name) String() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}

// Expanded returns the name in {namespace}local form.
func (n Name) Expanded() string {
	if n.Space == "" {
		return n.Local
	}
	return "{" + n.Space + "}" + n.Local
}

// Equal reports whether two names share namespace and local part.
func (n Name) Equal(o Name) bool {
	return n.Space == o.Space && n.Local == o.Local
}

// Namespace is a namespace declaration. An empty Prefix declares the default namespace.
type Namespace struct {
	Prefix string
	URI    string
}

// Attr is an attribute as seen by a Handler.
type Attr struct {
	Name  Name
	Value string
}

// Node is a node of a document tree.
type Node struct {
	Kind NodeKind
	// Name is set for elements, attributes and processing instructions.
	Name Name
	// Data holds attribute values, text, comment text and processing instruction data.
	Data       string
	Parent     *Node
	Children   []*Node
	Attrs      []*Node
	Namespaces []Namespace

	doc   *Document
	order int
}

var documentSeq atomic.Uint64

// Document owns a tree of nodes rooted at a document node.
type Document struct {
	SystemID string

	root *Node
	mode Mode
	id   uint64
}

func newDocument(systemID string, mode Mode) *Document {
	d := &Document{SystemID: systemID, mode: mode, id: documentSeq.Add(1)}
	d.root = &Node{Kind: DocumentNode, doc: d}
	return d
}

// Root returns the document node.
func (d *Document) Root() *Node {
	if d == nil {
		return nil
	}
	return d.root
}

// DocumentElement returns the single top-level element, or nil.
func (d *Document) DocumentElement() *Node {
	if d == nil || d.root == nil {
		return nil
	}
	return d.root.FirstChildElement()
}

// NamespaceAware reports whether the tree was built with prefixes resolved to namespaces.
func (d *Document) NamespaceAware() bool {
	return d != nil && d.mode == NamespaceAware
}

// Mode returns the parser mode the document was built with.
func (d *Document) Mode() Mode {
	if d == nil {
		return 0
	}
	return d.mode
}

// Reindex recomputes document order after the tree has been modified by hand.
func (d *Document) Reindex() {
	if d == nil || d.root == nil {
		return
	}
	order := 0
	var walk func(n *Node)
	walk = func(n *Node) {
		n.doc = d
		n.order = order
		order++
		for _, a := range n.Attrs {
			a.doc = d
			a.Parent = n
			a.order = order
			order++
		}
		for _, c := range n.Children {
			c.Parent = n
			walk(c)
		}
	}
	walk(d.root)
}

// Document returns the document owning n.
func (n *Node) Document() *Document {
	if n == nil {
		return nil
	}
	return n.doc
}

// Root returns the document node of the tree containing n.
func (n *Node) Root() *Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}

// FirstChildElement returns the first element child of n.
func (n *Node) FirstChildElement() *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == ElementNode {
			return c
		}
	}
	return nil
}

// StringValue returns the XPath string-value of the node.
func (n *Node) StringValue() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case DocumentNode, ElementNode:
		var b strings.Builder
		n.collectText(&b)
		return b.String()
	default:
		return n.Data
	}
}

func (n *Node) collectText(b *strings.Builder) {
	for _, c := range n.Children {
		switch c.Kind {
		case TextNode:
			b.WriteString(c.Data)
		case ElementNode:
			c.collectText(b)
		}
	}
}

// Attr returns the attribute with the given namespace and local name.
func (n *Node) Attr(space, local string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	for _, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a, true
		}
	}
	return nil, false
}

// AttrValue returns the value of an attribute in no namespace.
func (n *Node) AttrValue(local string) (string, bool) {
	a, ok := n.Attr("", local)
	if !ok {
		return "", false
	}
	return a.Data, true
}

// LookupNamespace resolves prefix against the declarations in scope at n.
// The empty prefix resolves the default namespace.
func (n *Node) LookupNamespace(prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind != ElementNode {
			continue
		}
		for _, ns := range cur.Namespaces {
			if ns.Prefix == prefix {
				return ns.URI, true
			}
		}
	}
	if prefix == "" {
		return "", true
	}
	return "", false
}

// InScopeNamespaces returns the namespace bindings visible at n, nearest
// declaration first wins. Undeclared default namespaces are omitted.
func (n *Node) InScopeNamespaces() []Namespace {
	seen := make(map[string]struct{})
	var out []Namespace
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind != ElementNode {
			continue
		}
		for _, ns := range cur.Namespaces {
			if _, ok := seen[ns.Prefix]; ok {
				continue
			}
			seen[ns.Prefix] = struct{}{}
			if ns.URI == "" {
				continue
			}
			out = append(out, ns)
		}
	}
	return out
}

// Order returns the position of n in document order within its document.
func (n *Node) Order() int {
	if n == nil {
		return -1
	}
	return n.order
}

// ID returns an identifier unique to n across all documents in the process.
func (n *Node) ID() string {
	if n == nil {
		return ""
	}
	var id uint64
	if n.doc != nil {
		id = n.doc.id
	}
	return "d" + strconv.FormatUint(id, 10) + "n" + strconv.Itoa(n.order)
}

// Compare orders two nodes in document order. Nodes from different documents
// are ordered by document creation.
func Compare(a, b *Node) int {
	if a == b {
		return 0
	}
	var ida, idb uint64
	if a.doc != nil {
		ida = a.doc.id
	}
	if b.doc != nil {
		idb = b.doc.id
	}
	if ida != idb {
		if ida < idb {
			return -1
		}
		return 1
	}
	switch {
	case a.order < b.order:
		return -1
	case a.order > b.order:
		return 1
	default:
		return 0
	}
}

// IsAncestorOf reports whether n is a proper ancestor of other.
func (n *Node) IsAncestorOf(other *Node) bool {
	if n == nil || other == nil {
		return false
	}
	for cur := other.Parent; cur != nil; cur = cur.Parent {
		if cur == n {
			return true
		}
	}
	return false
}
