package xmltree

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOpenElement is returned when an attribute is added outside an element.
	ErrNoOpenElement = errors.New("xmltree: no open element")
	// ErrAttributeAfterChildren is returned when an attribute is added to an
	// element that already has children.
	ErrAttributeAfterChildren = errors.New("xmltree: attribute added after child nodes")
	// ErrUnbalanced is returned when EndElement has no matching StartElement.
	ErrUnbalanced = errors.New("xmltree: unbalanced end element")
)

// Builder assembles a Document from a stream of events.
// It implements Handler, so any Walk can be captured as a new tree.
type Builder struct {
	doc *Document
	cur *Node
}

// NewBuilder returns a builder for a namespace-aware document.
func NewBuilder(systemID string) *Builder {
	return newBuilder(systemID, NamespaceAware)
}

func newBuilder(systemID string, mode Mode) *Builder {
	doc := newDocument(systemID, mode)
	return &Builder{doc: doc, cur: doc.root}
}

// Depth returns the number of open elements.
func (b *Builder) Depth() int {
	depth := 0
	for n := b.cur; n != nil && n.Kind == ElementNode; n = n.Parent {
		depth++
	}
	return depth
}

// StartElement opens an element below the current node.
func (b *Builder) StartElement(name Name, attrs []Attr, ns []Namespace) error {
	el := &Node{Kind: ElementNode, Name: name, Parent: b.cur, doc: b.doc}
	if len(ns) > 0 {
		el.Namespaces = append([]Namespace(nil), ns...)
	}
	if len(attrs) > 0 {
		el.Attrs = make([]*Node, 0, len(attrs))
		for _, a := range attrs {
			el.Attrs = append(el.Attrs, &Node{Kind: AttributeNode, Name: a.Name, Data: a.Value, Parent: el, doc: b.doc})
		}
	}
	b.cur.Children = append(b.cur.Children, el)
	b.cur = el
	return nil
}

// EndElement closes the current element. The name is not checked.
func (b *Builder) EndElement(Name) error {
	if b.cur == nil || b.cur.Kind != ElementNode {
		return ErrUnbalanced
	}
	b.cur = b.cur.Parent
	return nil
}

// CharData appends text, merging it with a preceding text node.
func (b *Builder) CharData(data string) error {
	if data == "" {
		return nil
	}
	if n := len(b.cur.Children); n > 0 {
		if last := b.cur.Children[n-1]; last.Kind == TextNode {
			last.Data += data
			return nil
		}
	}
	b.cur.Children = append(b.cur.Children, &Node{Kind: TextNode, Data: data, Parent: b.cur, doc: b.doc})
	return nil
}

// Comment appends a comment.
func (b *Builder) Comment(data string) error {
	b.cur.Children = append(b.cur.Children, &Node{Kind: CommentNode, Data: data, Parent: b.cur, doc: b.doc})
	return nil
}

// ProcessingInstruction appends a processing instruction.
func (b *Builder) ProcessingInstruction(target, data string) error {
	b.cur.Children = append(b.cur.Children, &Node{
		Kind:   ProcessingInstructionNode,
		Name:   Name{Local: target},
		Data:   data,
		Parent: b.cur,
		doc:    b.doc,
	})
	return nil
}

// SetAttribute adds an attribute to the open element, replacing any
// attribute with the same expanded name.
func (b *Builder) SetAttribute(name Name, value string) error {
	if b.cur == nil || b.cur.Kind != ElementNode {
		return fmt.Errorf("%w: attribute %s", ErrNoOpenElement, name)
	}
	if len(b.cur.Children) > 0 {
		return fmt.Errorf("%w: attribute %s on <%s>", ErrAttributeAfterChildren, name, b.cur.Name)
	}
	for _, a := range b.cur.Attrs {
		if a.Name.Equal(name) {
			a.Name = name
			a.Data = value
			return nil
		}
	}
	b.cur.Attrs = append(b.cur.Attrs, &Node{Kind: AttributeNode, Name: name, Data: value, Parent: b.cur, doc: b.doc})
	return nil
}

// AddNamespace declares a namespace on the open element unless the prefix is already declared there.
func (b *Builder) AddNamespace(ns Namespace) {
	if b.cur == nil || b.cur.Kind != ElementNode {
		return
	}
	for _, have := range b.cur.Namespaces {
		if have.Prefix == ns.Prefix {
			return
		}
	}
	b.cur.Namespaces = append(b.cur.Namespaces, ns)
}

// AppendCopy deep-copies n below the current node. Attribute nodes become
// attributes of the open element and document nodes contribute their children.
func (b *Builder) AppendCopy(n *Node) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case AttributeNode:
		return b.SetAttribute(n.Name, n.Data)
	case DocumentNode:
		for _, c := range n.Children {
			if err := b.AppendCopy(c); err != nil {
				return err
			}
		}
		return nil
	}
	return Walk(n, b)
}

// Document finalizes document order and returns the tree.
// The builder may keep appending to the same document afterwards.
func (b *Builder) Document() *Document {
	b.doc.Reindex()
	return b.doc
}
