package xmltree

// Handler receives a document as a sequence of events.
type Handler interface {
	StartElement(name Name, attrs []Attr, ns []Namespace) error
	EndElement(name Name) error
	CharData(data string) error
	Comment(data string) error
	ProcessingInstruction(target, data string) error
}

// Walk replays the subtree rooted at n into h in document order.
// A document node contributes only its children. Attribute nodes are ignored.
func Walk(n *Node, h Handler) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case DocumentNode:
		for _, c := range n.Children {
			if err := Walk(c, h); err != nil {
				return err
			}
		}
		return nil
	case ElementNode:
		var attrs []Attr
		if len(n.Attrs) > 0 {
			attrs = make([]Attr, 0, len(n.Attrs))
			for _, a := range n.Attrs {
				attrs = append(attrs, Attr{Name: a.Name, Value: a.Data})
			}
		}
		if err := h.StartElement(n.Name, attrs, n.Namespaces); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := Walk(c, h); err != nil {
				return err
			}
		}
		return h.EndElement(n.Name)
	case TextNode:
		return h.CharData(n.Data)
	case CommentNode:
		return h.Comment(n.Data)
	case ProcessingInstructionNode:
		return h.ProcessingInstruction(n.Name.Local, n.Data)
	}
	return nil
}

// Clone returns a deep copy of doc. The copy keeps the namespace mode and
// system ID; whitespace-only text is dropped below elements for which strip
// reports true. A nil strip copies everything.
func Clone(doc *Document, strip func(elem *Node) bool) *Document {
	if doc == nil {
		return nil
	}
	b := newBuilder(doc.SystemID, doc.mode)
	var h Handler = b
	if strip != nil {
		h = &stripHandler{b: b, strip: strip}
	}
	_ = Walk(doc.root, h)
	return b.Document()
}

// stripHandler forwards events to a Builder, dropping whitespace-only text
// whose parent element is selected for stripping. Text arrives already merged
// because the source tree never holds adjacent text nodes.
type stripHandler struct {
	b     *Builder
	strip func(*Node) bool
	// stack mirrors the open source elements; values record the strip decision.
	stack []bool
}

func (s *stripHandler) StartElement(name Name, attrs []Attr, ns []Namespace) error {
	if err := s.b.StartElement(name, attrs, ns); err != nil {
		return err
	}
	s.stack = append(s.stack, s.strip(s.b.cur))
	return nil
}

func (s *stripHandler) EndElement(name Name) error {
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
	return s.b.EndElement(name)
}

func (s *stripHandler) CharData(data string) error {
	if len(s.stack) > 0 && s.stack[len(s.stack)-1] && IsWhitespace(data) {
		return nil
	}
	return s.b.CharData(data)
}

func (s *stripHandler) Comment(data string) error {
	return s.b.Comment(data)
}

func (s *stripHandler) ProcessingInstruction(target, data string) error {
	return s.b.ProcessingInstruction(target, data)
}

// IsWhitespace reports whether s consists only of XML whitespace.
func IsWhitespace(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}
