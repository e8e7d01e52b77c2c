package xmltree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"unicode"
)

// Mode selects how a Parser treats namespace prefixes.
// There is no default: every parser is constructed with an explicit mode.
type Mode uint8

const (
	// NamespaceAware resolves prefixes to namespace URIs and records
	// xmlns attributes as namespace declarations.
	NamespaceAware Mode = iota + 1
	// NamespaceUnaware keeps qualified names verbatim in Name.Local and
	// treats xmlns attributes as ordinary attributes.
	NamespaceUnaware
)

func (m Mode) String() string {
	switch m {
	case NamespaceAware:
		return "namespace-aware"
	case NamespaceUnaware:
		return "namespace-unaware"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

const (
	defaultMaxDepth = 256
	defaultMaxAttrs = 256
)

// ErrInvalidMode is returned when a parser was built without a valid mode.
var ErrInvalidMode = errors.New("xmltree: invalid parser mode")

// SyntaxError reports a document that is not well-formed.
type SyntaxError struct {
	SystemID string
	Line     int
	Column   int
	Msg      string
	Err      error
}

func (e *SyntaxError) Error() string {
	loc := e.SystemID
	if loc == "" {
		loc = "document"
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s:%d:%d: %s", loc, e.Line, e.Column, msg)
}

// Unwrap returns the underlying decoder error.
func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Position returns the line and column of the error.
func (e *SyntaxError) Position() (int, int) {
	return e.Line, e.Column
}

// Parser builds document trees from XML text.
// A Parser is immutable and safe for concurrent use.
type Parser struct {
	mode     Mode
	maxDepth int
	maxAttrs int
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// MaxDepth limits element nesting. Zero selects the default.
func MaxDepth(n int) ParserOption {
	return func(p *Parser) {
		p.maxDepth = n
	}
}

// MaxAttrs limits the attributes on one element. Zero selects the default.
func MaxAttrs(n int) ParserOption {
	return func(p *Parser) {
		p.maxAttrs = n
	}
}

// NewParser returns a parser for mode.
func NewParser(mode Mode, opts ...ParserOption) *Parser {
	p := &Parser{mode: mode}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.maxDepth = max(p.maxDepth, 0); p.maxDepth == 0 {
		p.maxDepth = defaultMaxDepth
	}
	if p.maxAttrs = max(p.maxAttrs, 0); p.maxAttrs == 0 {
		p.maxAttrs = defaultMaxAttrs
	}
	return p
}

// Mode returns the namespace mode of the parser.
func (p *Parser) Mode() Mode {
	if p == nil {
		return 0
	}
	return p.mode
}

type rawAttr struct {
	prefix string
	local  string
	value  string
}

// Parse reads a complete document from r.
func (p *Parser) Parse(r io.Reader, systemID string) (*Document, error) {
	if p == nil || (p.mode != NamespaceAware && p.mode != NamespaceUnaware) {
		return nil, ErrInvalidMode
	}
	if r == nil {
		return nil, fmt.Errorf("parse %s: nil reader", systemID)
	}

	st := &parseState{
		parser:   p,
		dec:      xml.NewDecoder(r),
		builder:  newBuilder(systemID, p.mode),
		systemID: systemID,
	}
	st.dec.Strict = true
	return st.run()
}

type parseState struct {
	parser     *Parser
	dec        *xml.Decoder
	builder    *Builder
	systemID   string
	ns         nsStack
	open       []xml.Name
	sawRoot    bool
	rootClosed bool
}

func (st *parseState) run() (*Document, error) {
	for {
		tok, err := st.dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, st.wrap(err)
		}
		if err := st.handle(tok); err != nil {
			return nil, err
		}
	}
	if len(st.open) > 0 {
		return nil, st.errorf("unexpected EOF: element <%s> not closed", rawName(st.open[len(st.open)-1]))
	}
	if !st.sawRoot {
		return nil, st.errorf("no root element")
	}
	return st.builder.Document(), nil
}

func (st *parseState) handle(tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		return st.startElement(t)
	case xml.EndElement:
		return st.endElement(t)
	case xml.CharData:
		if len(st.open) == 0 {
			if !isIgnorableOutsideRoot(string(t)) {
				return st.errorf("character data outside root element")
			}
			return nil
		}
		return st.builder.CharData(string(t))
	case xml.Comment:
		return st.builder.Comment(string(t))
	case xml.ProcInst:
		if t.Target == "xml" {
			return nil
		}
		return st.builder.ProcessingInstruction(t.Target, string(t.Inst))
	}
	return nil
}

func (st *parseState) startElement(t xml.StartElement) error {
	if st.rootClosed {
		return st.errorf("unexpected element <%s> after document end", rawName(t.Name))
	}
	if len(st.open) >= st.parser.maxDepth {
		return st.errorf("element depth exceeds %d", st.parser.maxDepth)
	}
	if len(t.Attr) > st.parser.maxAttrs {
		return st.errorf("element <%s> has more than %d attributes", rawName(t.Name), st.parser.maxAttrs)
	}
	st.sawRoot = true
	st.open = append(st.open, t.Name)

	raw := make([]rawAttr, 0, len(t.Attr))
	for _, a := range t.Attr {
		raw = append(raw, rawAttr{prefix: a.Name.Space, local: a.Name.Local, value: a.Value})
	}

	if st.parser.mode == NamespaceUnaware {
		attrs := make([]Attr, 0, len(raw))
		seen := make(map[string]struct{}, len(raw))
		for _, a := range raw {
			qname := joinQName(a.prefix, a.local)
			if _, dup := seen[qname]; dup {
				return st.errorf("duplicate attribute %s on <%s>", qname, rawName(t.Name))
			}
			seen[qname] = struct{}{}
			attrs = append(attrs, Attr{Name: Name{Local: qname}, Value: a.value})
		}
		return st.builder.StartElement(Name{Local: rawName(t.Name)}, attrs, nil)
	}

	scope, decls := collectNamespaceScope(raw)
	st.ns.push(scope)

	elemNS, ok := st.ns.lookup(t.Name.Space)
	if !ok {
		return st.wrap(fmt.Errorf("%w %q on <%s>", errUnboundPrefix, t.Name.Space, rawName(t.Name)))
	}
	name := Name{Space: elemNS, Local: t.Name.Local, Prefix: t.Name.Space}

	attrs := make([]Attr, 0, len(raw))
	seen := make(map[Name]struct{}, len(raw))
	for _, a := range raw {
		if isNamespaceDecl(a) {
			continue
		}
		an := Name{Local: a.local, Prefix: a.prefix}
		if a.prefix != "" {
			uri, ok := st.ns.lookup(a.prefix)
			if !ok {
				return st.wrap(fmt.Errorf("%w %q on attribute %s", errUnboundPrefix, a.prefix, joinQName(a.prefix, a.local)))
			}
			an.Space = uri
		}
		key := Name{Space: an.Space, Local: an.Local}
		if _, dup := seen[key]; dup {
			return st.errorf("duplicate attribute %s on <%s>", an, rawName(t.Name))
		}
		seen[key] = struct{}{}
		attrs = append(attrs, Attr{Name: an, Value: a.value})
	}
	return st.builder.StartElement(name, attrs, decls)
}

func (st *parseState) endElement(t xml.EndElement) error {
	if len(st.open) == 0 {
		return st.errorf("unexpected end element </%s>", rawName(t.Name))
	}
	top := st.open[len(st.open)-1]
	if top != t.Name {
		return st.errorf("element <%s> closed by </%s>", rawName(top), rawName(t.Name))
	}
	st.open = st.open[:len(st.open)-1]
	if st.parser.mode == NamespaceAware {
		st.ns.pop()
	}
	if len(st.open) == 0 {
		st.rootClosed = true
	}
	return st.builder.EndElement(Name{})
}

func (st *parseState) errorf(format string, args ...any) error {
	line, col := st.dec.InputPos()
	return &SyntaxError{SystemID: st.systemID, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (st *parseState) wrap(err error) error {
	line, col := st.dec.InputPos()
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		line = se.Line
		return &SyntaxError{SystemID: st.systemID, Line: line, Column: col, Msg: se.Msg, Err: err}
	}
	return &SyntaxError{SystemID: st.systemID, Line: line, Column: col, Err: err}
}

func rawName(n xml.Name) string {
	return joinQName(n.Space, n.Local)
}

func joinQName(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func isIgnorableOutsideRoot(data string) bool {
	for _, r := range data {
		if r == '\uFEFF' {
			continue
		}
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
