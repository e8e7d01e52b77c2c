package weffo

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

// Source supplies a document to the pipeline: a view prototype, model data
// or a document returned by a Resolver.
//
// Implementations that produce events rather than text can drive an
// xmltree.Builder and return its Document.
type Source interface {
	// SystemID identifies the document in errors and is the base for
	// relative references made from it.
	SystemID() string
	// Document parses the source with p.
	Document(p *xmltree.Parser) (*xmltree.Document, error)
}

type readerSource struct {
	r        io.Reader
	systemID string
}

// ReaderSource reads a document from r. The reader is consumed by the first
// parse.
func ReaderSource(r io.Reader, systemID string) Source {
	return &readerSource{r: r, systemID: systemID}
}

func (s *readerSource) SystemID() string { return s.systemID }

func (s *readerSource) Document(p *xmltree.Parser) (*xmltree.Document, error) {
	if s.r == nil {
		return nil, fmt.Errorf("read %s: nil reader", s.systemID)
	}
	return p.Parse(s.r, s.systemID)
}

type bytesSource struct {
	data     []byte
	systemID string
}

// BytesSource parses data. It can be parsed any number of times.
func BytesSource(data []byte, systemID string) Source {
	return &bytesSource{data: data, systemID: systemID}
}

func (s *bytesSource) SystemID() string { return s.systemID }

func (s *bytesSource) Document(p *xmltree.Parser) (*xmltree.Document, error) {
	return p.Parse(bytes.NewReader(s.data), s.systemID)
}

// StringSource parses text.
func StringSource(text, systemID string) Source {
	return &stringSource{text: text, systemID: systemID}
}

type stringSource struct {
	text     string
	systemID string
}

func (s *stringSource) SystemID() string { return s.systemID }

func (s *stringSource) Document(p *xmltree.Parser) (*xmltree.Document, error) {
	return p.Parse(strings.NewReader(s.text), s.systemID)
}

type fileSource struct {
	fsys fs.FS
	path string
}

// FileSource reads the named file from the operating system.
func FileSource(path string) Source {
	return &fileSource{path: path}
}

// FSSource reads path from fsys.
func FSSource(fsys fs.FS, path string) Source {
	return &fileSource{fsys: fsys, path: path}
}

func (s *fileSource) SystemID() string { return s.path }

func (s *fileSource) Document(p *xmltree.Parser) (doc *xmltree.Document, err error) {
	var f io.ReadCloser
	if s.fsys != nil {
		f, err = s.fsys.Open(s.path)
	} else {
		f, err = os.Open(s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", s.path, closeErr)
		}
	}()
	return p.Parse(f, s.path)
}

type treeSource struct {
	doc *xmltree.Document
}

// TreeSource supplies an already built document. The tree is read, never
// modified, and may be shared across executions.
func TreeSource(doc *xmltree.Document) Source {
	return &treeSource{doc: doc}
}

func (s *treeSource) SystemID() string {
	if s.doc == nil {
		return ""
	}
	return s.doc.SystemID
}

func (s *treeSource) Document(*xmltree.Parser) (*xmltree.Document, error) {
	if s.doc == nil {
		return nil, xmltree.ErrNilDocument
	}
	return s.doc, nil
}

func systemIDOf(s Source) string {
	if s == nil {
		return ""
	}
	return s.SystemID()
}
