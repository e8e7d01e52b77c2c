package weffo

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

// ErrResultUsed is returned when a Result receives a second document.
var ErrResultUsed = stderrors.New("weffo: result already written")

// Result receives the output of exactly one transformation.
type Result interface {
	// WriteResult delivers the finished result tree. opts carries the
	// serialization settings declared by the stylesheet.
	WriteResult(doc *xmltree.Document, opts xmltree.OutputOptions) error
}

type once struct {
	used atomic.Bool
}

func (o *once) claim() error {
	if o.used.Swap(true) {
		return ErrResultUsed
	}
	return nil
}

type writerResult struct {
	once
	w io.Writer
}

// ToWriter serializes the result to w.
func ToWriter(w io.Writer) Result {
	return &writerResult{w: w}
}

func (r *writerResult) WriteResult(doc *xmltree.Document, opts xmltree.OutputOptions) error {
	if err := r.claim(); err != nil {
		return err
	}
	if r.w == nil {
		return fmt.Errorf("write result: nil writer")
	}
	return xmltree.Serialize(r.w, doc, opts)
}

type fileResult struct {
	once
	path string
}

// ToFile serializes the result to path, creating or truncating it.
func ToFile(path string) Result {
	return &fileResult{path: path}
}

func (r *fileResult) WriteResult(doc *xmltree.Document, opts xmltree.OutputOptions) (err error) {
	if err := r.claim(); err != nil {
		return err
	}
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", r.path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", r.path, closeErr)
		}
	}()
	if err := xmltree.Serialize(f, doc, opts); err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	return nil
}

// TreeResult keeps the result tree in memory.
type TreeResult struct {
	once
	Document *xmltree.Document
	Output   xmltree.OutputOptions
}

// WriteResult stores doc.
func (r *TreeResult) WriteResult(doc *xmltree.Document, opts xmltree.OutputOptions) error {
	if err := r.claim(); err != nil {
		return err
	}
	r.Document = doc
	r.Output = opts
	return nil
}

type handlerResult struct {
	once
	h xmltree.Handler
}

// ToHandler replays the result tree as events into h.
func ToHandler(h xmltree.Handler) Result {
	return &handlerResult{h: h}
}

func (r *handlerResult) WriteResult(doc *xmltree.Document, _ xmltree.OutputOptions) error {
	if err := r.claim(); err != nil {
		return err
	}
	if r.h == nil {
		return fmt.Errorf("write result: nil handler")
	}
	if doc == nil {
		return xmltree.ErrNilDocument
	}
	return xmltree.Walk(doc.Root(), r.h)
}
