package weffo

import (
	"github.com/jacoelho/weffo/internal/xslt"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// Template is a compiled transform definition. It is immutable and safe
// for concurrent execution by multiple goroutines.
type Template struct {
	sheet *xslt.Stylesheet
}

// SystemID returns the identifier of the document the template was
// compiled from.
func (t *Template) SystemID() string {
	if t == nil || t.sheet == nil {
		return ""
	}
	return t.sheet.SystemID()
}

// Params returns the names of the global parameters the template declares.
func (t *Template) Params() []string {
	if t == nil || t.sheet == nil {
		return nil
	}
	return t.sheet.Params()
}

// Output returns the serialization settings the template declares.
func (t *Template) Output() xmltree.OutputOptions {
	if t == nil || t.sheet == nil {
		return xmltree.OutputOptions{}
	}
	return t.sheet.Output()
}

// ContentType returns the media type of the template's output.
func (t *Template) ContentType() string {
	return t.Output().ContentType()
}
