package weffo

import (
	"bytes"
	_ "embed"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/jacoelho/weffo/errors"
	"github.com/jacoelho/weffo/internal/xslt"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

const metaSystemID = "weffo.xsl"

//go:embed weffo.xsl
var metaSource []byte

// metaConstructions counts compilations of the bundled meta-transform.
var metaConstructions atomic.Int64

var metaTemplate = sync.OnceValues(func() (*Template, error) {
	metaConstructions.Add(1)
	return buildMetaTemplate(metaSource, metaSystemID)
})

// MetaTemplate returns the compiled bundled meta-transform. It is compiled
// on first use and shared by every pipeline that has no injected meta
// template. A failure is returned on every call.
func MetaTemplate() (*Template, error) {
	return metaTemplate()
}

// LoadMetaTemplate compiles a replacement meta-transform from fsys, for use
// with WithMetaTemplate.
func LoadMetaTemplate(fsys fs.FS, path string) (*Template, error) {
	if fsys == nil {
		return nil, errors.Newf(errors.ErrConfiguration, errors.StageMetaLoad, path, "nil fs")
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.New(errors.ErrConfiguration, errors.StageMetaLoad, path, err)
	}
	return buildMetaTemplate(data, path)
}

func buildMetaTemplate(data []byte, systemID string) (*Template, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New(errors.ErrConfiguration, errors.StageMetaLoad, systemID, fmt.Errorf("empty meta-transform"))
	}
	doc, err := xmltree.NewParser(xmltree.NamespaceAware).Parse(bytes.NewReader(data), systemID)
	if err != nil {
		return nil, errors.New(errors.ErrConfiguration, errors.StageMetaLoad, systemID, err)
	}
	sheet, err := xslt.Compile(doc)
	if err != nil {
		return nil, errors.New(errors.ErrConfiguration, errors.StageMetaLoad, systemID, err)
	}
	return &Template{sheet: sheet}, nil
}
