package weffo

import (
	"bytes"
	"fmt"

	"github.com/jacoelho/weffo/errors"
	"github.com/jacoelho/weffo/internal/xslt"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// Compile runs the meta-transform over view and compiles the generated
// stylesheet into a Template.
//
// A view or generated stylesheet that is not well-formed fails with
// errors.ErrParse; an engine failure in either stage with
// errors.ErrTransform. The error records the stage that raised it.
func (p *Pipeline) Compile(view Source) (*Template, error) {
	tr := p.track()
	t, err := p.compile(tr, view)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateTemplateCompiled)
	return t, nil
}

// TransformFromPrototype runs only the meta-transform and writes the
// generated stylesheet to result.
func (p *Pipeline) TransformFromPrototype(view Source, result Result) error {
	tr := p.track()
	meta, out, err := p.applyMeta(view)
	if err != nil {
		return tr.fail(err)
	}
	tr.advance(StateMetaApplied)
	if result == nil {
		return tr.fail(errors.Newf(errors.ErrTransform, errors.StageOutput, systemIDOf(view), "nil result"))
	}
	if err := result.WriteResult(out, meta.Output()); err != nil {
		return tr.fail(errors.New(errors.ErrTransform, errors.StageOutput, systemIDOf(view), err))
	}
	tr.advance(StateOutputWritten)
	return nil
}

func (p *Pipeline) compile(tr *tracker, view Source) (*Template, error) {
	meta, out, err := p.applyMeta(view)
	if err != nil {
		return nil, err
	}
	tr.advance(StateMetaApplied)

	input := systemIDOf(view)
	var buf bytes.Buffer
	if err := xmltree.Serialize(&buf, out, meta.Output()); err != nil {
		return nil, errors.New(errors.ErrTransform, errors.StageMetaApply, input, err)
	}
	doc, err := p.parser.Parse(&buf, input)
	if err != nil {
		return nil, errors.New(errors.ErrParse, errors.StageRecompile, input, err)
	}
	tr.advance(StateIntermediateParsed)

	sheet, err := xslt.Compile(doc)
	if err != nil {
		return nil, errors.New(errors.ErrTransform, errors.StageRecompile, input, err)
	}
	return &Template{sheet: sheet}, nil
}

// applyMeta parses view and runs the meta-transform over it.
func (p *Pipeline) applyMeta(view Source) (*Template, *xmltree.Document, error) {
	meta, err := p.meta()
	if err != nil {
		return nil, nil, err
	}
	if meta == nil || meta.sheet == nil {
		return nil, nil, errors.Newf(errors.ErrConfiguration, errors.StageMetaLoad, metaSystemID, "meta template not loaded")
	}
	doc, err := p.parseView(view)
	if err != nil {
		return nil, nil, err
	}
	out, err := meta.sheet.NewTransformer().Transform(doc)
	if err != nil {
		return nil, nil, errors.New(errors.ErrTransform, errors.StageMetaApply, systemIDOf(view), err)
	}
	return meta, out, nil
}

func (p *Pipeline) parseView(view Source) (*xmltree.Document, error) {
	if view == nil {
		return nil, errors.Newf(errors.ErrParse, errors.StageMetaApply, "", "nil view")
	}
	input := view.SystemID()
	doc, err := view.Document(p.parser)
	if err != nil {
		return nil, errors.New(errors.ErrParse, errors.StageMetaApply, input, err)
	}
	if doc == nil || doc.DocumentElement() == nil {
		return nil, errors.New(errors.ErrParse, errors.StageMetaApply, input, fmt.Errorf("no document element"))
	}
	if !doc.NamespaceAware() {
		return nil, errors.New(errors.ErrParse, errors.StageMetaApply, input, fmt.Errorf("view must be parsed namespace-aware"))
	}
	return doc, nil
}
