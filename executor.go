package weffo

import (
	"fmt"

	"github.com/jacoelho/weffo/errors"
	"github.com/jacoelho/weffo/internal/xslt"
	"github.com/jacoelho/weffo/pkg/xmltree"
)

// ExecuteOption configures one execution.
type ExecuteOption interface{ apply(*executeOptions) }

type executeOptions struct {
	params    Params
	resolver  Resolver
	onMessage func(string)
}

type executeOptionFunc func(*executeOptions)

func (f executeOptionFunc) apply(cfg *executeOptions) {
	if cfg == nil {
		return
	}
	f(cfg)
}

// WithParams binds stylesheet parameters by name. Names the template does
// not declare are ignored. Later calls add to earlier ones.
func WithParams(params Params) ExecuteOption {
	return executeOptionFunc(func(cfg *executeOptions) {
		if cfg.params == nil {
			cfg.params = make(Params, len(params))
		}
		for k, v := range params {
			cfg.params[k] = v
		}
	})
}

// WithResolver consults r first for documents the stylesheet loads.
func WithResolver(r Resolver) ExecuteOption {
	return executeOptionFunc(func(cfg *executeOptions) {
		cfg.resolver = r
	})
}

// WithMessageHandler receives the text of non-terminating xsl:message
// instructions.
func WithMessageHandler(fn func(string)) ExecuteOption {
	return executeOptionFunc(func(cfg *executeOptions) {
		cfg.onMessage = fn
	})
}

// Execute applies t to model and writes the output to result.
//
// A malformed model fails with errors.ErrTransform wrapping errors.ErrParse.
// A resolver failure is returned as an errors.ErrResolver error wrapping the
// resolver's own error.
func (p *Pipeline) Execute(t *Template, model Source, result Result, opts ...ExecuteOption) error {
	tr := p.track()
	tr.state = StateTemplateCached
	return p.execute(tr, t, model, result, opts)
}

func (p *Pipeline) execute(tr *tracker, t *Template, model Source, result Result, opts []ExecuteOption) error {
	var cfg executeOptions
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	input := systemIDOf(model)
	if t == nil || t.sheet == nil {
		return tr.fail(errors.Newf(errors.ErrTransform, errors.StageExecute, input, "nil template"))
	}
	if result == nil {
		return tr.fail(errors.Newf(errors.ErrTransform, errors.StageOutput, input, "nil result"))
	}
	doc, err := p.parseModel(model)
	if err != nil {
		return tr.fail(err)
	}

	run := t.sheet.NewTransformer()
	for name, v := range cfg.params {
		run.SetParam(name, v.xpath())
	}
	run.SetLoader(&loader{parser: p.parser, resolver: cfg.resolver, fallback: p.fallback})
	if cfg.onMessage != nil {
		run.SetMessageHandler(cfg.onMessage)
	}
	out, err := run.Transform(doc)
	if err != nil {
		if re, ok := errors.AsError(err); ok && re.Code == errors.ErrResolver {
			return tr.fail(re)
		}
		return tr.fail(errors.New(errors.ErrTransform, errors.StageExecute, input, err))
	}
	tr.advance(StateModelApplied)

	if err := result.WriteResult(out, t.Output()); err != nil {
		return tr.fail(errors.New(errors.ErrTransform, errors.StageOutput, input, err))
	}
	tr.advance(StateOutputWritten)
	return nil
}

func (p *Pipeline) parseModel(model Source) (*xmltree.Document, error) {
	if model == nil {
		return nil, errors.New(errors.ErrTransform, errors.StageExecute, "",
			errors.Newf(errors.ErrParse, errors.StageExecute, "", "nil model"))
	}
	input := model.SystemID()
	doc, err := model.Document(p.parser)
	if err == nil && (doc == nil || doc.Root() == nil) {
		err = xmltree.ErrNilDocument
	}
	if err != nil {
		return nil, errors.New(errors.ErrTransform, errors.StageExecute, input,
			errors.New(errors.ErrParse, errors.StageExecute, input, err))
	}
	return doc, nil
}

// loader serves document() for one execution: the execution's resolver
// first, then the pipeline fallback.
type loader struct {
	parser   *xmltree.Parser
	resolver Resolver
	fallback Resolver
}

var _ xslt.Loader = (*loader)(nil)

func (l *loader) Load(href, base string) (*xmltree.Document, error) {
	var src Source
	for _, r := range []Resolver{l.resolver, l.fallback} {
		if r == nil {
			continue
		}
		s, err := r.Resolve(href, base)
		if err != nil {
			return nil, errors.New(errors.ErrResolver, errors.StageExecute, href, err)
		}
		if s != nil {
			src = s
			break
		}
	}
	if src == nil {
		return nil, errors.Newf(errors.ErrResolver, errors.StageExecute, href, "no resolver accepted %q", href)
	}
	doc, err := src.Document(l.parser)
	if err == nil && doc == nil {
		err = xmltree.ErrNilDocument
	}
	if err != nil {
		id := src.SystemID()
		if id == "" {
			id = href
		}
		return nil, errors.New(errors.ErrParse, errors.StageExecute, id, fmt.Errorf("resolved document: %w", err))
	}
	return doc, nil
}
