// Package weffo renders annotated XML views against model documents in two
// stages.
//
// A view prototype is first run through the bundled meta-transform, which
// turns its annotations into an XSLT stylesheet. That stylesheet is compiled
// into a Template, which can be cached and executed against any number of
// model documents, concurrently, with per-execution parameters and a
// resolver for documents the stylesheet loads.
//
//	t, err := weffo.TemplateFromPrototype(weffo.FileSource("view.xml"))
//	...
//	err = weffo.OutputFromTemplate(t, weffo.FileSource("model.xml"), weffo.ToWriter(w),
//		weffo.WithParams(weffo.Params{"user": weffo.String("ada")}))
package weffo

import (
	"sync"
	"sync/atomic"

	"github.com/jacoelho/weffo/pkg/xmltree"
)

// Parser bounds applied unless WithParserLimits overrides them.
const (
	defaultMaxDepth = 256
	defaultMaxAttrs = 256
)

// Pipeline compiles views and executes templates. It is safe for concurrent
// use by multiple goroutines.
type Pipeline struct {
	meta     func() (*Template, error)
	parser   *xmltree.Parser
	fallback Resolver
	observer Observer
	requests atomic.Uint64
}

// Option configures a Pipeline.
type Option interface{ apply(*pipelineOptions) }

type pipelineOptions struct {
	meta     *Template
	fallback Resolver
	observer Observer
	maxDepth int
	maxAttrs int
}

type optionFunc func(*pipelineOptions)

func (f optionFunc) apply(cfg *pipelineOptions) {
	if cfg == nil {
		return
	}
	f(cfg)
}

// WithMetaTemplate replaces the bundled meta-transform, typically with one
// built by LoadMetaTemplate.
func WithMetaTemplate(t *Template) Option {
	return optionFunc(func(cfg *pipelineOptions) {
		cfg.meta = t
	})
}

// WithFallbackResolver sets the resolver consulted when the per-execution
// resolver is absent or declines a reference. The default resolves
// operating system paths and file: URLs.
func WithFallbackResolver(r Resolver) Option {
	return optionFunc(func(cfg *pipelineOptions) {
		cfg.fallback = r
	})
}

// WithObserver reports every request transition to o.
func WithObserver(o Observer) Option {
	return optionFunc(func(cfg *pipelineOptions) {
		cfg.observer = o
	})
}

// WithParserLimits bounds element depth and attributes per element for
// every document the pipeline parses. Zero keeps the default.
func WithParserLimits(maxDepth, maxAttrs int) Option {
	return optionFunc(func(cfg *pipelineOptions) {
		cfg.maxDepth = maxDepth
		cfg.maxAttrs = maxAttrs
	})
}

// New returns a Pipeline.
//
// Every document the pipeline parses (views, generated stylesheets, models
// and resolved documents) is bounded to 256 levels of element nesting and
// 256 attributes per element. Deeper or wider documents fail with a parse
// error; WithParserLimits raises the bounds.
func New(opts ...Option) *Pipeline {
	var cfg pipelineOptions
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&cfg)
		}
	}
	p := &Pipeline{
		meta:     MetaTemplate,
		fallback: cfg.fallback,
		observer: cfg.observer,
		parser: xmltree.NewParser(xmltree.NamespaceAware,
			xmltree.MaxDepth(defaultLimit(cfg.maxDepth, defaultMaxDepth)),
			xmltree.MaxAttrs(defaultLimit(cfg.maxAttrs, defaultMaxAttrs)),
		),
	}
	if cfg.meta != nil {
		meta := cfg.meta
		p.meta = func() (*Template, error) { return meta, nil }
	}
	if p.fallback == nil {
		p.fallback = fileResolver{}
	}
	return p
}

func defaultLimit(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// OutputFromPrototype compiles view and executes it against model in one
// call. Nothing is cached.
func (p *Pipeline) OutputFromPrototype(view, model Source, result Result, opts ...ExecuteOption) error {
	tr := p.track()
	t, err := p.compile(tr, view)
	if err != nil {
		return tr.fail(err)
	}
	tr.advance(StateTemplateCompiled)
	return p.execute(tr, t, model, result, opts)
}

// TemplateFromPrototype compiles view for repeated use with
// OutputFromTemplate. The caller owns the template.
func (p *Pipeline) TemplateFromPrototype(view Source) (*Template, error) {
	tr := p.track()
	t, err := p.compile(tr, view)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateTemplateCompiled)
	tr.advance(StateTemplateCached)
	return t, nil
}

// OutputFromTemplate executes a cached template against model.
func (p *Pipeline) OutputFromTemplate(t *Template, model Source, result Result, opts ...ExecuteOption) error {
	return p.Execute(t, model, result, opts...)
}

var defaultPipeline = sync.OnceValue(func() *Pipeline { return New() })

// Default returns the pipeline used by the package-level functions.
func Default() *Pipeline {
	return defaultPipeline()
}

// Compile compiles view with the default pipeline.
func Compile(view Source) (*Template, error) {
	return Default().Compile(view)
}

// Execute executes t with the default pipeline.
func Execute(t *Template, model Source, result Result, opts ...ExecuteOption) error {
	return Default().Execute(t, model, result, opts...)
}

// OutputFromPrototype compiles and executes with the default pipeline.
func OutputFromPrototype(view, model Source, result Result, opts ...ExecuteOption) error {
	return Default().OutputFromPrototype(view, model, result, opts...)
}

// TemplateFromPrototype compiles view with the default pipeline.
func TemplateFromPrototype(view Source) (*Template, error) {
	return Default().TemplateFromPrototype(view)
}

// OutputFromTemplate executes t with the default pipeline.
func OutputFromTemplate(t *Template, model Source, result Result, opts ...ExecuteOption) error {
	return Default().OutputFromTemplate(t, model, result, opts...)
}

// TransformFromPrototype writes the stylesheet generated from view to
// result using the default pipeline.
func TransformFromPrototype(view Source, result Result) error {
	return Default().TransformFromPrototype(view, result)
}
