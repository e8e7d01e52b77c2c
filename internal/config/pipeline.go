package config

import (
	"os"
	"path/filepath"

	"github.com/jacoelho/weffo"
)

// PipelineOptions translates the pipeline settings of c: a replacement
// meta-transform, parser limits and a sandboxed document root for the
// fallback resolver.
func (c Config) PipelineOptions() ([]weffo.Option, error) {
	var opts []weffo.Option
	if c.Meta != "" {
		meta, err := weffo.LoadMetaTemplate(os.DirFS(filepath.Dir(c.Meta)), filepath.Base(c.Meta))
		if err != nil {
			return nil, err
		}
		opts = append(opts, weffo.WithMetaTemplate(meta))
	}
	if c.Limits.MaxDepth > 0 || c.Limits.MaxAttrs > 0 {
		opts = append(opts, weffo.WithParserLimits(c.Limits.MaxDepth, c.Limits.MaxAttrs))
	}
	if c.DocumentRoot != "" {
		opts = append(opts, weffo.WithFallbackResolver(weffo.NewFSResolver(os.DirFS(c.DocumentRoot))))
	}
	return opts, nil
}
