// Package httpview serves compiled weffo templates over HTTP.
package httpview

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jacoelho/weffo"
	"github.com/jacoelho/weffo/errors"
)

// ModelFunc returns the model document for a request.
type ModelFunc func(r *http.Request) (weffo.Source, error)

// StaticModel serves the same model source for every request. The source
// must be re-readable, such as a file or bytes source.
func StaticModel(src weffo.Source) ModelFunc {
	return func(*http.Request) (weffo.Source, error) { return src, nil }
}

// Route renders Template for GET requests matching Pattern.
type Route struct {
	Pattern  string
	Template *weffo.Template
	Model    ModelFunc
	// Params are bound on every request and take precedence over URL and
	// query parameters of the same name.
	Params weffo.Params
}

// Option configures the router.
type Option func(*handler)

// WithResolver installs r on every execution.
func WithResolver(r weffo.Resolver) Option {
	return func(h *handler) {
		h.resolver = r
	}
}

// WithLogger logs failed renders to l.
func WithLogger(l *slog.Logger) Option {
	return func(h *handler) {
		h.logger = l
	}
}

// WithMiddleware adds chi middleware in front of every route.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *handler) {
		h.middleware = append(h.middleware, mw...)
	}
}

type handler struct {
	pipeline   *weffo.Pipeline
	resolver   weffo.Resolver
	logger     *slog.Logger
	middleware []func(http.Handler) http.Handler
}

// NewRouter returns a chi router serving routes with p.
func NewRouter(p *weffo.Pipeline, routes []Route, opts ...Option) chi.Router {
	h := &handler{pipeline: p}
	for _, opt := range opts {
		opt(h)
	}
	r := chi.NewRouter()
	r.Use(h.middleware...)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	for _, route := range routes {
		r.Get(route.Pattern, h.render(route))
	}
	return r
}

func (h *handler) render(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if route.Model == nil {
			h.fail(w, r, http.StatusInternalServerError, errors.Newf(errors.ErrTransform, errors.StageExecute, route.Pattern, "route has no model"))
			return
		}
		model, err := route.Model(r)
		if err != nil {
			h.fail(w, r, statusFor(err), err)
			return
		}

		opts := []weffo.ExecuteOption{weffo.WithParams(requestParams(r, route.Params))}
		if h.resolver != nil {
			opts = append(opts, weffo.WithResolver(h.resolver))
		}
		var buf bytes.Buffer
		if err := h.pipeline.Execute(route.Template, model, weffo.ToWriter(&buf), opts...); err != nil {
			h.fail(w, r, statusFor(err), err)
			return
		}
		w.Header().Set("Content-Type", route.Template.ContentType())
		_, _ = buf.WriteTo(w)
	}
}

func requestParams(r *http.Request, fixed weffo.Params) weffo.Params {
	params := weffo.Params{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = weffo.String(v[0])
		}
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, k := range rctx.URLParams.Keys {
			if k == "*" {
				continue
			}
			params[k] = weffo.String(rctx.URLParams.Values[i])
		}
	}
	for k, v := range fixed {
		params[k] = v
	}
	return params
}

func statusFor(err error) int {
	if errors.CodeOf(err) == errors.ErrResolver {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if h.logger != nil {
		h.logger.Error("render failed", "path", r.URL.Path, "status", status, "error", err)
	}
	http.Error(w, http.StatusText(status), status)
}
