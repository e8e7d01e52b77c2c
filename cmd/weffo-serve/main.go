// Command weffo-serve compiles the views named in its configuration once
// and renders them over HTTP.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jacoelho/weffo"
	"github.com/jacoelho/weffo/httpview"
	"github.com/jacoelho/weffo/internal/config"
	"github.com/jacoelho/weffo/internal/logging"
	"github.com/jacoelho/weffo/internal/metrics"
	redisresolve "github.com/jacoelho/weffo/resolve/redis"
)

// emptyModel is rendered for routes without a model file.
const emptyModel = "<model/>"

func main() {
	os.Exit(run())
}

func run() int {
	return runWithArgs(os.Args[1:], os.Stdout, os.Stderr)
}

func runWithArgs(args []string, stdout, stderr io.Writer) int {
	var configPath, addr string
	cmd := &cobra.Command{
		Use:           "weffo-serve",
		Short:         "Render compiled views over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			load := config.LoadOptional
			if cmd.Flags().Changed("config") {
				load = config.Load
			}
			cfg, err := load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			logger := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Writer: stderr})
			srv, err := newServer(cfg, logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(); err != nil {
					logger.Warn("close server", "error", err)
				}
			}()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "weffo.yaml", "path to a YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

type server struct {
	cfg    config.Config
	logger *slog.Logger
	http   *http.Server
	redis  *backend.Client
}

// newServer compiles every route. A view that fails to compile aborts
// startup.
func newServer(cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (*server, error) {
	metricsObserver, _, err := metrics.NewObserver(reg)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, weffo.WithObserver(weffo.Observers(logging.Observer(logger), metricsObserver)))
	p := weffo.New(opts...)

	s := &server{cfg: cfg, logger: logger}
	var viewOpts []httpview.Option
	viewOpts = append(viewOpts, httpview.WithLogger(logger), httpview.WithMiddleware(middleware.RequestID, middleware.Recoverer))
	if cfg.Redis.Addr != "" {
		s.redis = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		viewOpts = append(viewOpts, httpview.WithResolver(redisresolve.New(s.redis, redisresolve.WithPrefix(cfg.Redis.Prefix))))
	}

	routes := make([]httpview.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		tmpl, err := p.Compile(weffo.FileSource(rc.View))
		if err != nil {
			return nil, stderrors.Join(fmt.Errorf("route %s", rc.Pattern), err, s.Close())
		}
		params, err := config.RouteParams(rc)
		if err != nil {
			return nil, stderrors.Join(fmt.Errorf("route %s", rc.Pattern), err, s.Close())
		}
		model := weffo.StringSource(emptyModel, rc.View)
		if rc.Model != "" {
			model = weffo.FileSource(rc.Model)
		}
		routes = append(routes, httpview.Route{
			Pattern:  rc.Pattern,
			Template: tmpl,
			Model:    httpview.StaticModel(model),
			Params:   params,
		})
		logger.Info("route compiled", "pattern", rc.Pattern, "view", rc.View, "params", tmpl.Params())
	}

	router := httpview.NewRouter(p, routes, viewOpts...)
	router.Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.http = &http.Server{Addr: cfg.Server.Addr, Handler: router}
	return s, nil
}

func (s *server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is done, then drains outstanding requests for at
// most the configured shutdown timeout.
func (s *server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		serverErrors <- s.http.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("graceful shutdown did not complete", "timeout", s.cfg.Server.ShutdownTimeout, "error", err)
			return s.http.Close()
		}
		return nil
	}
}

func (s *server) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}
