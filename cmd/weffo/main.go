// Command weffo generates the transform for a view prototype:
//
//	weffo output-stylesheet-file view-template-file
//
// The generated stylesheet can later be compiled and applied to model data
// without repeating the meta-transform.
package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacoelho/weffo"
	"github.com/jacoelho/weffo/internal/config"
	"github.com/jacoelho/weffo/internal/logging"
)

const usage = "Usage: weffo output-stylesheet-file view-template-file"

var errUsage = stderrors.New("usage")

func main() {
	os.Exit(run())
}

func run() int {
	return runWithArgs(os.Args[1:], os.Stdout, os.Stderr)
}

type flags struct {
	config     string
	logLevel   string
	logJSON    bool
	cpuProfile string
	memProfile string
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "weffo output-stylesheet-file view-template-file",
		Short:         "Generate the transform for a view prototype",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(cmd, f, args[0], args[1], stderr)
		},
	}
	cmd.Flags().StringVar(&f.config, "config", "", "path to a YAML configuration file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&f.logJSON, "log-json", false, "log as JSON")
	cmd.Flags().StringVar(&f.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	cmd.Flags().StringVar(&f.memProfile, "memprofile", "", "write memory profile to file")
	return cmd
}

func runWithArgs(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		if stderrors.Is(err, errUsage) {
			_ = writeln(stderr, usage)
			return 1
		}
		_ = writef(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func generate(cmd *cobra.Command, f flags, outPath, viewPath string, stderr io.Writer) (err error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON = f.logJSON
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Writer: stderr})

	stop, err := profiles(f.cpuProfile, f.memProfile)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	opts, err := cfg.PipelineOptions()
	if err != nil {
		return err
	}
	p := weffo.New(append(opts, weffo.WithObserver(logging.Transitions(logger)))...)
	if err := p.TransformFromPrototype(weffo.FileSource(viewPath), weffo.ToFile(outPath)); err != nil {
		return err
	}
	logger.Debug("transform generated", "view", viewPath, "output", outPath)
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
