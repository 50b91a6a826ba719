// Package cli implements the sopreg command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/soplang/registry/client"
	"github.com/soplang/registry/fetch"
	"github.com/soplang/registry/internal/config"
	"github.com/soplang/registry/internal/core"
	sreglog "github.com/soplang/registry/internal/log"
	"github.com/soplang/registry/internal/publish"
	"github.com/soplang/registry/internal/sop"
	"github.com/soplang/registry/internal/tracing"
)

var version = "dev"

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: 2, Err: err}
}

// app holds state shared by all subcommands for one invocation.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer

	cfgFile  string
	output   string
	noCommit bool
	trace    bool

	logger  *slog.Logger
	tracing *tracing.Provider

	fetcher   fetch.FetcherInterface
	publisher publish.Publisher
}

// Option configures the command tree, mostly for tests.
type Option func(*app)

// WithFetcher replaces the HTTP transport.
func WithFetcher(f fetch.FetcherInterface) Option {
	return func(a *app) { a.fetcher = f }
}

// WithPublisher replaces the git publisher.
func WithPublisher(p publish.Publisher) Option {
	return func(a *app) { a.publisher = p }
}

// NewRootCommand builds the sopreg command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer, opts ...Option) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "sopreg",
		Short: "Consistency checks for the Soplang package registry",
		Long: `sopreg keeps registry.json consistent with the sop.toml descriptor published
in every package repository, and gates contributions to the registry.`,
		Version:            version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	flags.StringVarP(&a.output, "output", "o", "text", "result format: text, json or yaml")
	flags.BoolVar(&a.noCommit, "no-commit", false, "write changes to disk but do not commit or push")
	flags.BoolVar(&a.trace, "trace", false, "export trace spans to stderr")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		a.newSweepCommand(),
		a.newVerifyAppendCommand(),
		a.newAdmitCommand(),
		a.newEnrichCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if _, err := parseOutput(a.output); err != nil {
		return usageError(err)
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return usageError(err)
	}
	a.cfg = cfg

	level, err := sreglog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return usageError(err)
	}
	format, err := sreglog.ParseFormat(cfg.Log.Format)
	if err != nil {
		return usageError(err)
	}
	a.logger = sreglog.New(a.stderr, level, format)

	a.tracing, err = tracing.NewProvider(a.trace, a.stderr)
	if err != nil {
		return err
	}

	if a.fetcher == nil {
		a.fetcher = fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(
			fetch.WithTimeout(cfg.Timeout),
			fetch.WithUserAgent(cfg.UserAgent),
			fetch.WithMaxRetries(cfg.MaxRetries),
		))
	}

	a.logger.Debug("configuration loaded",
		"config", a.v.ConfigFileUsed(),
		"branch", cfg.Branch,
		"descriptor_file", cfg.DescriptorFile)
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	if a.tracing == nil {
		return nil
	}
	return a.tracing.Shutdown(context.WithoutCancel(cmd.Context()))
}

func (a *app) tracer() trace.Tracer {
	return a.tracing.Tracer()
}

func (a *app) urls() *client.RawURLs {
	return client.NewRawURLs(a.cfg.Branch, a.cfg.DescriptorFile)
}

func (a *app) source() *sop.Source {
	return sop.NewSource(a.fetcher, a.urls(),
		sop.WithCacheTTL(a.cfg.CacheTTL),
		sop.WithLogger(a.logger))
}

func (a *app) coreOptions() []core.Option {
	return []core.Option{core.WithLogger(a.logger), core.WithTracer(a.tracer())}
}

// publish hands the written registry to the publisher. The publisher is built
// on first use so that a missing token only matters when there is something
// to commit.
func (a *app) publish(ctx context.Context, path, message string) error {
	p := a.publisher
	switch {
	case a.noCommit:
		p = publish.DryRun{Logger: a.logger}
	case p == nil:
		gp, err := publish.NewGitPublisher(a.cfg.Git, publish.WithLogger(a.logger))
		if err != nil {
			return err
		}
		p = gp
	}
	if err := p.Publish(ctx, path, message); err != nil {
		return fmt.Errorf("publishing %s: %w", path, err)
	}
	return nil
}

// Execute runs sopreg with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...Option) int {
	root := NewRootCommand(stdout, stderr, opts...)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintln(stderr, "Error:", err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
