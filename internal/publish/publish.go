// Package publish commits a changed registry file and pushes it upstream.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/soplang/registry/internal/config"
	sreglog "github.com/soplang/registry/internal/log"
)

// Publisher persists a committed change to the registry file at path.
type Publisher interface {
	Publish(ctx context.Context, path, message string) error
}

// Runner runs git with args inside dir and returns its trimmed stdout.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExecRunner runs the git binary found on PATH.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	return strings.TrimSpace(string(out)), err
}

// GitError reports a failed git invocation. Credentials are redacted from Args.
type GitError struct {
	Args []string
	Err  error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// GitPublisher commits with a fixed bot identity and pushes the current
// branch through an authenticated https remote.
type GitPublisher struct {
	cfg    config.GitConfig
	runner Runner
	logger *slog.Logger
}

// Option configures a GitPublisher.
type Option func(*GitPublisher)

// WithRunner replaces the git runner.
func WithRunner(r Runner) Option {
	return func(p *GitPublisher) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *GitPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewGitPublisher returns a publisher for cfg. It fails with
// config.ErrMissingToken when no token is configured.
func NewGitPublisher(cfg config.GitConfig, opts ...Option) (*GitPublisher, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	p := &GitPublisher{
		cfg:    cfg,
		runner: ExecRunner{},
		logger: sreglog.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish stages path, commits it with message and pushes the current branch.
// A failure leaves the working tree as it is; nothing is rolled back.
func (p *GitPublisher) Publish(ctx context.Context, path, message string) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	steps := [][]string{
		{"config", "user.name", p.cfg.UserName},
		{"config", "user.email", p.cfg.UserEmail},
		{"remote", "set-url", p.cfg.Remote, p.cfg.RemoteURL()},
		{"add", file},
		{"commit", "-m", message},
	}
	for _, args := range steps {
		if _, err := p.git(ctx, dir, args...); err != nil {
			return err
		}
	}

	branch, err := p.git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return err
	}
	if _, err := p.git(ctx, dir, "push", p.cfg.Remote, branch); err != nil {
		return err
	}

	p.logger.Info("published registry", "path", path, "branch", branch, "message", message)
	return nil
}

func (p *GitPublisher) git(ctx context.Context, dir string, args ...string) (string, error) {
	p.logger.Debug("running git", "args", p.redact(args))
	out, err := p.runner.Run(ctx, dir, args...)
	if err != nil {
		return "", &GitError{Args: p.redact(args), Err: err}
	}
	return out, nil
}

func (p *GitPublisher) redact(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = strings.ReplaceAll(a, p.cfg.Token, "***")
	}
	return out
}

// DryRun logs what would be published and touches nothing.
type DryRun struct {
	Logger *slog.Logger
}

func (d DryRun) Publish(_ context.Context, path, message string) error {
	if d.Logger != nil {
		d.Logger.Info("skipping commit", "path", path, "message", message)
	}
	return nil
}
