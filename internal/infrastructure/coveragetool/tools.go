// Package coveragetool drives the external coverage tools: the collector that
// snapshots a live VM service, the LCOV formatter and the HTML renderer.
package coveragetool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/process"
)

// ExecFunc runs spec to completion.
type ExecFunc func(ctx context.Context, spec process.Spec) error

// StarterExec runs specs through starter, draining their output so it
// reaches the run-wide streams.
func StarterExec(starter process.Starter) ExecFunc {
	return func(ctx context.Context, spec process.Spec) error {
		h, err := starter.Start(ctx, spec)
		if err != nil {
			return err
		}
		for range h.Lines() {
		}
		if err := h.Wait(); err != nil {
			return fmt.Errorf("%s: %w", spec.Name, err)
		}
		return nil
	}
}

// Collector snapshots the coverage of a live VM service.
type Collector struct {
	Pub string
	// Dir is the project root; pub resolves the coverage package from it.
	Dir    string
	Exec   ExecFunc
	Logger *zap.Logger
}

// Collect writes the coverage of the VM listening on port to out.
func (c Collector) Collect(ctx context.Context, port int, out string) error {
	args := []string{
		"run", "coverage:collect_coverage",
		"--port=" + strconv.Itoa(port),
		"-o", out,
		"--resume-isolates",
	}
	logger(c.Logger).Debug("collecting coverage", zap.Int("port", port), zap.String("out", out))
	if err := c.Exec(ctx, process.Spec{Name: "collect_coverage", Command: c.Pub, Args: args, Dir: c.Dir}); err != nil {
		return fmt.Errorf("collect coverage from port %d: %w", port, err)
	}
	return nil
}

// Formatter converts a merged collection to LCOV.
type Formatter struct {
	Pub    string
	Dir    string
	Exec   ExecFunc
	Logger *zap.Logger
}

// Format converts input to LCOV at output, reporting only on sources under
// the reportOn prefixes. A missing output file is ErrFormattingFailed
// whatever the tool's exit status; any previous output is removed first.
func (f Formatter) Format(ctx context.Context, input, output string, reportOn []string) error {
	args := formatArgs(input, output, reportOn)
	logger(f.Logger).Debug("formatting coverage", zap.Strings("args", args))
	// A report left by an earlier run must not pass for this run's output.
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", output, err)
	}
	runErr := f.Exec(ctx, process.Spec{Name: "format_coverage", Command: f.Pub, Args: args, Dir: f.Dir})
	if _, err := os.Stat(output); err != nil {
		if runErr != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrFormattingFailed, output, runErr)
		}
		return fmt.Errorf("%w: %s not written", domain.ErrFormattingFailed, output)
	}
	if runErr != nil {
		logger(f.Logger).Warn("formatter exited with error", zap.Error(runErr))
	}
	return nil
}

func formatArgs(input, output string, reportOn []string) []string {
	args := []string{
		"run", "coverage:format_coverage",
		"-l",
		"--packages=.packages",
		"-i", input,
		"-o", output,
	}
	for _, prefix := range reportOn {
		if prefix == "" {
			continue
		}
		args = append(args, "--report-on="+prefix)
	}
	return args
}

// HTMLGenerator renders an LCOV report with genhtml.
type HTMLGenerator struct {
	Genhtml  string
	Exec     ExecFunc
	LookPath func(file string) (string, error)
	Logger   *zap.Logger
}

// Require fails with ErrMissingRenderer when the renderer is not installed.
func (g HTMLGenerator) Require() error {
	lookPath := g.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath(g.Genhtml); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrMissingRenderer, g.Genhtml)
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrMissingRenderer, g.Genhtml, err)
	}
	return nil
}

// Generate renders lcov into dir and returns the report's index page. The
// renderer's output is not checked.
func (g HTMLGenerator) Generate(ctx context.Context, lcov, dir string) (string, error) {
	args := []string{"-o", dir, lcov}
	logger(g.Logger).Debug("rendering html report", zap.String("dir", dir))
	if err := g.Exec(ctx, process.Spec{Name: "genhtml", Command: g.Genhtml, Args: args}); err != nil {
		return "", fmt.Errorf("genhtml: %w", err)
	}
	return filepath.Join(dir, "index.html"), nil
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
