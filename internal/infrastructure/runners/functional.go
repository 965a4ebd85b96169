package runners

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/process"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/signals"
	"github.com/felixgeelhaar/dcov/internal/pathutil"
)

// PortSource exposes the VM service ports announced during a run.
type PortSource interface {
	Snapshot() []int
	Since(before []int) []int
}

// Prober checks whether a VM service port has running isolates.
type Prober interface {
	HasIsolates(ctx context.Context, port int) (bool, error)
}

// FunctionalRunner runs a functional test script against the served
// application and returns the VM service ports it caused to run code.
type FunctionalRunner struct {
	Starter process.Starter
	Ports   PortSource
	Prober  Prober
	Dart    string
	// Root is the application directory; functional tests must live below
	// it and are run from it.
	Root   string
	Logger *zap.Logger
}

// Run executes test and returns the new ports with live isolates, in the
// order they were announced.
func (f *FunctionalRunner) Run(ctx context.Context, test domain.TestFile) ([]int, error) {
	rel, err := RelativeToRoot(f.Root, test.Path)
	if err != nil {
		return nil, err
	}
	logger := f.logger()
	logger.Info("running functional test", zap.String("test", test.Path), zap.String("root", f.Root))

	before := f.Ports.Snapshot()
	h, err := f.Starter.Start(ctx, process.Spec{
		Name:    filepath.Base(test.Path),
		Command: f.Dart,
		Args:    []string{rel},
		Dir:     f.Root,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = h.Kill() }()

	if err := f.awaitResult(ctx, h, test.Path); err != nil {
		return nil, err
	}
	_ = h.Wait()

	candidates := f.Ports.Since(before)
	live := f.probe(ctx, candidates)
	logger.Info("functional test finished",
		zap.String("test", test.Path),
		zap.Ints("candidates", candidates),
		zap.Ints("live", live))
	return live, nil
}

// awaitResult scans the script's output until it exits. A failure marker
// ends the run immediately.
func (f *FunctionalRunner) awaitResult(ctx context.Context, h process.Handle, path string) error {
	classifier := signals.FunctionalTest()
	passed := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-h.Lines():
			if !ok {
				if !passed {
					return fmt.Errorf("%s exited without reporting success: %w", path, domain.ErrTestSuiteFailed)
				}
				return nil
			}
			switch ev := classifier.Classify(line.Text); ev.Kind {
			case signals.ServerFailed, signals.Failed:
				return fmt.Errorf("%s: %s: %w", path, ev.Line, domain.ErrTestSuiteFailed)
			case signals.Passed:
				passed = true
			}
		}
	}
}

// probe queries every candidate concurrently and keeps those with at least
// one isolate. Probe errors exclude the port.
func (f *FunctionalRunner) probe(ctx context.Context, candidates []int) []int {
	alive := make([]bool, len(candidates))
	var g errgroup.Group
	for i, port := range candidates {
		g.Go(func() error {
			ok, err := f.Prober.HasIsolates(ctx, port)
			if err != nil {
				f.logger().Debug("vm service probe failed", zap.Int("port", port), zap.Error(err))
				return nil
			}
			alive[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	live := make([]int, 0, len(candidates))
	for i, port := range candidates {
		if alive[i] {
			live = append(live, port)
		}
	}
	return live
}

func (f *FunctionalRunner) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// RelativeToRoot returns path relative to root, failing for paths that are
// not below root.
func RelativeToRoot(root, path string) (string, error) {
	rel, ok := pathutil.Under(root, path)
	if !ok {
		return "", fmt.Errorf("%s (root %q): %w", path, root, domain.ErrOutsideFunctionalRoot)
	}
	return rel, nil
}
