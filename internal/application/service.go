package application

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/felixgeelhaar/dcov/internal/domain"
)

const (
	lcovName = "coverage.lcov"
	htmlDir  = "html"
)

// Service runs the coverage pipeline: resolve tests, run the functional
// batch against the auxiliary services, run the unit batch, merge, format
// and optionally render HTML.
type Service struct {
	Resolver   TestResolver
	Unit       UnitRunner
	Functional FunctionalRunner
	Services   AuxServices
	Collector  Collector
	Store      CollectionStore
	Formatter  Formatter
	Renderer   HTMLRenderer
	Summarizer CoverageSummarizer
	Streams    Streams
	Logger     *zap.Logger
}

// Run executes one coverage run. The returned Result is always populated
// with whatever was produced; a non-nil error means the run failed. The
// output streams are closed before Run returns.
func (s *Service) Run(ctx context.Context, opts RunOptions) (domain.Result, error) {
	defer s.Streams.Close()
	result := domain.Result{}

	if opts.HTML {
		if err := s.Renderer.Require(); err != nil {
			return s.fail(result, err)
		}
	}

	tests, err := s.Resolver.Resolve(opts.Unit, opts.Functional)
	if err != nil {
		return s.fail(result, fmt.Errorf("resolve tests: %w", err))
	}
	result.UnitTests = domain.Paths(tests.Unit)
	result.FunctionalTests = domain.Paths(tests.Functional)
	if tests.Empty() {
		return s.fail(result, fmt.Errorf("no test files resolved: %w", domain.ErrEmptyMergeInput))
	}
	s.logger().Info("resolved tests",
		zap.Int("unit", len(tests.Unit)),
		zap.Int("functional", len(tests.Functional)))

	if err := s.Store.Prepare(); err != nil {
		return s.fail(result, err)
	}
	defer func() {
		if err := s.Store.Cleanup(); err != nil {
			s.logger().Warn("removing collection files", zap.Error(err))
		}
	}()

	var files []string
	if tests.HasFunctional() {
		collected, err := s.runFunctional(ctx, tests.Functional, &result)
		if err != nil {
			return s.fail(result, err)
		}
		files = append(files, collected...)
	}

	collected, err := s.runUnit(ctx, tests.Unit, &result)
	if err != nil {
		return s.fail(result, err)
	}
	files = append(files, collected...)

	if _, err := s.Store.Merge(files); err != nil {
		return s.fail(result, err)
	}
	result.Collection = s.Store.MergedPath()

	lcov := filepath.Join(opts.OutputDir, lcovName)
	if err := s.Formatter.Format(ctx, result.Collection, lcov, opts.ReportOn); err != nil {
		return s.fail(result, err)
	}
	result.LCOV = lcov
	if s.Summarizer != nil {
		if summary, err := s.Summarizer.Summarize(lcov); err != nil {
			s.logger().Warn("could not summarize lcov report", zap.Error(err))
		} else {
			result.Summary = &summary
		}
	}

	if opts.HTML {
		dir := filepath.Join(opts.OutputDir, htmlDir)
		index, err := s.Renderer.Generate(ctx, lcov, dir)
		if err != nil {
			return s.fail(result, err)
		}
		result.ReportDir = dir
		result.ReportIndex = index
	}

	result.Successful = true
	s.logger().Info("coverage run finished",
		zap.Int("collected", len(result.Collected)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// runFunctional starts the auxiliary services, runs every functional test
// and stops the services again before returning, whatever happened.
func (s *Service) runFunctional(ctx context.Context, tests []domain.TestFile, result *domain.Result) ([]string, error) {
	if err := s.Services.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Services.Stop(); err != nil {
			s.logger().Warn("stopping auxiliary services", zap.Error(err))
		}
	}()

	var files []string
	for _, test := range tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ports, err := s.Functional.Run(ctx, test)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.skip(result, test, err)
			continue
		}
		collected := 0
		for _, port := range ports {
			out := s.Store.PathForPort(test.Path, port)
			if err := s.Collector.Collect(ctx, port, out); err != nil {
				s.logger().Warn("collecting functional coverage",
					zap.String("test", test.Path),
					zap.Int("port", port),
					zap.Error(err))
				continue
			}
			files = append(files, out)
			collected++
		}
		if collected > 0 {
			result.Collected = append(result.Collected, test.Path)
		}
	}
	return files, nil
}

func (s *Service) runUnit(ctx context.Context, tests []domain.TestFile, result *domain.Result) ([]string, error) {
	var files []string
	for _, test := range tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.collectUnit(ctx, test)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.skip(result, test, err)
			continue
		}
		files = append(files, out)
		result.Collected = append(result.Collected, test.Path)
	}
	return files, nil
}

// collectUnit runs test and snapshots its coverage. The test process is
// released before returning on every path.
func (s *Service) collectUnit(ctx context.Context, test domain.TestFile) (string, error) {
	run, err := s.Unit.RunTest(ctx, test)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := run.Close(); err != nil {
			s.logger().Debug("releasing test process", zap.String("test", test.Path), zap.Error(err))
		}
	}()
	out := s.Store.PathFor(test.Path)
	if err := s.Collector.Collect(ctx, run.VMServicePort(), out); err != nil {
		return "", err
	}
	return out, nil
}

func (s *Service) skip(result *domain.Result, test domain.TestFile, err error) {
	result.Skipped = append(result.Skipped, domain.SkippedTest{Path: test.Path, Reason: err.Error()})
	s.Streams.Notify(test.Path, fmt.Sprintf("skipping %s test %s: %v", test.Kind, test.Path, err))
	fields := []zap.Field{zap.String("test", test.Path), zap.String("kind", string(test.Kind)), zap.Error(err)}
	if domain.IsSkippable(err) {
		s.logger().Info("test skipped", fields...)
		return
	}
	s.logger().Warn("test errored", fields...)
}

func (s *Service) fail(result domain.Result, err error) (domain.Result, error) {
	result.Successful = false
	result.Error = err.Error()
	s.logger().Error("coverage run failed", zap.Error(err))
	return result, err
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
