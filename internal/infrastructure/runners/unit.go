package runners

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/felixgeelhaar/dcov/internal/application"
	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/process"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/signals"
)

// libraryNotFound is what the server-category analysis prints for a test
// that imports a browser-only library such as dart:html.
const libraryNotFound = "Error: Library not found"

// Tools names the executables the runners launch.
type Tools struct {
	Dart         string
	Dart2JS      string
	ContentShell string
}

// UnitRunner runs a single unit test and returns its VM service port.
type UnitRunner struct {
	Starter process.Starter
	Tools   Tools
	// Dir is the working directory for test processes, normally the
	// project root so package imports resolve.
	Dir    string
	Logger *zap.Logger
	// FreePort overrides local port selection (for testing).
	FreePort func() (int, error)
}

// NewUnitRunner creates a runner that starts processes through starter.
func NewUnitRunner(starter process.Starter, tools Tools, dir string) *UnitRunner {
	return &UnitRunner{Starter: starter, Tools: tools, Dir: dir}
}

// Run is a passing test whose process is still alive so coverage can be
// collected from Port.
type Run struct {
	Test    string
	Port    int
	Browser bool
	// Harness is the generated HTML page for browser tests.
	Harness string

	handle    process.Handle
	closeOnce sync.Once
	closeErr  error
}

// Close kills the test process and removes the generated harness. It is
// safe to call more than once.
func (r *Run) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if r.handle != nil {
			if err := r.handle.Kill(); err != nil {
				errs = append(errs, err)
			}
			<-r.handle.Done()
		}
		if r.Harness != "" {
			if err := os.Remove(r.Harness); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

// VMServicePort returns the port coverage is collected from.
func (r *Run) VMServicePort() int { return r.Port }

// RunTest is Run behind the application's runner interface.
func (u *UnitRunner) RunTest(ctx context.Context, test domain.TestFile) (application.TestRun, error) {
	run, err := u.Run(ctx, test)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Run executes test. On error every resource it created is already
// released.
func (u *UnitRunner) Run(ctx context.Context, test domain.TestFile) (*Run, error) {
	browser, err := u.IsBrowserTest(ctx, test.Path)
	if err != nil {
		return nil, err
	}
	u.logger().Info("running unit test",
		zap.String("test", test.Path),
		zap.Bool("browser", browser))
	if browser {
		return u.runBrowser(ctx, test.Path)
	}
	return u.runVM(ctx, test.Path)
}

// IsBrowserTest prefers an explicit HTML harness next to the test and falls
// back to a server-category analysis. The analyzer's exit code is not
// reliable, so only its output is inspected.
func (u *UnitRunner) IsBrowserTest(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(htmlHarnessPath(path)); err == nil {
		return true, nil
	}
	h, err := u.Starter.Start(ctx, process.Spec{
		Name:    "analyze " + filepath.Base(path),
		Command: u.Tools.Dart2JS,
		Args:    []string{"--analyze-only", "--categories=Server", path},
		Dir:     u.Dir,
	})
	if err != nil {
		return false, fmt.Errorf("analyze %s: %w", path, err)
	}
	browser := false
	for line := range h.Lines() {
		if line.Stream == process.Stdout && strings.Contains(line.Text, libraryNotFound) {
			browser = true
		}
	}
	_ = h.Wait()
	return browser, nil
}

func (u *UnitRunner) runVM(ctx context.Context, path string) (*Run, error) {
	freePort := u.FreePort
	if freePort == nil {
		freePort = FreePort
	}
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("pick vm service port: %w", err)
	}
	h, err := u.Starter.Start(ctx, process.Spec{
		Name:    filepath.Base(path),
		Command: u.Tools.Dart,
		Args:    []string{"--observe=" + strconv.Itoa(port), path},
		Dir:     u.Dir,
	})
	if err != nil {
		return nil, err
	}
	run := &Run{Test: path, Port: port, handle: h}

	classifier := signals.VMTest()
	for {
		select {
		case <-ctx.Done():
			_ = run.Close()
			return nil, ctx.Err()
		case line, ok := <-h.Lines():
			if !ok {
				_ = run.Close()
				return nil, fmt.Errorf("%s exited without reporting a result: %w", path, domain.ErrTestSuiteFailed)
			}
			if line.Stream != process.Stdout {
				continue
			}
			switch ev := classifier.Classify(line.Text); ev.Kind {
			case signals.ServerFailed, signals.Failed:
				_ = run.Close()
				return nil, fmt.Errorf("%s: %s: %w", path, ev.Line, domain.ErrTestSuiteFailed)
			case signals.Passed:
				h.Detach()
				return run, nil
			}
		}
	}
}

func (u *UnitRunner) runBrowser(ctx context.Context, path string) (*Run, error) {
	harness, err := writeHarness(path)
	if err != nil {
		return nil, err
	}
	h, err := u.Starter.Start(ctx, process.Spec{
		Name:    filepath.Base(path),
		Command: u.Tools.ContentShell,
		Args:    []string{"--dump-render-tree", harness},
		Dir:     u.Dir,
	})
	if err != nil {
		_ = os.Remove(harness)
		return nil, err
	}
	run := &Run{Test: path, Browser: true, Harness: harness, handle: h}

	classifier := signals.BrowserTest()
	for {
		select {
		case <-ctx.Done():
			_ = run.Close()
			return nil, ctx.Err()
		case line, ok := <-h.Lines():
			if !ok {
				_ = run.Close()
				return nil, fmt.Errorf("%s exited without reporting a result: %w", path, domain.ErrTestSuiteFailed)
			}
			ev := classifier.Classify(line.Text)
			if ev.Kind == signals.Port {
				run.Port = ev.Port
				continue
			}
			// Suite markers are only trusted on stderr.
			if line.Stream != process.Stderr {
				continue
			}
			switch ev.Kind {
			case signals.Failed:
				_ = run.Close()
				return nil, fmt.Errorf("%s: %s: %w", path, ev.Line, domain.ErrTestSuiteFailed)
			case signals.Passed:
				if run.Port == 0 {
					_ = run.Close()
					return nil, fmt.Errorf("%s passed without announcing a vm service port: %w", path, domain.ErrTestSuiteFailed)
				}
				h.Detach()
				return run, nil
			}
		}
	}
}

func (u *UnitRunner) logger() *zap.Logger {
	if u.Logger == nil {
		return zap.NewNop()
	}
	return u.Logger
}

// FreePort asks the kernel for an unused loopback port.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
