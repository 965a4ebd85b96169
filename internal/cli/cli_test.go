package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/felixgeelhaar/dcov/internal/application"
	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/process"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/project"
)

type fakePipeline struct {
	result domain.Result
	err    error

	builds int
	env    Env
	opts   application.RunOptions
}

func (f *fakePipeline) build(env Env) Pipeline {
	f.builds++
	f.env = env
	return f
}

func (f *fakePipeline) Run(_ context.Context, opts application.RunOptions) (domain.Result, error) {
	f.opts = opts
	return f.result, f.err
}

// setupProject makes a temp Dart project the working directory.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pubspec.yaml"), []byte("name: shop\n"), 0o644); err != nil {
		t.Fatalf("write pubspec: %v", err)
	}
	oldWD, oldLogger := workDir, newLogger
	workDir = func() (string, error) { return dir, nil }
	newLogger = func(bool) (*zap.Logger, error) { return zap.NewNop(), nil }
	t.Cleanup(func() {
		workDir, newLogger = oldWD, oldLogger
	})
	return dir
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	code := Run([]string{"dcov"}, &out, &out, nil)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(out.String(), "Commands:") {
		t.Fatalf("expected usage text: %s", out.String())
	}
}

func TestRunUnknown(t *testing.T) {
	var out bytes.Buffer
	if code := Run([]string{"dcov", "nope"}, &out, &out, nil); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunVersion(t *testing.T) {
	var out bytes.Buffer
	if code := Run([]string{"dcov", "version"}, &out, &out, nil); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out.String(), "dcov "+Version) {
		t.Fatalf("unexpected version output: %s", out.String())
	}
}

func TestRunDefaults(t *testing.T) {
	dir := setupProject(t)
	fake := &fakePipeline{result: domain.Result{Successful: true}}
	var out, errOut bytes.Buffer

	code := Run([]string{"dcov", "run"}, &out, &errOut, fake.build)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut.String())
	}
	if fake.env.Root != dir || fake.env.WorkDir != dir {
		t.Fatalf("unexpected env dirs: %+v", fake.env)
	}
	want := application.RunOptions{
		Unit:      []string{"test"},
		OutputDir: filepath.Join(dir, "coverage"),
		ReportOn:  []string{"lib/"},
	}
	if !reflect.DeepEqual(fake.opts, want) {
		t.Fatalf("expected %+v, got %+v", want, fake.opts)
	}
	if !strings.Contains(out.String(), "SUCCESS") {
		t.Fatalf("expected summary output: %s", out.String())
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	dir := setupProject(t)
	configYAML := "output: cov\nhtml: false\nunit: [test/unit]\nreportOn: [lib/src/]\n"
	if err := os.WriteFile(filepath.Join(dir, ".dcov.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	fake := &fakePipeline{result: domain.Result{Successful: true}}
	var out bytes.Buffer

	code := Run([]string{"dcov", "run", "--html", "--out", "/tmp/report", "--report-on", "lib/,bin/", "-o", "brief", "test/cart_test.dart"}, &out, &out, fake.build)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out.String())
	}
	if !fake.opts.HTML {
		t.Fatalf("expected --html to override config")
	}
	if fake.opts.OutputDir != "/tmp/report" {
		t.Fatalf("unexpected output dir %q", fake.opts.OutputDir)
	}
	if !reflect.DeepEqual(fake.opts.Unit, []string{"test/cart_test.dart"}) {
		t.Fatalf("expected positional unit paths, got %v", fake.opts.Unit)
	}
	if !reflect.DeepEqual(fake.opts.ReportOn, []string{"lib/", "bin/"}) {
		t.Fatalf("unexpected report-on %v", fake.opts.ReportOn)
	}
	if !strings.HasPrefix(out.String(), "SUCCESS | ") {
		t.Fatalf("expected brief output: %s", out.String())
	}
}

func TestRunUsesProjectConfig(t *testing.T) {
	dir := setupProject(t)
	if err := os.WriteFile(filepath.Join(dir, ".dcov.yaml"), []byte("output: cov\nunit: [test/unit]\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	fake := &fakePipeline{result: domain.Result{Successful: true}}
	var out bytes.Buffer

	if code := Run([]string{"dcov", "run"}, &out, &out, fake.build); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out.String())
	}
	if fake.opts.OutputDir != filepath.Join(dir, "cov") {
		t.Fatalf("unexpected output dir %q", fake.opts.OutputDir)
	}
	if !reflect.DeepEqual(fake.opts.Unit, []string{"test/unit"}) {
		t.Fatalf("unexpected unit paths %v", fake.opts.Unit)
	}
}

func TestRunExplicitConfigMissing(t *testing.T) {
	setupProject(t)
	fake := &fakePipeline{}
	var out bytes.Buffer
	code := Run([]string{"dcov", "run", "--config", "missing.yaml"}, &out, &out, fake.build)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if fake.builds != 0 {
		t.Fatalf("expected no run")
	}
	if !strings.Contains(out.String(), "config not found") {
		t.Fatalf("expected config error: %s", out.String())
	}
}

func TestRunInvalidConfig(t *testing.T) {
	setupProject(t)
	fake := &fakePipeline{}
	var out bytes.Buffer
	code := Run([]string{"dcov", "run", "--functional", "test/functional"}, &out, &out, fake.build)
	if code != 2 {
		t.Fatalf("expected exit 2 without selenium jar, got %d", code)
	}
	if fake.builds != 0 {
		t.Fatalf("expected no run")
	}
}

func TestRunBadFlag(t *testing.T) {
	setupProject(t)
	var out bytes.Buffer
	if code := Run([]string{"dcov", "run", "--output", "xml"}, &out, &out, (&fakePipeline{}).build); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunNoProject(t *testing.T) {
	setupProject(t)
	old := findProject
	findProject = func(string) (project.Project, error) { return project.Project{}, project.ErrNoPubspec }
	defer func() { findProject = old }()

	var out bytes.Buffer
	if code := Run([]string{"dcov", "run"}, &out, &out, (&fakePipeline{}).build); code != 3 {
		t.Fatalf("expected exit 3, got %d", code)
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"run failed", domain.ErrEmptyMergeInput, 1},
		{"missing renderer", fmt.Errorf("%w: genhtml", domain.ErrMissingRenderer), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupProject(t)
			fake := &fakePipeline{result: domain.Result{Error: tt.err.Error()}, err: tt.err}
			var out bytes.Buffer
			if code := Run([]string{"dcov", "run"}, &out, &out, fake.build); code != tt.code {
				t.Fatalf("expected exit %d, got %d", tt.code, code)
			}
			if !strings.Contains(out.String(), "FAILED: "+tt.err.Error()) {
				t.Fatalf("expected failure summary: %s", out.String())
			}
		})
	}
}

func TestRunJSONOutput(t *testing.T) {
	setupProject(t)
	fake := &fakePipeline{result: domain.Result{Successful: true, LCOV: "coverage/coverage.lcov"}}
	var out bytes.Buffer
	if code := Run([]string{"dcov", "run", "--output", "json"}, &out, &out, fake.build); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), `"lcov": "coverage/coverage.lcov"`) {
		t.Fatalf("expected json output: %s", out.String())
	}
}

func TestRunInitCreatesFile(t *testing.T) {
	setupProject(t)
	path := filepath.Join(t.TempDir(), ".dcov.yaml")
	var out bytes.Buffer
	code := Run([]string{"dcov", "init", "--config", path, "--no-interactive"}, &out, &out, nil)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, out.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	if !strings.Contains(string(data), "output: coverage") {
		t.Fatalf("unexpected config:\n%s", data)
	}
}

func TestRunInitExistingWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".dcov.yaml")
	if err := os.WriteFile(path, []byte("output: old\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer
	if code := Run([]string{"dcov", "init", "--config", path, "--no-interactive"}, &out, &out, nil); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if code := Run([]string{"dcov", "init", "--config", path, "--no-interactive", "--force"}, &out, &out, nil); code != 0 {
		t.Fatalf("expected exit 0 with --force, got %d", code)
	}
}

func TestRunInitInteractiveBranch(t *testing.T) {
	old := initWizard
	defer func() { initWizard = old }()
	called := false
	initWizard = func(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
		called = true
		cfg.HTML = true
		return cfg, true, nil
	}
	path := filepath.Join(t.TempDir(), ".dcov.yaml")
	var out bytes.Buffer
	if code := Run([]string{"dcov", "init", "--config", path}, &out, &out, nil); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !called {
		t.Fatalf("expected interactive wizard to run")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	if !strings.Contains(string(data), "html: true") {
		t.Fatalf("expected wizard result written:\n%s", data)
	}
}

func TestRunInitInteractiveCancelled(t *testing.T) {
	old := initWizard
	defer func() { initWizard = old }()
	initWizard = func(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
		return cfg, false, nil
	}
	path := filepath.Join(t.TempDir(), ".dcov.yaml")
	var out bytes.Buffer
	if code := Run([]string{"dcov", "init", "--config", path}, &out, &out, nil); code != 0 {
		t.Fatalf("expected exit 0 when wizard cancels, got %d", code)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("config should not exist when wizard cancels")
	}
	if !strings.Contains(out.String(), "Init cancelled") {
		t.Fatalf("expected cancellation message: %s", out.String())
	}
}

func TestWriteConfigFileStdout(t *testing.T) {
	var out bytes.Buffer
	if err := writeConfigFile("-", application.DefaultConfig(), &out, true); err != nil {
		t.Fatalf("write to stdout: %v", err)
	}
	if !strings.Contains(out.String(), "reportOn:") {
		t.Fatalf("expected config output: %s", out.String())
	}
}

func TestOutputValueSet(t *testing.T) {
	val := outputValue(application.OutputText)
	for _, v := range []string{"json", "brief", "text"} {
		if err := val.Set(v); err != nil {
			t.Fatalf("set %s: %v", v, err)
		}
		if val.String() != v {
			t.Fatalf("expected %s, got %s", v, val.String())
		}
	}
	if err := val.Set("bad"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPathListSet(t *testing.T) {
	var list pathList
	_ = list.Set("test/a_test.dart")
	_ = list.Set("test/b, ,test/c")
	want := pathList{"test/a_test.dart", "test/b", "test/c"}
	if !reflect.DeepEqual(list, want) {
		t.Fatalf("expected %v, got %v", want, list)
	}
	if list.String() != "test/a_test.dart,test/b,test/c" {
		t.Fatalf("unexpected string %q", list.String())
	}
}

func TestRunExitCode(t *testing.T) {
	if runExitCode(nil) != 0 {
		t.Fatalf("expected 0")
	}
	if runExitCode(errors.New("boom")) != 1 {
		t.Fatalf("expected 1")
	}
	if runExitCode(fmt.Errorf("wrap: %w", domain.ErrMissingRenderer)) != 3 {
		t.Fatalf("expected 3")
	}
}

func TestPipelineEchoesStreams(t *testing.T) {
	b := process.NewBroadcaster()
	var out bytes.Buffer
	p := &pipeline{}
	p.echo(b.Subscribe(), &out)
	b.Publish(process.Line{Source: "dart", Text: "Observatory listening on http://127.0.0.1:8181"})
	b.Publish(process.Line{Source: "dcov", Text: "skipping test/a_test.dart"})
	b.Close()
	p.printer.Wait()

	want := "[dart] Observatory listening on http://127.0.0.1:8181\n[dcov] skipping test/a_test.dart\n"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}
