package application

import (
	"context"
	"errors"
	"io"

	"github.com/felixgeelhaar/dcov/internal/domain"
)

type OutputFormat string

const (
	OutputText  OutputFormat = "text"
	OutputJSON  OutputFormat = "json"
	OutputBrief OutputFormat = "brief"
)

var ErrConfigNotFound = errors.New("config not found")

// Config represents validated, application-ready configuration.
type Config struct {
	Output         string
	HTML           bool
	ReportOn       []string
	Unit           []string
	Functional     []string
	FunctionalRoot string
	Services       ServicesConfig
	Tools          ToolsConfig
}

// ServicesConfig configures the servers functional tests run against.
type ServicesConfig struct {
	AppPort     int
	DriverPort  int
	SeleniumJar string
}

// ToolsConfig names the external executables.
type ToolsConfig struct {
	Dart         string
	Pub          string
	ContentShell string
	Dart2JS      string
	Genhtml      string
	Java         string
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Output:         "coverage",
		ReportOn:       []string{"lib/"},
		Unit:           []string{"test"},
		FunctionalRoot: ".",
		Services: ServicesConfig{
			AppPort:    8080,
			DriverPort: 4444,
		},
		Tools: DefaultTools(),
	}
}

// DefaultTools resolves every executable from PATH.
func DefaultTools() ToolsConfig {
	return ToolsConfig{
		Dart:         "dart",
		Pub:          "pub",
		ContentShell: "content_shell",
		Dart2JS:      "dart2js",
		Genhtml:      "genhtml",
		Java:         "java",
	}
}

type ConfigLoader interface {
	Load(path string) (Config, error)
	Exists(path string) (bool, error)
}

// TestResolver expands path arguments into test files.
type TestResolver interface {
	Resolve(unit, functional []string) (domain.TestSet, error)
}

// TestRun is a passed unit test whose VM keeps serving coverage until
// Close.
type TestRun interface {
	VMServicePort() int
	Close() error
}

// UnitRunner runs one unit test.
type UnitRunner interface {
	RunTest(ctx context.Context, test domain.TestFile) (TestRun, error)
}

// FunctionalRunner runs one functional test and returns the VM service
// ports that ran code during it.
type FunctionalRunner interface {
	Run(ctx context.Context, test domain.TestFile) ([]int, error)
}

// AuxServices are the servers functional tests need.
type AuxServices interface {
	Start(ctx context.Context) error
	Stop() error
}

// Collector snapshots the coverage of one VM service port into a file.
type Collector interface {
	Collect(ctx context.Context, port int, out string) error
}

// CollectionStore names collection files and merges them.
type CollectionStore interface {
	Prepare() error
	PathFor(test string) string
	PathForPort(test string, port int) string
	MergedPath() string
	Merge(files []string) (domain.Collection, error)
	// Cleanup removes the transient collection files.
	Cleanup() error
}

// Formatter converts the merged collection to LCOV.
type Formatter interface {
	Format(ctx context.Context, input, output string, reportOn []string) error
}

// HTMLRenderer renders the LCOV report as HTML.
type HTMLRenderer interface {
	Require() error
	Generate(ctx context.Context, lcov, dir string) (string, error)
}

// CoverageSummarizer reads totals back from an LCOV report.
type CoverageSummarizer interface {
	Summarize(path string) (domain.CoverageSummary, error)
}

// Streams are the run-wide output streams callers watch while a run is in
// progress.
type Streams interface {
	// Notify publishes a message on the error stream.
	Notify(source, text string)
	// Close ends both streams.
	Close()
}

type Reporter interface {
	Write(w io.Writer, result domain.Result, format OutputFormat) error
}

// RunOptions is one coverage run.
type RunOptions struct {
	Unit       []string
	Functional []string
	HTML       bool
	OutputDir  string
	ReportOn   []string
}

// FileWatcher provides file change notifications.
type FileWatcher interface {
	WatchDir(root string) error
	Events(ctx context.Context) <-chan struct{}
	Close() error
}

// WatchCallback is called after each run in watch mode.
type WatchCallback func(runNumber int, result domain.Result, err error)
