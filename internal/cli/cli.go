package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/felixgeelhaar/dcov/internal/application"
	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/config"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/project"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/report"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/watcher"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/wizard"
	"github.com/felixgeelhaar/dcov/internal/logging"
	"github.com/felixgeelhaar/dcov/internal/pathutil"
)

// Pipeline performs one coverage run.
type Pipeline interface {
	Run(ctx context.Context, opts application.RunOptions) (domain.Result, error)
}

// Env is everything a Builder needs to wire a pipeline.
type Env struct {
	Config application.Config
	// Root is the Dart project root; tools run from it.
	Root string
	// WorkDir resolves relative test arguments.
	WorkDir string
	Logger  *zap.Logger
	// Stderr receives the output of every spawned process.
	Stderr io.Writer
}

// Builder wires a fresh pipeline. Watch mode builds one per run since the
// output streams of a pipeline end with its run.
type Builder func(env Env) Pipeline

var (
	initWizard  = wizard.Run
	newLogger   = logging.New
	workDir     = os.Getwd
	findProject = project.Find
)

const (
	exitOK           = 0
	exitRunFailed    = 1
	exitUsage        = 2
	exitPrecondition = 3
)

func Run(args []string, stdout, stderr io.Writer, build Builder) int {
	if len(args) < 2 {
		usage(stderr)
		return exitUsage
	}

	switch args[1] {
	case "run":
		return runCommand(args[2:], stdout, stderr, build)
	case "init":
		return initCommand(args[2:], stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "dcov %s (commit %s, built %s)\n", Version, Commit, Date)
		return exitOK
	default:
		usage(stderr)
		return exitUsage
	}
}

type runFlags struct {
	configPath     string
	output         application.OutputFormat
	html           bool
	out            string
	unit           pathList
	functional     pathList
	functionalRoot string
	reportOn       pathList
	watch          bool
	verbose        bool
	set            map[string]bool
}

func parseRunFlags(args []string, stderr io.Writer) (*runFlags, []string, error) {
	f := &runFlags{output: application.OutputText, set: map[string]bool{}}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", config.DefaultPath, "Config file path")
	fs.Var((*outputValue)(&f.output), "output", "Output format: text|json|brief")
	fs.Var((*outputValue)(&f.output), "o", "Output format: text|json|brief")
	fs.BoolVar(&f.html, "html", false, "Render an HTML report with genhtml")
	fs.StringVar(&f.out, "out", "", "Output directory")
	fs.Var(&f.unit, "unit", "Unit test file or directory (repeatable)")
	fs.Var(&f.functional, "functional", "Functional test file or directory (repeatable)")
	fs.StringVar(&f.functionalRoot, "functional-root", "", "Directory the application is served from")
	fs.Var(&f.reportOn, "report-on", "Path prefix to report on (repeatable)")
	fs.BoolVar(&f.watch, "watch", false, "Re-run coverage when Dart sources change")
	fs.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, fs.Args(), nil
}

// apply overlays flags and positional unit paths on cfg.
func (f *runFlags) apply(cfg application.Config, positional []string) application.Config {
	if f.set["html"] {
		cfg.HTML = f.html
	}
	if f.set["out"] {
		cfg.Output = f.out
	}
	if len(f.unit) > 0 {
		cfg.Unit = f.unit
	}
	if len(positional) > 0 {
		cfg.Unit = positional
	}
	if len(f.functional) > 0 {
		cfg.Functional = f.functional
	}
	if f.set["functional-root"] {
		cfg.FunctionalRoot = f.functionalRoot
	}
	if len(f.reportOn) > 0 {
		cfg.ReportOn = f.reportOn
	}
	return cfg
}

func runCommand(args []string, stdout, stderr io.Writer, build Builder) int {
	flags, positional, err := parseRunFlags(args, stderr)
	if err != nil {
		return exitUsage
	}

	cwd, err := workDir()
	if err != nil {
		return exitCode(err, exitPrecondition, stderr)
	}
	proj, err := findProject(cwd)
	if err != nil {
		return exitCode(err, exitPrecondition, stderr)
	}

	cfg, err := loadConfig(flags, cwd, proj.Root)
	if err != nil {
		return exitCode(err, exitUsage, stderr)
	}
	cfg = flags.apply(cfg, positional)
	if len(cfg.ReportOn) == 0 {
		cfg.ReportOn = proj.DefaultReportOn()
	}
	cfg = absolutize(cfg, cwd)
	if err := cfg.Validate(); err != nil {
		return exitCode(err, exitUsage, stderr)
	}

	logger, err := newLogger(flags.verbose)
	if err != nil {
		return exitCode(err, exitPrecondition, stderr)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := Env{Config: cfg, Root: proj.Root, WorkDir: cwd, Logger: logger, Stderr: stderr}
	if flags.watch {
		return runWatch(ctx, stdout, stderr, build, env, flags.output)
	}

	result, runErr := build(env).Run(ctx, cfg.RunOptions())
	if err := (report.Writer{}).Write(stdout, result, flags.output); err != nil {
		return exitCode(err, exitRunFailed, stderr)
	}
	return runExitCode(runErr)
}

// loadConfig reads the config file. The default path is looked up in the
// project root and may be missing; an explicit --config must exist.
func loadConfig(flags *runFlags, cwd, root string) (application.Config, error) {
	loader := config.Loader{}
	if !flags.set["config"] {
		return application.LoadConfig(loader, filepath.Join(root, config.DefaultPath))
	}
	path := pathutil.Abs(cwd, flags.configPath)
	exists, err := loader.Exists(path)
	if err != nil {
		return application.Config{}, err
	}
	if !exists {
		return application.Config{}, fmt.Errorf("%w: %s", application.ErrConfigNotFound, flags.configPath)
	}
	return application.LoadConfig(loader, path)
}

// absolutize anchors the directories the tools write to or run from, since
// tools run from the project root rather than the working directory.
func absolutize(cfg application.Config, cwd string) application.Config {
	cfg.Output = pathutil.Abs(cwd, cfg.Output)
	if cfg.FunctionalRoot != "" {
		cfg.FunctionalRoot = pathutil.Abs(cwd, cfg.FunctionalRoot)
	}
	if cfg.Services.SeleniumJar != "" {
		cfg.Services.SeleniumJar = pathutil.Abs(cwd, cfg.Services.SeleniumJar)
	}
	return cfg
}

func runExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrMissingRenderer):
		return exitPrecondition
	default:
		return exitRunFailed
	}
}

func runWatch(ctx context.Context, stdout, stderr io.Writer, build Builder, env Env, format application.OutputFormat) int {
	w, err := watcher.New(
		watcher.WithDebounce(500*time.Millisecond),
		watcher.WithIgnoredPaths(env.Config.Output),
		watcher.WithLogger(env.Logger),
	)
	if err != nil {
		fmt.Fprintf(stderr, "failed to create watcher: %v\n", err)
		return exitPrecondition
	}
	defer w.Close()

	fmt.Fprintln(stdout, "Watching for file changes... (Ctrl+C to stop)")

	handler := application.WatchHandler{
		Root:    env.Root,
		Watcher: w,
		Run: func(ctx context.Context) (domain.Result, error) {
			return build(env).Run(ctx, env.Config.RunOptions())
		},
	}
	callback := func(runNumber int, result domain.Result, runErr error) {
		fmt.Fprintf(stdout, "\n--- Run #%d at %s ---\n", runNumber, time.Now().Format("15:04:05"))
		if err := (report.Writer{}).Write(stdout, result, format); err != nil {
			fmt.Fprintf(stderr, "write summary: %v\n", err)
		}
	}

	if err := handler.Watch(ctx, callback); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stdout, "\nStopping watch mode...")
			return exitOK
		}
		fmt.Fprintf(stderr, "watch error: %v\n", err)
		return exitPrecondition
	}
	return exitOK
}

func initCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultPath, "Config file path")
	force := fs.Bool("force", false, "Overwrite existing config file")
	noInteractive := fs.Bool("no-interactive", false, "Skip the interactive init wizard")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg := application.DefaultConfig()
	if cwd, err := workDir(); err == nil {
		if proj, err := findProject(cwd); err == nil {
			cfg.ReportOn = proj.DefaultReportOn()
		}
	}

	if !*noInteractive {
		var confirmed bool
		var err error
		cfg, confirmed, err = initWizard(cfg, stdout, os.Stdin)
		if err != nil {
			return exitCode(err, exitPrecondition, stderr)
		}
		if !confirmed {
			fmt.Fprintln(stdout, "Init cancelled; no configuration written.")
			return exitOK
		}
	}
	if err := writeConfigFile(*configPath, cfg, stdout, *force); err != nil {
		return exitCode(err, exitUsage, stderr)
	}
	fmt.Fprintf(stdout, "Config written to %s\n", *configPath)
	return exitOK
}

type outputValue application.OutputFormat

func (o *outputValue) String() string { return string(*o) }

func (o *outputValue) Set(value string) error {
	switch application.OutputFormat(value) {
	case application.OutputText, application.OutputJSON, application.OutputBrief:
		*o = outputValue(value)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s", value)
	}
}

// pathList implements flag.Value for repeatable path flags. Values may
// also be comma separated.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*p = append(*p, part)
		}
	}
	return nil
}

func writeConfigFile(path string, cfg application.Config, stdout io.Writer, force bool) error {
	if path == "-" {
		return config.Write(stdout, cfg)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	file, err := os.Create(path) // #nosec G304 -- user supplied config path
	if err != nil {
		return err
	}
	defer file.Close()
	return config.Write(file, cfg)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `dcov <command>

Commands:
  run      Run tests, collect coverage and write coverage.lcov
  init     Write .dcov.yaml, interactively by default
  version  Print version information`)
}

func exitCode(err error, code int, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, err)
	return code
}
