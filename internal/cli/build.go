package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/dcov/internal/application"
	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/collection"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/coveragetool"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/parsers/lcov"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/process"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/resolver"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/runners"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/services"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/vmservice"
)

// BuildPipeline wires the production pipeline around a fresh supervisor.
func BuildPipeline(env Env) Pipeline {
	cfg := env.Config
	tools := cfg.Tools
	sup := process.NewSupervisor(env.Logger)
	exec := coveragetool.StarterExec(sup)

	unit := runners.NewUnitRunner(sup, runners.Tools{
		Dart:         tools.Dart,
		Dart2JS:      tools.Dart2JS,
		ContentShell: tools.ContentShell,
	}, env.Root)
	unit.Logger = env.Logger

	store := collection.NewStore(cfg.Output, env.Root)
	store.Logger = env.Logger

	svc := &application.Service{
		Resolver: resolver.NewTestResolver(env.WorkDir),
		Unit:     unit,
		Functional: &runners.FunctionalRunner{
			Starter: sup,
			Ports:   sup.Ports,
			Prober:  vmservice.NewClient(),
			Dart:    tools.Dart,
			Root:    cfg.FunctionalRoot,
			Logger:  env.Logger,
		},
		Services: services.New(sup, services.Config{
			Pub:         tools.Pub,
			Java:        tools.Java,
			AppDir:      cfg.FunctionalRoot,
			AppPort:     cfg.Services.AppPort,
			DriverPort:  cfg.Services.DriverPort,
			SeleniumJar: cfg.Services.SeleniumJar,
		}, env.Logger),
		Collector:  coveragetool.Collector{Pub: tools.Pub, Dir: env.Root, Exec: exec, Logger: env.Logger},
		Store:      store,
		Formatter:  coveragetool.Formatter{Pub: tools.Pub, Dir: env.Root, Exec: exec, Logger: env.Logger},
		Renderer:   coveragetool.HTMLGenerator{Genhtml: tools.Genhtml, Exec: exec, Logger: env.Logger},
		Summarizer: lcov.Summarizer{},
		Streams:    sup,
		Logger:     env.Logger,
	}

	p := &pipeline{svc: svc}
	p.echo(sup.Out.Subscribe(), env.Stderr)
	p.echo(sup.Err.Subscribe(), env.Stderr)
	return p
}

// pipeline prints the process streams while its service runs.
type pipeline struct {
	svc     *application.Service
	printer sync.WaitGroup
}

func (p *pipeline) echo(lines <-chan process.Line, w io.Writer) {
	p.printer.Add(1)
	go func() {
		defer p.printer.Done()
		for line := range lines {
			fmt.Fprintf(w, "[%s] %s\n", line.Source, line.Text)
		}
	}()
}

// Run runs the service and returns once every streamed line is printed.
func (p *pipeline) Run(ctx context.Context, opts application.RunOptions) (domain.Result, error) {
	result, err := p.svc.Run(ctx, opts)
	p.printer.Wait()
	return result, err
}
