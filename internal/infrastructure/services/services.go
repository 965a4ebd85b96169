// Package services supervises the long-running processes functional tests
// need: the application server and the browser automation server.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/process"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/signals"
)

// Config describes both services.
type Config struct {
	Pub  string
	Java string
	// AppDir is the directory the application is served from.
	AppDir      string
	AppPort     int
	DriverPort  int
	SeleniumJar string
}

// Services owns the handles of the running services.
type Services struct {
	Starter process.Starter
	Config  Config
	Logger  *zap.Logger

	mu      sync.Mutex
	running []process.Handle
}

// New creates an idle service pair.
func New(starter process.Starter, cfg Config, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Services{Starter: starter, Config: cfg, Logger: logger}
}

type service struct {
	spec       process.Spec
	classifier *signals.Classifier
}

func (s *Services) services() ([]service, error) {
	if s.Config.SeleniumJar == "" {
		return nil, errors.New("services: selenium server jar not configured")
	}
	return []service{
		{
			spec: process.Spec{
				Name:    "pub serve",
				Command: s.Config.Pub,
				Args:    []string{"serve", "--port=" + strconv.Itoa(s.Config.AppPort)},
				Dir:     s.Config.AppDir,
			},
			classifier: signals.AppServer(),
		},
		{
			spec: process.Spec{
				Name:    "selenium",
				Command: s.Config.Java,
				Args:    []string{"-jar", s.Config.SeleniumJar, "-port", strconv.Itoa(s.Config.DriverPort)},
			},
			classifier: signals.DriverServer(),
		},
	}, nil
}

// Start launches both services and waits until each reports readiness.
// When either fails to come up both are killed and the error wraps
// ErrPortBound.
func (s *Services) Start(ctx context.Context) error {
	svcs, err := s.services()
	if err != nil {
		return err
	}

	handles := make([]process.Handle, 0, len(svcs))
	for _, svc := range svcs {
		h, err := s.Starter.Start(ctx, svc.spec)
		if err != nil {
			s.track(handles)
			_ = s.Stop()
			return fmt.Errorf("%w: start %s: %w", domain.ErrPortBound, svc.spec.Name, err)
		}
		handles = append(handles, h)
	}
	s.track(handles)

	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range svcs {
		h := handles[i]
		g.Go(func() error { return s.awaitReady(gctx, svc, h) })
	}
	if err := g.Wait(); err != nil {
		_ = s.Stop()
		return err
	}
	s.Logger.Info("auxiliary services ready",
		zap.Int("app_port", s.Config.AppPort),
		zap.Int("driver_port", s.Config.DriverPort))
	return nil
}

func (s *Services) awaitReady(ctx context.Context, svc service, h process.Handle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-h.Lines():
			if !ok {
				return fmt.Errorf("%w: %s exited before it was ready", domain.ErrPortBound, svc.spec.Name)
			}
			switch ev := svc.classifier.Classify(line.Text); ev.Kind {
			case signals.Ready:
				s.Logger.Debug("service ready", zap.String("service", svc.spec.Name))
				h.Detach()
				return nil
			case signals.BindFailed:
				return fmt.Errorf("%w: %s: %s", domain.ErrPortBound, svc.spec.Name, ev.Line)
			}
		}
	}
}

func (s *Services) track(handles []process.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = append(s.running, handles...)
}

// Stop kills every running service and waits for it to exit. It is safe to
// call when nothing is running.
func (s *Services) Stop() error {
	s.mu.Lock()
	running := s.running
	s.running = nil
	s.mu.Unlock()

	var errs []error
	for _, h := range running {
		if err := h.Kill(); err != nil {
			errs = append(errs, err)
		}
		<-h.Done()
	}
	if len(running) > 0 {
		s.Logger.Info("auxiliary services stopped")
	}
	return errors.Join(errs...)
}
