package runners

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/dcov/internal/infrastructure/process"
)

// fakeHandle replays scripted output. The process counts as exited from the
// start so Wait and Done never block.
type fakeHandle struct {
	lines chan process.Line
	done  chan struct{}

	mu       sync.Mutex
	killed   bool
	detached bool
}

func newFakeHandle(lines []process.Line) *fakeHandle {
	h := &fakeHandle{
		lines: make(chan process.Line, len(lines)),
		done:  make(chan struct{}),
	}
	for _, l := range lines {
		h.lines <- l
	}
	close(h.lines)
	close(h.done)
	return h
}

func (h *fakeHandle) Lines() <-chan process.Line { return h.lines }
func (h *fakeHandle) Done() <-chan struct{}      { return h.done }
func (h *fakeHandle) Wait() error                { return nil }

func (h *fakeHandle) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detached = true
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	return nil
}

func (h *fakeHandle) wasKilled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed
}

// fakeStarter scripts output per command and records every spec.
type fakeStarter struct {
	mu      sync.Mutex
	scripts map[string][]process.Line
	onStart map[string]func(process.Spec)
	specs   []process.Spec
	handles []*fakeHandle
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{
		scripts: make(map[string][]process.Line),
		onStart: make(map[string]func(process.Spec)),
	}
}

func (s *fakeStarter) script(command string, lines ...process.Line) {
	s.scripts[command] = lines
}

func (s *fakeStarter) Start(_ context.Context, spec process.Spec) (process.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.scripts[spec.Command]
	if !ok {
		return nil, errors.New("exec: " + spec.Command + ": not found")
	}
	if fn := s.onStart[spec.Command]; fn != nil {
		fn(spec)
	}
	h := newFakeHandle(lines)
	s.specs = append(s.specs, spec)
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeStarter) lastHandle() *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[len(s.handles)-1]
}

func (s *fakeStarter) lastSpec() process.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.specs[len(s.specs)-1]
}

func out(text string) process.Line { return process.Line{Stream: process.Stdout, Text: text} }
func errLine(text string) process.Line {
	return process.Line{Stream: process.Stderr, Text: text}
}
