// Package process spawns and supervises the external tools dcov drives.
//
// Each child's stdout and stderr are split into lines, stripped of ANSI
// escapes and delivered on a single channel. Every line is also published
// to the run-wide output streams and scanned for VM service port
// announcements, which are kept in a PortRegistry.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/acarl005/stripansi"
	"go.uber.org/zap"

	"github.com/felixgeelhaar/dcov/internal/infrastructure/signals"
)

// Stream identifies the origin of a line.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is one line of child output.
type Line struct {
	Source string
	Stream Stream
	Text   string
}

// Spec describes a child process.
type Spec struct {
	// Name labels output lines and log entries.
	Name    string
	Command string
	Args    []string
	Dir     string
	// Env is appended to the current environment.
	Env []string
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %v", s.Command, s.Args)
}

// Handle is a running child process.
type Handle interface {
	// Lines delivers output from both streams and is closed once both
	// streams reach EOF.
	Lines() <-chan Line
	// Done is closed after the process has exited.
	Done() <-chan struct{}
	// Wait blocks until exit and returns the exit error.
	Wait() error
	// Detach stops delivery on Lines for callers that are done scanning.
	// Output keeps flowing to the run-wide streams.
	Detach()
	// Kill terminates the process and its group. Safe to call repeatedly.
	Kill() error
}

// Starter starts child processes.
type Starter interface {
	Start(ctx context.Context, spec Spec) (Handle, error)
}

// Supervisor is the Starter used for real runs.
type Supervisor struct {
	Out    *Broadcaster
	Err    *Broadcaster
	Ports  *PortRegistry
	Logger *zap.Logger
}

// NewSupervisor creates a supervisor with fresh output streams and port
// registry.
func NewSupervisor(logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		Out:    NewBroadcaster(),
		Err:    NewBroadcaster(),
		Ports:  NewPortRegistry(),
		Logger: logger,
	}
}

// Notify publishes a message from dcov itself on the error stream.
func (s *Supervisor) Notify(source, text string) {
	s.Err.Publish(Line{Source: source, Stream: Stderr, Text: text})
}

// Close ends the run-wide output streams.
func (s *Supervisor) Close() {
	s.Out.Close()
	s.Err.Close()
}

// Start launches spec.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (Handle, error) {
	// #nosec G204 -- commands come from dcov configuration
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setGroup(cmd)
	cmd.Cancel = func() error { return killGroup(cmd) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stdout pipe: %w", spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: stderr pipe: %w", spec.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	s.Logger.Debug("process started",
		zap.String("name", spec.Name),
		zap.String("command", spec.String()),
		zap.String("dir", spec.Dir),
		zap.Int("pid", cmd.Process.Pid))

	p := &Process{
		name:     spec.Name,
		cmd:      cmd,
		lines:    make(chan Line, 64),
		done:     make(chan struct{}),
		detached: make(chan struct{}),
		sup:      s,
	}
	var readers sync.WaitGroup
	readers.Add(2)
	go p.read(stdout, Stdout, &readers)
	go p.read(stderr, Stderr, &readers)
	go func() {
		readers.Wait()
		close(p.lines)
		p.err = cmd.Wait()
		s.Logger.Debug("process exited", zap.String("name", spec.Name), zap.Error(p.err))
		close(p.done)
	}()
	return p, nil
}

// Process is a supervised child.
type Process struct {
	name       string
	cmd        *exec.Cmd
	lines      chan Line
	done       chan struct{}
	detached   chan struct{}
	detachOnce sync.Once
	killOnce   sync.Once
	killErr    error
	err        error
	sup        *Supervisor
}

func (p *Process) read(r io.Reader, stream Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := Line{Source: p.name, Stream: stream, Text: stripansi.Strip(scanner.Text())}
		if port, ok := signals.PortOf(line.Text); ok {
			p.sup.Ports.Record(port)
		}
		if stream == Stderr {
			p.sup.Err.Publish(line)
		} else {
			p.sup.Out.Publish(line)
		}
		select {
		case p.lines <- line:
		case <-p.detached:
			// Keep draining so the child never blocks on a full pipe.
		}
	}
}

func (p *Process) Lines() <-chan Line    { return p.lines }
func (p *Process) Done() <-chan struct{} { return p.done }

func (p *Process) Wait() error {
	<-p.done
	return p.err
}

func (p *Process) Detach() {
	p.detachOnce.Do(func() { close(p.detached) })
}

func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		p.Detach()
		p.killErr = killGroup(p.cmd)
		p.sup.Logger.Debug("process killed", zap.String("name", p.name), zap.Error(p.killErr))
	})
	return p.killErr
}
