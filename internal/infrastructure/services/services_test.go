package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/infrastructure/process"
)

// liveHandle emits its scripted lines and then stays running until killed,
// unless exit is set.
type liveHandle struct {
	lines    chan process.Line
	done     chan struct{}
	killOnce sync.Once
	mu       sync.Mutex
	killed   bool
}

func newLiveHandle(exit bool, texts ...string) *liveHandle {
	h := &liveHandle{lines: make(chan process.Line, len(texts)), done: make(chan struct{})}
	for _, text := range texts {
		h.lines <- process.Line{Text: text}
	}
	if exit {
		close(h.lines)
	}
	return h
}

func (h *liveHandle) Lines() <-chan process.Line { return h.lines }
func (h *liveHandle) Done() <-chan struct{}      { return h.done }
func (h *liveHandle) Wait() error                { <-h.done; return nil }
func (h *liveHandle) Detach()                    {}

func (h *liveHandle) Kill() error {
	h.killOnce.Do(func() {
		h.mu.Lock()
		h.killed = true
		h.mu.Unlock()
		close(h.done)
	})
	return nil
}

func (h *liveHandle) wasKilled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed
}

type fakeStarter struct {
	handles map[string]*liveHandle
	specs   []process.Spec
}

func (s *fakeStarter) Start(_ context.Context, spec process.Spec) (process.Handle, error) {
	h, ok := s.handles[spec.Command]
	if !ok {
		return nil, errors.New("exec: " + spec.Command + ": not found")
	}
	s.specs = append(s.specs, spec)
	return h, nil
}

func testConfig() Config {
	return Config{
		Pub:         "pub",
		Java:        "java",
		AppDir:      "/srv/app",
		AppPort:     8080,
		DriverPort:  4444,
		SeleniumJar: "selenium.jar",
	}
}

func TestStart_BothReady(t *testing.T) {
	app := newLiveHandle(false, "Loading source assets...", "Serving app web on http://localhost:8080")
	driver := newLiveHandle(false, "Launching a standalone server", "Selenium Server is up and running")
	starter := &fakeStarter{handles: map[string]*liveHandle{"pub": app, "java": driver}}
	svc := New(starter, testConfig(), nil)

	require.NoError(t, svc.Start(context.Background()))

	require.Len(t, starter.specs, 2)
	assert.Equal(t, []string{"serve", "--port=8080"}, starter.specs[0].Args)
	assert.Equal(t, "/srv/app", starter.specs[0].Dir)
	assert.Equal(t, []string{"-jar", "selenium.jar", "-port", "4444"}, starter.specs[1].Args)
	assert.False(t, app.wasKilled())
	assert.False(t, driver.wasKilled())

	require.NoError(t, svc.Stop())
	assert.True(t, app.wasKilled())
	assert.True(t, driver.wasKilled())
	require.NoError(t, svc.Stop())
}

func TestStart_BindFailureKillsBoth(t *testing.T) {
	tests := []struct {
		name   string
		app    *liveHandle
		driver *liveHandle
	}{
		{
			name:   "app port in use",
			app:    newLiveHandle(false, "Error: Address already in use"),
			driver: newLiveHandle(false),
		},
		{
			name:   "driver port busy",
			app:    newLiveHandle(false, "Serving app web on http://localhost:8080"),
			driver: newLiveHandle(false, "Port 4444 is busy, please choose a free port"),
		},
		{
			name:   "app exits early",
			app:    newLiveHandle(true, "Could not find a file named pubspec.yaml"),
			driver: newLiveHandle(false, "Selenium Server is up and running"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &fakeStarter{handles: map[string]*liveHandle{"pub": tt.app, "java": tt.driver}}
			svc := New(starter, testConfig(), nil)

			err := svc.Start(context.Background())

			assert.ErrorIs(t, err, domain.ErrPortBound)
			assert.True(t, tt.app.wasKilled())
			assert.True(t, tt.driver.wasKilled())
		})
	}
}

func TestStart_DriverMissing(t *testing.T) {
	app := newLiveHandle(false, "Serving app web on http://localhost:8080")
	starter := &fakeStarter{handles: map[string]*liveHandle{"pub": app}}

	err := New(starter, testConfig(), nil).Start(context.Background())

	assert.ErrorIs(t, err, domain.ErrPortBound)
	assert.True(t, app.wasKilled())
}

func TestStart_RequiresJar(t *testing.T) {
	cfg := testConfig()
	cfg.SeleniumJar = ""
	starter := &fakeStarter{}

	err := New(starter, cfg, nil).Start(context.Background())

	require.Error(t, err)
	assert.Empty(t, starter.specs)
}

func TestStart_ContextCanceled(t *testing.T) {
	app := newLiveHandle(false)
	driver := newLiveHandle(false)
	starter := &fakeStarter{handles: map[string]*liveHandle{"pub": app, "java": driver}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(starter, testConfig(), nil).Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, app.wasKilled())
	assert.True(t, driver.wasKilled())
}
