package visualizer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"halo/analyzer"
)

var (
	ErrNoSurface   = errors.New("visualizer: no surface to render to")
	ErrLoopStopped = errors.New("visualizer: loop already stopped")
)

type State int32

const (
	StateWaiting State = iota
	StateRendering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRendering:
		return "rendering"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// SnapshotSource supplies the spectrum for each frame.
type SnapshotSource interface {
	Snapshot() analyzer.Snapshot
}

const DefaultFPS = 30

// Loop renders a frame on every tick until stopped.
type Loop struct {
	surface  *Surface
	source   SnapshotSource
	renderer Renderer
	interval time.Duration
	onFrame  func(*Surface)

	mu     sync.Mutex
	state  State
	halted atomic.Bool
	stop   chan struct{}
	done   chan struct{}
	frames atomic.Uint64
}

// NewLoop builds a loop; onFrame, if non-nil, runs after every frame on
// the loop goroutine.
func NewLoop(surface *Surface, source SnapshotSource, fps int, onFrame func(*Surface)) *Loop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Loop{
		surface:  surface,
		source:   source,
		interval: time.Second / time.Duration(fps),
		onFrame:  onFrame,
	}
}

// Start begins rendering. Without a surface the loop never starts.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.surface == nil:
		return ErrNoSurface
	case l.state == StateRendering:
		return nil
	case l.state == StateStopped:
		return ErrLoopStopped
	}
	l.state = StateRendering
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)
	return nil
}

func (l *Loop) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.frame()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.frame()
		}
	}
}

func (l *Loop) frame() {
	if l.halted.Load() {
		return
	}
	l.renderer.RenderFrame(l.surface, l.source.Snapshot())
	l.frames.Add(1)
	if l.onFrame != nil {
		l.onFrame(l.surface)
	}
}

// Stop cancels the loop. When it returns no further frame will render; a
// frame already in progress finishes first. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.halted.Store(true)
	if l.state != StateRendering {
		l.state = StateStopped
		l.mu.Unlock()
		return
	}
	l.state = StateStopped
	close(l.stop)
	done := l.done
	l.mu.Unlock()
	<-done
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Frames reports how many frames have been rendered.
func (l *Loop) Frames() uint64 { return l.frames.Load() }
