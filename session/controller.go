// Package session owns the live input stream and drives the visualizer and
// the transcription manager from it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"halo/analyzer"
	"halo/audio"
	"halo/beep"
	"halo/log"
	"halo/transcriber"
	"halo/visualizer"
	"halo/voice"
)

// StreamProvider yields a started input stream. *audio.Source implements it.
type StreamProvider interface {
	Acquire(ctx context.Context) (*audio.Stream, error)
}

type Options struct {
	Source     StreamProvider
	Manager    *transcriber.Manager
	Surface    *visualizer.Surface // nil disables the visualizer
	FPS        int
	OnFrame    func(*visualizer.Surface)
	Credential string
}

// Status is a point-in-time view for the UI.
type Status struct {
	Active     bool
	Activation string
	Since      time.Time
	State      transcriber.State
	Err        error
	Visualizer visualizer.State
	NoVoice    bool
}

type Controller struct {
	opts Options

	mu         sync.Mutex
	credential string
	active     bool
	activation string
	since      time.Time
	stream     *audio.Stream
	analyzer   *analyzer.Analyzer
	detector   *voice.Detector
	loop       *visualizer.Loop
	cancel     context.CancelFunc

	states <-chan transcriber.State
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewController(opts Options) *Controller {
	c := &Controller{
		opts:       opts,
		credential: opts.Credential,
		states:     opts.Manager.Subscribe(),
		done:       make(chan struct{}),
	}
	c.wg.Add(1)
	go c.watch()
	return c
}

// watch tears the pipelines down when the session ends on its own, either
// by transport error or server close.
func (c *Controller) watch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.states:
		}
		c.mu.Lock()
		st := c.opts.Manager.State()
		if c.active && (st == transcriber.StateError || st == transcriber.StateIdle) {
			log.Warnf("transcription ended (%s), releasing audio", st)
			c.teardownLocked(false)
			if st == transcriber.StateError {
				beep.PlayError()
			}
		}
		c.mu.Unlock()
	}
}

// Activate acquires the microphone and starts both pipelines. Without a
// credential nothing is acquired.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return nil
	}
	if c.credential == "" {
		log.Warn("activation blocked: no credential")
		return transcriber.ErrCredentialMissing
	}

	stream, err := c.opts.Source.Acquire(ctx)
	if err != nil {
		log.Errorf("acquire stream: %v", err)
		beep.PlayError()
		return err
	}

	an, err := analyzer.Attach(stream)
	if err != nil {
		stream.Stop()
		return err
	}

	det, err := voice.Attach(stream, onVoiceEvent)
	if err != nil {
		log.Warnf("voice detector: %v", err)
	}

	loop := visualizer.NewLoop(c.opts.Surface, an, c.opts.FPS, c.opts.OnFrame)
	if err := loop.Start(); err != nil {
		// transcription still runs without a surface
		log.Warnf("visualizer: %v", err)
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := c.opts.Manager.Start(sessCtx, c.credential, stream); err != nil {
		cancel()
		loop.Stop()
		if det != nil {
			det.Detach()
		}
		an.Detach()
		stream.Stop()
		log.Errorf("start transcription: %v", err)
		return err
	}

	c.active = true
	c.activation = uuid.NewString()
	c.since = time.Now()
	c.stream = stream
	c.analyzer = an
	c.detector = det
	c.loop = loop
	c.cancel = cancel

	log.SessionStart(c.activation, c.opts.Manager.Config().Model, deviceName(c.opts.Source))
	beep.PlayStart()
	return nil
}

// onVoiceEvent runs on the detector goroutine and must not take c.mu:
// teardown waits for that goroutine while holding it.
func onVoiceEvent(ev voice.Event) {
	if ev == voice.EventWarn || ev == voice.EventRepeat {
		beep.PlayError()
	}
}

func deviceName(src StreamProvider) string {
	if n, ok := src.(interface{ DeviceName() string }); ok {
		return n.DeviceName()
	}
	return "unknown"
}

// Deactivate closes the transcription session, stops the render loop,
// detaches the analyzer and stops every track, in that order. Idempotent.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		c.opts.Manager.Stop()
		return
	}
	c.teardownLocked(true)
	beep.PlayEnd()
}

func (c *Controller) teardownLocked(stopManager bool) {
	if stopManager {
		c.opts.Manager.Stop()
	}
	c.cancel()
	c.loop.Stop()
	if c.detector != nil {
		c.detector.Detach()
	}
	c.analyzer.Detach()
	c.stream.Stop()
	log.SessionEnd(c.activation, time.Since(c.since))

	c.active = false
	c.stream = nil
	c.analyzer = nil
	c.detector = nil
	c.loop = nil
	c.cancel = nil
}

func (c *Controller) Toggle(ctx context.Context) error {
	if c.Active() {
		c.Deactivate()
		return nil
	}
	return c.Activate(ctx)
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetCredential replaces the credential. Losing it while active ends the
// session.
func (c *Controller) SetCredential(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if credential == c.credential {
		return
	}
	c.credential = credential
	if credential == "" && c.active {
		log.Warn("credential removed, deactivating")
		c.teardownLocked(true)
		beep.PlayEnd()
		return
	}
	log.Info("credential updated")
}

func (c *Controller) HasCredential() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credential != ""
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Active:     c.active,
		Activation: c.activation,
		Since:      c.since,
		State:      c.opts.Manager.State(),
		Err:        c.opts.Manager.Err(),
		Visualizer: visualizer.StateWaiting,
		NoVoice:    c.detector.NoVoice(),
	}
	if c.loop != nil {
		st.Visualizer = c.loop.State()
	}
	return st
}

// Snapshot exposes the live spectrum for embedders that draw it
// themselves. It is empty while inactive.
func (c *Controller) Snapshot() analyzer.Snapshot {
	c.mu.Lock()
	an := c.analyzer
	c.mu.Unlock()
	if an == nil {
		return make(analyzer.Snapshot, analyzer.BinCount)
	}
	return an.Snapshot()
}

// Close deactivates and stops watching the manager.
func (c *Controller) Close() {
	c.Deactivate()
	close(c.done)
	c.wg.Wait()
}

// IsUserFacing reports whether err should raise a blocking alert rather
// than only a status update.
func IsUserFacing(err error) bool {
	return errors.Is(err, audio.ErrPermissionDenied) ||
		errors.Is(err, audio.ErrDeviceUnavailable) ||
		errors.Is(err, transcriber.ErrCredentialMissing)
}
