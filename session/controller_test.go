package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"halo/analyzer"
	"halo/audio"
	"halo/beep"
	"halo/encoder"
	"halo/transcriber"
	"halo/visualizer"
)

func init() { beep.Disable() }

// countingSource records every acquisition made through it.
type countingSource struct {
	ctx *audio.FakeContext
	src *audio.Source

	mu       sync.Mutex
	acquired int
}

func newCountingSource() *countingSource {
	ctx := audio.NewManualContext()
	return &countingSource{ctx: ctx, src: audio.NewSource(ctx, nil)}
}

func (s *countingSource) Acquire(ctx context.Context) (*audio.Stream, error) {
	s.mu.Lock()
	s.acquired++
	s.mu.Unlock()
	return s.src.Acquire(ctx)
}

func (s *countingSource) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

type rig struct {
	source  *countingSource
	dialer  *transcriber.FakeDialer
	manager *transcriber.Manager
	ctrl    *Controller
	states  <-chan transcriber.State
}

func newRig(t *testing.T, credential string) *rig {
	t.Helper()
	r := &rig{
		source: newCountingSource(),
		dialer: transcriber.NewFakeDialer(),
	}
	r.manager = transcriber.NewManager(r.dialer, transcriber.Config{}, nil)
	r.states = r.manager.Subscribe()
	r.ctrl = NewController(Options{
		Source:     r.source,
		Manager:    r.manager,
		Surface:    visualizer.NewSurface(func() (int, int) { return 64, 64 }),
		FPS:        100,
		Credential: credential,
	})
	t.Cleanup(r.ctrl.Close)
	return r
}

func (r *rig) capture() *audio.FakeCapture { return r.source.ctx.Last() }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func expectState(t *testing.T, ch <-chan transcriber.State, want transcriber.State) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("transition to %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no transition to %v", want)
	}
}

func tone() []float32 {
	b := make([]float32, encoder.BlockSize)
	for i := range b {
		if i%8 < 4 {
			b[i] = 0.5
		} else {
			b[i] = -0.5
		}
	}
	return b
}

func TestActivateWithoutCredentialAcquiresNothing(t *testing.T) {
	r := newRig(t, "")
	err := r.ctrl.Activate(context.Background())
	if !errors.Is(err, transcriber.ErrCredentialMissing) {
		t.Fatalf("Activate() = %v, want ErrCredentialMissing", err)
	}
	if r.source.Acquired() != 0 {
		t.Error("stream acquired without credential")
	}
	if r.dialer.Dials() != 0 {
		t.Error("dialed without credential")
	}
	if r.ctrl.Active() {
		t.Error("controller active")
	}
}

func TestActivatePermissionDenied(t *testing.T) {
	r := newRig(t, "key")
	r.source.ctx.StartErr = errors.New("permission denied")

	err := r.ctrl.Activate(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Activate() = %v, want ErrPermissionDenied", err)
	}
	if !IsUserFacing(err) {
		t.Error("permission errors should raise an alert")
	}
	if r.ctrl.Active() || r.manager.State() != transcriber.StateIdle {
		t.Error("controller left a session behind")
	}
	if r.dialer.Dials() != 0 {
		t.Error("dialed without audio")
	}
}

// Activation with a valid credential walks idle -> connecting -> connected
// and the transcript starts empty.
func TestActivationReachesConnected(t *testing.T) {
	r := newRig(t, "key")
	r.dialer.Gate = make(chan struct{})

	if r.manager.State() != transcriber.StateIdle {
		t.Fatal("manager not idle")
	}
	if err := r.ctrl.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	expectState(t, r.states, transcriber.StateConnecting)
	close(r.dialer.Gate)
	expectState(t, r.states, transcriber.StateConnected)

	if r.manager.Buffer().Len() != 0 {
		t.Error("transcript not empty")
	}
	st := r.ctrl.Status()
	if !st.Active || st.Activation == "" || st.State != transcriber.StateConnected {
		t.Errorf("status = %+v", st)
	}

	capture := r.capture()
	capture.Emit(tone())
	waitFor(t, "frame sent", func() bool { return len(r.dialer.Last().Sent()) == 1 })

	snap := r.ctrl.Snapshot()
	if len(snap) != analyzer.BinCount {
		t.Fatalf("snapshot length %d", len(snap))
	}
	var peak uint8
	for _, v := range snap {
		peak = max(peak, v)
	}
	if peak == 0 {
		t.Error("analyzer saw no signal from the shared stream")
	}
	waitFor(t, "visualizer rendering", func() bool {
		return r.ctrl.Status().Visualizer == visualizer.StateRendering
	})

	r.ctrl.Deactivate()
	if !capture.Stopped() {
		t.Error("tracks not stopped on deactivate")
	}
	if r.manager.State() != transcriber.StateIdle {
		t.Errorf("state %v after deactivate", r.manager.State())
	}
	r.ctrl.Deactivate()
}

// Deactivating while connecting closes the late connection without ever
// feeding audio.
func TestDeactivateWhileConnecting(t *testing.T) {
	r := newRig(t, "key")
	r.dialer.Gate = make(chan struct{})

	if err := r.ctrl.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	expectState(t, r.states, transcriber.StateConnecting)
	capture := r.capture()

	r.ctrl.Deactivate()
	close(r.dialer.Gate)

	// the session context was cancelled, so the dial may abort instead of
	// resolving; either way nothing is sent and the state stays idle
	time.Sleep(30 * time.Millisecond)
	if c := r.dialer.Last(); c != nil {
		if !c.IsClosed() {
			t.Error("late connection left open")
		}
		if len(c.Sent()) != 0 {
			t.Error("audio fed to a deactivated session")
		}
	}
	if r.manager.State() != transcriber.StateIdle {
		t.Errorf("final state %v, want idle", r.manager.State())
	}
	if !capture.Stopped() {
		t.Error("tracks still live")
	}
}

// A transport error while connected surfaces as error and releases every
// audio resource.
func TestTransportErrorTearsDown(t *testing.T) {
	r := newRig(t, "key")
	if err := r.ctrl.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return r.manager.State() == transcriber.StateConnected })
	capture := r.capture()

	r.dialer.Last().Fail(errors.New("connection reset"))

	waitFor(t, "teardown", func() bool { return !r.ctrl.Active() })
	if r.manager.State() != transcriber.StateError {
		t.Errorf("state %v, want error", r.manager.State())
	}
	if !errors.Is(r.ctrl.Status().Err, transcriber.ErrTransport) {
		t.Errorf("status err %v", r.ctrl.Status().Err)
	}
	if !capture.Stopped() {
		t.Error("capture still running after transport error")
	}
	if !r.dialer.Last().IsClosed() {
		t.Error("connection left open")
	}

	// a fresh activation recovers from the error
	if err := r.ctrl.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reconnected", func() bool { return r.manager.State() == transcriber.StateConnected })
}

func TestFragmentsBuildTranscript(t *testing.T) {
	r := newRig(t, "key")
	if err := r.ctrl.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return r.manager.State() == transcriber.StateConnected })

	conn := r.dialer.Last()
	conn.Transcribe("Hel")
	conn.Transcribe("lo world")
	waitFor(t, "transcript", func() bool { return r.manager.Buffer().String() == "Hello world" })
}

func TestServerCloseReleasesAudio(t *testing.T) {
	r := newRig(t, "key")
	if err := r.ctrl.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return r.manager.State() == transcriber.StateConnected })
	r.dialer.Last().Hangup()
	waitFor(t, "teardown", func() bool { return !r.ctrl.Active() })
	if r.manager.State() != transcriber.StateIdle {
		t.Errorf("state %v, want idle", r.manager.State())
	}
}

func TestCredentialRemovalDeactivates(t *testing.T) {
	r := newRig(t, "key")
	if err := r.ctrl.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	capture := r.capture()
	r.ctrl.SetCredential("")
	if r.ctrl.Active() {
		t.Fatal("still active without credential")
	}
	if !capture.Stopped() {
		t.Error("capture not stopped")
	}
	if err := r.ctrl.Toggle(context.Background()); !errors.Is(err, transcriber.ErrCredentialMissing) {
		t.Errorf("Toggle() = %v", err)
	}
	r.ctrl.SetCredential("other")
	if err := r.ctrl.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !r.ctrl.Active() {
		t.Error("toggle did not activate")
	}
}

func TestTranscriptAccumulatesAcrossActivations(t *testing.T) {
	r := newRig(t, "key")
	for _, frag := range []string{"first ", "second"} {
		if err := r.ctrl.Activate(context.Background()); err != nil {
			t.Fatal(err)
		}
		waitFor(t, "connected", func() bool { return r.manager.State() == transcriber.StateConnected })
		want := r.manager.Buffer().String() + frag
		r.dialer.Last().Transcribe(frag)
		waitFor(t, "fragment", func() bool { return r.manager.Buffer().String() == want })
		r.ctrl.Deactivate()
	}
	if got := r.manager.Buffer().String(); got != "first second" {
		t.Errorf("transcript = %q", got)
	}
}

func TestNilSurfaceStillTranscribes(t *testing.T) {
	source := newCountingSource()
	dialer := transcriber.NewFakeDialer()
	m := transcriber.NewManager(dialer, transcriber.Config{}, nil)
	ctrl := NewController(Options{Source: source, Manager: m, Credential: "key"})
	defer ctrl.Close()

	if err := ctrl.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return m.State() == transcriber.StateConnected })
	if st := ctrl.Status().Visualizer; st != visualizer.StateWaiting {
		t.Errorf("visualizer state %v, want waiting", st)
	}
}
