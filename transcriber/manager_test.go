package transcriber

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"halo/audio"
	"halo/encoder"
)

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

func nextState(t *testing.T, ch <-chan State) State {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no state change")
		return 0
	}
}

func liveStream(t *testing.T) (*audio.Stream, *audio.FakeCapture) {
	t.Helper()
	ctx := audio.NewManualContext()
	src := audio.NewSource(ctx, nil)
	stream, err := src.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(stream.Stop)
	return stream, ctx.Last()
}

func block(v float32) []float32 {
	b := make([]float32, encoder.BlockSize)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestStartWithoutCredentialNeverDials(t *testing.T) {
	d := NewFakeDialer()
	m := NewManager(d, Config{}, nil)
	stream, _ := liveStream(t)

	err := m.Start(context.Background(), "", stream)
	if !errors.Is(err, ErrCredentialMissing) {
		t.Fatalf("Start() = %v, want ErrCredentialMissing", err)
	}
	if m.State() != StateError {
		t.Errorf("State() = %v, want error", m.State())
	}
	time.Sleep(10 * time.Millisecond)
	if d.Dials() != 0 {
		t.Errorf("dialed %d times", d.Dials())
	}
	if stream.TapCount() != 0 {
		t.Error("audio tapped without a session")
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	m := NewManager(NewFakeDialer(), Config{}, nil)
	states := m.Subscribe()
	m.Stop()
	m.Stop()
	if m.State() != StateIdle {
		t.Errorf("State() = %v, want idle", m.State())
	}
	select {
	case s := <-states:
		t.Errorf("unexpected transition to %v", s)
	default:
	}
}

func TestStartWithoutAudio(t *testing.T) {
	m := NewManager(NewFakeDialer(), Config{}, nil)
	if err := m.Start(context.Background(), "key", nil); !errors.Is(err, ErrNoAudio) {
		t.Errorf("Start(nil) = %v, want ErrNoAudio", err)
	}
}

func TestActivationSequence(t *testing.T) {
	d := NewFakeDialer()
	d.Gate = make(chan struct{})
	m := NewManager(d, Config{}, nil)
	stream, capture := liveStream(t)
	states := m.Subscribe()

	if m.State() != StateIdle {
		t.Fatalf("initial state %v", m.State())
	}
	if err := m.Start(context.Background(), "key", stream); err != nil {
		t.Fatal(err)
	}
	if s := nextState(t, states); s != StateConnecting {
		t.Fatalf("first transition %v, want connecting", s)
	}
	if err := m.Start(context.Background(), "key", stream); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start() = %v, want ErrBusy", err)
	}

	// nothing is sent before the handshake resolves
	capture.Emit(block(0.5))
	if stream.TapCount() != 0 {
		t.Error("audio tapped while connecting")
	}

	close(d.Gate)
	if s := nextState(t, states); s != StateConnected {
		t.Fatalf("second transition %v, want connected", s)
	}
	if m.Buffer().Len() != 0 {
		t.Error("transcript not empty after connect")
	}

	conn := d.Last()
	capture.Emit(block(0.5))
	waitFor(t, "first frame", func() bool { return len(conn.Sent()) == 1 })

	frame := conn.Sent()[0]
	if frame.MimeType != encoder.MimeType {
		t.Errorf("mime = %q", frame.MimeType)
	}
	pcm, err := encoder.Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != encoder.BlockSize || pcm[0] != 16383 {
		t.Errorf("decoded %d samples, first %d", len(pcm), pcm[0])
	}

	m.Stop()
	if !conn.IsClosed() {
		t.Error("connection left open after Stop")
	}
	if stream.TapCount() != 0 {
		t.Error("tap left connected after Stop")
	}
	if m.State() != StateIdle {
		t.Errorf("State() = %v, want idle", m.State())
	}
}

func TestStopWhileConnecting(t *testing.T) {
	d := NewFakeDialer()
	d.Gate = make(chan struct{})
	defer close(d.Gate)
	m := NewManager(d, Config{}, nil)
	stream, capture := liveStream(t)

	if err := m.Start(context.Background(), "key", stream); err != nil {
		t.Fatal(err)
	}
	m.Stop()
	if m.State() != StateIdle {
		t.Fatalf("State() = %v, want idle", m.State())
	}
	if d.Last() != nil {
		t.Error("cancelled dial produced a connection")
	}

	capture.Emit(block(0.25))
	time.Sleep(20 * time.Millisecond)
	if stream.TapCount() != 0 {
		t.Error("cancelled session tapped audio")
	}
	if m.State() != StateIdle {
		t.Errorf("final state %v, want idle", m.State())
	}
}

// slowDialer holds every handshake until the context ends or release is
// closed, and records how many were pending at once.
type slowDialer struct {
	release chan struct{}

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (d *slowDialer) Dial(ctx context.Context, _ string, _ Config) (Conn, error) {
	d.mu.Lock()
	d.inFlight++
	d.peak = max(d.peak, d.inFlight)
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.release:
		return NewFakeConn(), nil
	}
}

func (d *slowDialer) stats() (inFlight, peak int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight, d.peak
}

func TestRestartNeverOverlapsHandshakes(t *testing.T) {
	d := &slowDialer{release: make(chan struct{})}
	m := NewManager(d, Config{}, nil)
	stream, _ := liveStream(t)

	for range 3 {
		if err := m.Start(context.Background(), "key", stream); err != nil {
			t.Fatal(err)
		}
		waitFor(t, "handshake pending", func() bool {
			n, _ := d.stats()
			return n == 1
		})
		m.Stop()
		if n, _ := d.stats(); n != 0 {
			t.Fatalf("%d handshakes still pending after Stop", n)
		}
	}
	if _, peak := d.stats(); peak != 1 {
		t.Errorf("peak concurrent handshakes = %d, want 1", peak)
	}
}

type orderConn struct {
	*FakeConn
	stream      *audio.Stream
	tapsAtClose int
}

func (c *orderConn) Close() error {
	c.tapsAtClose = c.stream.TapCount()
	return c.FakeConn.Close()
}

type orderDialer struct {
	conn *orderConn
}

func (d *orderDialer) Dial(context.Context, string, Config) (Conn, error) {
	return d.conn, nil
}

func TestStopClosesConnectionBeforeTap(t *testing.T) {
	stream, _ := liveStream(t)
	conn := &orderConn{FakeConn: NewFakeConn(), stream: stream}
	m := NewManager(&orderDialer{conn: conn}, Config{}, nil)

	if err := m.Start(context.Background(), "key", stream); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })
	m.Stop()

	if conn.tapsAtClose != 1 {
		t.Errorf("tap count at close = %d, want 1 (connection closed first)", conn.tapsAtClose)
	}
	if stream.TapCount() != 0 {
		t.Error("tap left connected after Stop")
	}
}

func TestTransportErrorReleases(t *testing.T) {
	d := NewFakeDialer()
	m := NewManager(d, Config{}, nil)
	stream, _ := liveStream(t)

	if err := m.Start(context.Background(), "key", stream); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })

	conn := d.Last()
	conn.Fail(errors.New("socket reset"))
	waitFor(t, "error state", func() bool { return m.State() == StateError })

	if !errors.Is(m.Err(), ErrTransport) {
		t.Errorf("Err() = %v, want ErrTransport", m.Err())
	}
	waitFor(t, "connection closed", conn.IsClosed)
	if stream.TapCount() != 0 {
		t.Error("tap left connected after transport error")
	}
	if !stream.HasAudio() {
		t.Error("session stopped tracks it does not own")
	}

	m.Stop()
	if m.State() != StateIdle {
		t.Errorf("Stop after error left state %v", m.State())
	}
}

func TestSendErrorReleases(t *testing.T) {
	d := NewFakeDialer()
	m := NewManager(d, Config{}, nil)
	stream, capture := liveStream(t)

	if err := m.Start(context.Background(), "key", stream); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })
	conn := d.Last()
	conn.mu.Lock()
	conn.SendErr = errors.New("broken pipe")
	conn.mu.Unlock()

	capture.Emit(block(0.1))
	waitFor(t, "error state", func() bool { return m.State() == StateError })
	waitFor(t, "tap released", func() bool { return stream.TapCount() == 0 })
}

func TestConnectFailure(t *testing.T) {
	d := NewFakeDialer()
	d.Err = errors.New("403 Forbidden")
	m := NewManager(d, Config{}, nil)
	stream, _ := liveStream(t)

	if err := m.Start(context.Background(), "bad", stream); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "error state", func() bool { return m.State() == StateError })
	if !errors.Is(m.Err(), ErrConnect) {
		t.Errorf("Err() = %v, want ErrConnect", m.Err())
	}
	if stream.TapCount() != 0 {
		t.Error("failed connect tapped audio")
	}
}

func TestFragmentsAppendInArrivalOrder(t *testing.T) {
	d := NewFakeDialer()
	buf := &Buffer{}
	m := NewManager(d, Config{}, buf)
	stream, _ := liveStream(t)

	if err := m.Start(context.Background(), "key", stream); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })

	conn := d.Last()
	conn.Transcribe("Hel")
	conn.Deliver(ServerMessage{ServerContent: &ServerContent{TurnComplete: true}})
	conn.Transcribe("lo world")
	waitFor(t, "transcript", func() bool { return buf.String() == "Hello world" })

	var last string
	for len(m.Updates()) > 0 {
		last = <-m.Updates()
	}
	if last != "Hello world" {
		t.Errorf("last update %q", last)
	}
	m.Stop()
}

func TestServerCloseReturnsIdle(t *testing.T) {
	d := NewFakeDialer()
	m := NewManager(d, Config{}, nil)
	stream, _ := liveStream(t)

	if err := m.Start(context.Background(), "key", stream); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })
	d.Last().Hangup()
	waitFor(t, "idle", func() bool { return m.State() == StateIdle && stream.TapCount() == 0 })
	if m.Err() != nil {
		t.Errorf("Err() = %v after clean close", m.Err())
	}
}

func TestTranscriptSurvivesRestart(t *testing.T) {
	d := NewFakeDialer()
	m := NewManager(d, Config{}, nil)
	stream, _ := liveStream(t)

	for i, frag := range []string{"one ", "two"} {
		if err := m.Start(context.Background(), "key", stream); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		waitFor(t, "connected", func() bool { return m.State() == StateConnected })
		d.Last().Transcribe(frag)
		waitFor(t, "fragment", func() bool { return strings.HasSuffix(m.Buffer().String(), frag) })
		m.Stop()
	}
	if got := m.Buffer().String(); got != "one two" {
		t.Errorf("transcript = %q, want accumulated text", got)
	}
}
