package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"halo/audio"
	"halo/encoder"
	"halo/log"
	"halo/metrics"
)

// Manager runs at most one live transcription session at a time and owns
// the state machine idle -> connecting -> connected -> {idle | error}.
type Manager struct {
	dialer Dialer
	cfg    Config
	buf    *Buffer

	mu    sync.Mutex
	state State
	err   error
	sess  *session
	subs  []chan State

	updates chan string
}

func NewManager(dialer Dialer, cfg Config, buf *Buffer) *Manager {
	if buf == nil {
		buf = &Buffer{}
	}
	m := &Manager{
		dialer:  dialer,
		cfg:     cfg.withDefaults(),
		buf:     buf,
		updates: make(chan string, 16),
	}
	metrics.SetState(StateIdle.String(), stateNames()...)
	return m
}

func stateNames() []string {
	names := make([]string, len(AllStates))
	for i, s := range AllStates {
		names[i] = s.String()
	}
	return names
}

func (m *Manager) Buffer() *Buffer { return m.buf }

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error that put the manager into StateError, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Subscribe returns a channel receiving every subsequent state change. Slow
// subscribers miss transitions rather than stall the session.
func (m *Manager) Subscribe() <-chan State {
	ch := make(chan State, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Updates delivers the full transcript after each appended fragment.
func (m *Manager) Updates() <-chan string { return m.updates }

func (m *Manager) setStateLocked(s State, err error) {
	m.state = s
	m.err = err
	metrics.SetState(s.String(), stateNames()...)
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Start begins a session over stream. An empty credential fails
// synchronously without dialing. The dial itself runs in the background;
// watch State or Subscribe for the outcome.
func (m *Manager) Start(ctx context.Context, credential string, stream *audio.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateConnecting || m.state == StateConnected {
		return ErrBusy
	}
	if credential == "" {
		m.setStateLocked(StateError, ErrCredentialMissing)
		log.Warn("transcription start blocked: no credential")
		return ErrCredentialMissing
	}
	if !stream.HasAudio() {
		m.setStateLocked(StateError, ErrNoAudio)
		return ErrNoAudio
	}

	s := newSession(m.cfg.QueueSize)
	dialCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	m.sess = s
	m.setStateLocked(StateConnecting, nil)
	go m.connect(dialCtx, s, credential, stream)
	return nil
}

func (m *Manager) connect(ctx context.Context, s *session, credential string, stream *audio.Stream) {
	defer close(s.connectDone)
	start := time.Now()
	conn, err := m.dialer.Dial(ctx, credential, m.cfg)
	s.connectDur = time.Since(start)

	m.mu.Lock()
	if m.sess != s {
		// Stopped while the handshake was pending: never wire audio.
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		log.Info("transcription connect resolved after stop, closed")
		return
	}
	if err != nil {
		m.sess = nil
		m.setStateLocked(StateError, fmt.Errorf("%w: %w", ErrConnect, err))
		m.mu.Unlock()
		s.cancel()
		log.Errorf("transcription connect: %v", err)
		return
	}
	metrics.ConnectDuration.Observe(s.connectDur.Seconds())

	s.conn = conn
	s.tap = stream.Tap(s.feed)
	s.wg.Add(2)
	m.setStateLocked(StateConnected, nil)
	m.mu.Unlock()

	log.Infof("transcription connected in %dms (model=%s)", s.connectDur.Milliseconds(), m.cfg.Model)
	go m.runSender(s)
	go m.runReceiver(s)
}

// Stop closes the current session and releases its audio tap. A pending
// dial is cancelled and waited for, so no connection outlives Stop. It is a
// no-op when idle; from StateError it returns the manager to idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.sess
	if s == nil {
		if m.state == StateError {
			m.setStateLocked(StateIdle, nil)
		}
		m.mu.Unlock()
		return
	}
	m.sess = nil
	m.setStateLocked(StateIdle, nil)
	m.mu.Unlock()

	s.release()
	<-s.connectDone
	s.wg.Wait()
}

// finish ends s from one of its own goroutines. It does nothing when s was
// already stopped.
func (m *Manager) finish(s *session, err error) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	if err != nil {
		m.setStateLocked(StateError, fmt.Errorf("%w: %w", ErrTransport, err))
	} else {
		m.setStateLocked(StateIdle, nil)
	}
	m.mu.Unlock()

	if err != nil {
		log.Errorf("transcription transport: %v", err)
	} else {
		log.Info("transcription closed by server")
	}
	s.release()
}

func (m *Manager) runSender(s *session) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case f := <-s.frames:
			if s.closed() {
				return
			}
			if err := s.conn.Send(f); err != nil {
				m.finish(s, err)
				return
			}
			s.sentFrames.Add(1)
			s.sentBytes.Add(uint64(encoder.BytesPerBlock()))
			metrics.FramesSent.Inc()
			metrics.BytesSent.Add(float64(encoder.BytesPerBlock()))
		}
	}
}

func (m *Manager) runReceiver(s *session) {
	defer s.wg.Done()
	for {
		msg, err := s.conn.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			m.finish(s, err)
			return
		}
		s.recvMessages.Add(1)
		metrics.MessagesReceived.Inc()

		text, ok := msg.TranscriptText()
		if !ok {
			log.Debugf("ignoring server message without transcription")
			continue
		}
		if s.closed() {
			return
		}
		full := m.buf.Append(text)
		s.fragments.Add(1)
		metrics.TranscriptFragments.Inc()
		log.TranscriptionText(text)

		select {
		case m.updates <- full:
		default:
		}
	}
}

type session struct {
	conn   Conn
	tap    *audio.Tap
	frames chan encoder.Frame
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	cancel      context.CancelFunc
	connectDone chan struct{}

	tapMu   sync.Mutex
	blocker *encoder.Blocker

	startedAt    time.Time
	connectDur   time.Duration
	sentFrames   atomic.Int64
	dropped      atomic.Int64
	sentBytes    atomic.Uint64
	recvMessages atomic.Int64
	fragments    atomic.Int64
}

func newSession(queue int) *session {
	return &session{
		frames:      make(chan encoder.Frame, queue),
		done:        make(chan struct{}),
		connectDone: make(chan struct{}),
		blocker:     encoder.NewBlocker(encoder.BlockSize),
		startedAt:   time.Now(),
	}
}

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// feed runs on the capture goroutine. Full blocks are encoded and queued;
// when the sender falls behind the frame is dropped.
func (s *session) feed(samples []float32) {
	s.tapMu.Lock()
	defer s.tapMu.Unlock()
	if s.closed() {
		return
	}
	s.blocker.Push(samples, func(block []float32) {
		select {
		case s.frames <- encoder.Encode(block):
		default:
			s.dropped.Add(1)
			metrics.FramesDropped.Inc()
		}
	})
}

// release cancels a pending dial, closes the connection and then
// disconnects the tap. Safe to call from any goroutine, any number of times.
func (s *session) release() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.tapMu.Lock()
		close(s.done)
		s.blocker.Flush()
		s.tapMu.Unlock()

		if s.conn != nil {
			s.conn.Close()
			s.logStats()
		}
		if s.tap != nil {
			s.tap.Disconnect()
		}
	})
}

func (s *session) logStats() {
	sent := s.sentBytes.Load()
	log.StreamMetrics(log.StreamMetricsData{
		ConnectMs:     float64(s.connectDur.Milliseconds()),
		TotalMs:       float64(time.Since(s.startedAt).Milliseconds()),
		AudioS:        float64(sent) / float64(encoder.SampleRate*encoder.Channels*(encoder.BitsPerSample/8)),
		SentFrames:    int(s.sentFrames.Load()),
		DroppedFrames: int(s.dropped.Load()),
		SentKB:        float64(sent) / 1024,
		RecvMessages:  int(s.recvMessages.Load()),
		Fragments:     int(s.fragments.Load()),
	})
}
