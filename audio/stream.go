package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"halo/encoder"
)

// Track is one live capture device feeding a Stream.
type Track struct {
	device CaptureDevice
	live   atomic.Bool
	once   sync.Once
}

func (t *Track) Name() string { return t.device.DeviceName() }

func (t *Track) Live() bool { return t.live.Load() }

// Stop halts and releases the capture device. Safe to call more than once.
func (t *Track) Stop() {
	t.once.Do(func() {
		t.live.Store(false)
		t.device.ClearCallback()
		t.device.Stop()
		t.device.Close()
	})
}

// Tap is a registered consumer of stream samples.
type Tap struct {
	stream *Stream
	id     uint64
	fn     DataCallback
}

// Disconnect stops delivery to this tap. Idempotent.
func (t *Tap) Disconnect() {
	if t == nil || t.stream == nil {
		return
	}
	t.stream.removeTap(t.id)
}

// Stream is the single live input shared by the analyzer and the
// transcription pipeline. Consumers borrow it through taps; only the
// owner calls Stop.
type Stream struct {
	mu     sync.RWMutex
	tracks []*Track
	taps   []*Tap
	nextID uint64
}

// NewStream wires the given capture devices into a stream. The devices
// are not started.
func NewStream(devices ...CaptureDevice) *Stream {
	s := &Stream{}
	for _, d := range devices {
		tr := &Track{device: d}
		tr.live.Store(true)
		d.SetCallback(s.dispatch)
		s.tracks = append(s.tracks, tr)
	}
	return s
}

func (s *Stream) dispatch(samples []float32) {
	s.mu.RLock()
	taps := s.taps
	s.mu.RUnlock()
	for _, t := range taps {
		t.fn(samples)
	}
}

// Tap registers fn to receive every captured block. fn runs on the
// capture goroutine and must not retain samples.
func (s *Stream) Tap(fn DataCallback) *Tap {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &Tap{stream: s, id: s.nextID, fn: fn}
	// copy-on-write so dispatch can iterate without holding the lock
	taps := make([]*Tap, 0, len(s.taps)+1)
	taps = append(taps, s.taps...)
	s.taps = append(taps, t)
	return t
}

func (s *Stream) removeTap(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	taps := make([]*Tap, 0, len(s.taps))
	for _, t := range s.taps {
		if t.id != id {
			taps = append(taps, t)
		}
	}
	s.taps = taps
}

// TapCount reports the number of connected taps.
func (s *Stream) TapCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.taps)
}

func (s *Stream) Tracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Track(nil), s.tracks...)
}

// HasAudio reports whether at least one track is still live.
func (s *Stream) HasAudio() bool {
	if s == nil {
		return false
	}
	for _, t := range s.Tracks() {
		if t.Live() {
			return true
		}
	}
	return false
}

// Stop stops every track. Idempotent.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Source acquires streams from a capture context.
type Source struct {
	ctx    Context
	device *DeviceInfo
}

func NewSource(ctx Context, device *DeviceInfo) *Source {
	return &Source{ctx: ctx, device: device}
}

func (s *Source) SetDevice(device *DeviceInfo) { s.device = device }

func (s *Source) DeviceName() string {
	if s.device == nil {
		return "system default"
	}
	return s.device.Name
}

// Acquire opens and starts a capture device at the transmission rate and
// returns it as a live Stream.
func (s *Source) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev, err := s.ctx.NewCapture(s.device, CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", classify(err))
	}
	stream := NewStream(dev)
	if err := dev.Start(); err != nil {
		stream.Stop()
		return nil, fmt.Errorf("start capture: %w", classify(err))
	}
	return stream, nil
}
