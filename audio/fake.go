package audio

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"halo/encoder"
)

const WAVHeaderSize = 44

const fakeFrameSize = 1024

// FakeContext replays PCM16 mono audio instead of opening a device.
// In manual mode nothing is fed until Emit is called on the capture.
type FakeContext struct {
	pcm      []byte
	realtime bool
	manual   bool

	// StartErr, when set, is returned by every capture's Start.
	StartErr error

	mu       sync.Mutex
	captures []*FakeCapture
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

// NewManualContext returns a context whose captures only deliver audio
// passed to FakeCapture.Emit.
func NewManualContext() *FakeContext {
	return &FakeContext{manual: true}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{
		pcm:       f.pcm,
		realtime:  f.realtime,
		manual:    f.manual,
		startErr:  f.StartErr,
		audioDone: make(chan struct{}),
	}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

// Last returns the most recently created capture, or nil.
func (f *FakeContext) Last() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	manual    bool
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	stopped  bool
	closed   bool
	stopCh   chan struct{}
	feedDone chan struct{}
}

func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Stopped reports whether Stop has been called since Start.
func (f *FakeCapture) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Emit delivers float samples to the current callback synchronously.
func (f *FakeCapture) Emit(samples []float32) {
	f.mu.Lock()
	cb := f.cb
	live := f.started && !f.stopped
	f.mu.Unlock()
	if cb != nil && live {
		cb(samples)
	}
}

func pcmToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

func (f *FakeCapture) feedChunk(pos int) int {
	chunkBytes := fakeFrameSize * 2
	end := min(pos+chunkBytes, len(f.pcm))
	f.Emit(pcmToFloat(f.pcm[pos:end]))
	return end
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.started = true
	f.stopped = false
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stopCh, feedDone := f.stopCh, f.feedDone
	f.mu.Unlock()

	if f.manual {
		close(feedDone)
		return nil
	}

	interval := time.Duration(fakeFrameSize) * time.Second / time.Duration(encoder.SampleRate)
	if !f.realtime {
		interval = time.Millisecond
	}
	go func() {
		defer close(feedDone)
		pos := 0
		silence := make([]float32, fakeFrameSize)
		audioFinished := false
		for {
			select {
			case <-stopCh:
				return
			default:
			}
			if pos < len(f.pcm) {
				pos = f.feedChunk(pos)
			} else {
				if !audioFinished {
					audioFinished = true
					close(f.audioDone)
				}
				f.Emit(silence)
			}
			select {
			case <-stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	if !f.started || f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	close(f.stopCh)
	feedDone := f.feedDone
	f.mu.Unlock()
	<-feedDone
}

func (f *FakeCapture) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
