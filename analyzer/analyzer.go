// Package analyzer turns a live audio stream into byte-scaled frequency
// snapshots for the visualizer.
package analyzer

import (
	"errors"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"halo/audio"
)

const (
	FFTSize  = 512
	BinCount = FFTSize / 2

	SmoothingTimeConstant = 0.8
	MinDecibels           = -100.0
	MaxDecibels           = -30.0
)

var ErrUnavailable = errors.New("analyzer: stream has no audio track")

// Snapshot holds one magnitude per frequency bin, scaled to 0..255.
type Snapshot []uint8

// Analyzer keeps the most recent FFTSize samples of a stream and derives
// a smoothed spectrum from them on demand.
type Analyzer struct {
	mu       sync.Mutex
	tap      *audio.Tap
	ring     [FFTSize]float64
	pos      int
	window   []float64
	frame    []float64
	coeffs   []complex128
	smoothed []float64
	fft      *fourier.FFT
	detached bool
}

// Attach taps stream and starts buffering its samples.
func Attach(stream *audio.Stream) (*Analyzer, error) {
	if !stream.HasAudio() {
		return nil, ErrUnavailable
	}
	a := newAnalyzer()
	a.tap = stream.Tap(a.write)
	return a, nil
}

func newAnalyzer() *Analyzer {
	ones := make([]float64, FFTSize)
	for i := range ones {
		ones[i] = 1
	}
	return &Analyzer{
		window:   window.Blackman(ones),
		frame:    make([]float64, FFTSize),
		coeffs:   make([]complex128, FFTSize/2+1),
		smoothed: make([]float64, BinCount),
		fft:      fourier.NewFFT(FFTSize),
	}
}

func (a *Analyzer) write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detached {
		return
	}
	// only the tail can survive in the window
	if len(samples) > FFTSize {
		samples = samples[len(samples)-FFTSize:]
	}
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % FFTSize
	}
}

// Snapshot analyzes the current window. It never waits for new audio;
// calling it faster than audio arrives returns the same window again.
func (a *Analyzer) Snapshot() Snapshot {
	out := make(Snapshot, BinCount)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detached {
		return out
	}

	for i := range a.frame {
		a.frame[i] = a.ring[(a.pos+i)%FFTSize] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	for k := range out {
		mag := cmplx.Abs(a.coeffs[k]) / FFTSize
		a.smoothed[k] = SmoothingTimeConstant*a.smoothed[k] + (1-SmoothingTimeConstant)*mag
		out[k] = scaleDecibels(a.smoothed[k])
	}
	return out
}

// scaleDecibels maps a linear magnitude onto 0..255 across
// [MinDecibels, MaxDecibels].
func scaleDecibels(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - MinDecibels) / (MaxDecibels - MinDecibels)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

// Detach disconnects from the stream and drops analysis state. Idempotent.
func (a *Analyzer) Detach() {
	a.mu.Lock()
	tap := a.tap
	a.tap = nil
	a.detached = true
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
	a.mu.Unlock()
	tap.Disconnect()
}
