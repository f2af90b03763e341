package analyzer

import (
	"context"
	"errors"
	"math"
	"testing"

	"halo/audio"
)

func manualStream(t *testing.T) (*audio.Stream, *audio.FakeCapture) {
	t.Helper()
	ctx := audio.NewManualContext()
	s, err := audio.NewSource(ctx, nil).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, ctx.Last()
}

func tone(freq float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.9 * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

func TestAttachRequiresAudio(t *testing.T) {
	s, _ := manualStream(t)
	s.Stop()
	if _, err := Attach(s); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Attach on stopped stream = %v, want ErrUnavailable", err)
	}
	if _, err := Attach(nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Attach(nil) = %v, want ErrUnavailable", err)
	}
}

func TestSnapshotFixedLength(t *testing.T) {
	s, capture := manualStream(t)
	a, err := Attach(s)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Detach()

	for _, n := range []int{0, 10, FFTSize, 4096} {
		capture.Emit(tone(1000, n))
		if got := len(a.Snapshot()); got != BinCount {
			t.Fatalf("after %d samples: len = %d, want %d", n, got, BinCount)
		}
	}
}

func TestSnapshotSilenceIsZero(t *testing.T) {
	s, capture := manualStream(t)
	a, _ := Attach(s)
	defer a.Detach()

	capture.Emit(make([]float32, FFTSize))
	for k, v := range a.Snapshot() {
		if v != 0 {
			t.Fatalf("bin %d = %d on silence", k, v)
		}
	}
}

func TestSnapshotPeaksAtToneBin(t *testing.T) {
	s, capture := manualStream(t)
	a, _ := Attach(s)
	defer a.Detach()

	// bin width is 16000/512 = 31.25 Hz; 2000 Hz lands on bin 64
	var snap Snapshot
	for range 20 {
		capture.Emit(tone(2000, FFTSize))
		snap = a.Snapshot()
	}
	peak := 0
	for k := range snap {
		if snap[k] > snap[peak] {
			peak = k
		}
	}
	if peak < 63 || peak > 65 {
		t.Errorf("peak bin = %d, want ~64", peak)
	}
	if snap[peak] < 200 {
		t.Errorf("peak magnitude = %d, want a strong bin", snap[peak])
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	s, capture := manualStream(t)
	a, _ := Attach(s)
	a.Detach()
	a.Detach()
	if s.TapCount() != 0 {
		t.Errorf("TapCount() = %d after Detach", s.TapCount())
	}
	capture.Emit(tone(1000, FFTSize))
	for _, v := range a.Snapshot() {
		if v != 0 {
			t.Fatal("detached analyzer produced data")
		}
	}
}

func TestScaleDecibels(t *testing.T) {
	for _, tt := range []struct {
		mag  float64
		want uint8
	}{
		{0, 0},
		{1e-6, 0},                     // -120 dB
		{1e-5, 0},                     // -100 dB
		{1, 255},                      // 0 dB
		{math.Pow(10, -65.0/20), 127}, // midpoint
	} {
		if got := scaleDecibels(tt.mag); got != tt.want {
			t.Errorf("scaleDecibels(%g) = %d, want %d", tt.mag, got, tt.want)
		}
	}
}
