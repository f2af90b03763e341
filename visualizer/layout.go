// Package visualizer paints the radial spectrum: bars arranged around a
// circle, one per low-to-mid frequency bin, over a fading trail.
package visualizer

import (
	"math"

	"halo/analyzer"
)

const (
	barCoverage    = 0.75 // high bins are mostly empty; draw only the lower 3/4
	radiusDivisor  = 3.5
	minBarLength   = 4
	barLengthScale = 0.8
	ringScale      = 0.9
	hueStart       = 240
	hueSpan        = 180

	barWidth      = 4
	barCorner     = 2
	reflectOffset = 10
	reflectScale  = 0.2
)

// Bar is one spoke of the radial graph, in surface coordinates relative to
// the center.
type Bar struct {
	Index  int
	Value  uint8
	Angle  float64 // radians
	Length float64
	Hue    float64 // degrees, 240..420 before wrapping
}

// Frame is the geometry of one rendered frame.
type Frame struct {
	Width, Height    int
	CenterX, CenterY float64
	Radius           float64
	RingRadius       float64
	Bars             []Bar
}

// BarCount is the number of bars drawn for a snapshot of n bins.
func BarCount(n int) int {
	return int(math.Floor(float64(n) * barCoverage))
}

// Layout computes bar geometry for a width x height surface.
func Layout(snap analyzer.Snapshot, width, height int) Frame {
	f := Frame{
		Width:   width,
		Height:  height,
		CenterX: float64(width) / 2,
		CenterY: float64(height) / 2,
		Radius:  float64(min(width, height)) / radiusDivisor,
	}
	f.RingRadius = f.Radius * ringScale

	count := BarCount(len(snap))
	if count == 0 {
		return f
	}
	step := 2 * math.Pi / float64(count)
	f.Bars = make([]Bar, count)
	for i := range f.Bars {
		v := snap[i]
		f.Bars[i] = Bar{
			Index:  i,
			Value:  v,
			Angle:  float64(i) * step,
			Length: math.Max(minBarLength, float64(v)/255*(f.Radius*barLengthScale)),
			Hue:    hueStart + float64(i)/float64(count)*hueSpan,
		}
	}
	return f
}
