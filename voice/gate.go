package voice

import (
	"math"

	"halo/encoder"
)

const (
	gateFrameMs      = 20
	gateFrameSamples = encoder.SampleRate * gateFrameMs / 1000
	speechRMS        = 0.01 // about -40 dBFS
	speechThreshold  = 0.10 // share of frames in a tick that must be speech
)

// gate classifies fixed 20ms frames by energy and counts the speech ones.
type gate struct {
	buf          []float32
	totalFrames  int
	speechFrames int
	tickTotal    int
	tickSpeech   int
}

func (g *gate) process(samples []float32) {
	g.buf = append(g.buf, samples...)
	for len(g.buf) >= gateFrameSamples {
		frame := g.buf[:gateFrameSamples]
		g.totalFrames++
		if rms(frame) >= speechRMS {
			g.speechFrames++
		}
		g.buf = g.buf[gateFrameSamples:]
	}
	// keep the backing array from growing without bound
	if cap(g.buf) > 4*gateFrameSamples {
		g.buf = append([]float32(nil), g.buf...)
	}
}

// hasSpeechTick reports whether enough frames since the previous call were
// speech.
func (g *gate) hasSpeechTick() bool {
	t := g.totalFrames - g.tickTotal
	s := g.speechFrames - g.tickSpeech
	g.tickTotal, g.tickSpeech = g.totalFrames, g.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= speechThreshold
}

func rms(frame []float32) float64 {
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
