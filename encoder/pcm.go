package encoder

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodePCM converts float samples to 16-bit little-endian PCM. Samples
// outside [-1, 1] are clamped.
func EncodePCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Encode produces the wire frame for one capture block.
func Encode(samples []float32) Frame {
	return Frame{
		Data:     base64.StdEncoding.EncodeToString(EncodePCM(samples)),
		MimeType: MimeType,
	}
}

// Decode reverses Encode.
func Decode(f Frame) ([]int16, error) {
	if f.MimeType != MimeType {
		return nil, fmt.Errorf("unexpected mime type %q", f.MimeType)
	}
	raw, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("odd PCM length %d", len(raw))
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out, nil
}

// Blocker regroups capture callbacks of any size into fixed-size blocks.
// Not safe for concurrent use.
type Blocker struct {
	size int
	buf  []float32
}

func NewBlocker(size int) *Blocker {
	if size <= 0 {
		size = BlockSize
	}
	return &Blocker{size: size, buf: make([]float32, 0, size)}
}

// Push appends samples and calls emit once per completed block. The slice
// passed to emit is owned by the callee.
func (b *Blocker) Push(samples []float32, emit func(block []float32)) {
	for len(samples) > 0 {
		n := min(b.size-len(b.buf), len(samples))
		b.buf = append(b.buf, samples[:n]...)
		samples = samples[n:]
		if len(b.buf) == b.size {
			block := make([]float32, b.size)
			copy(block, b.buf)
			b.buf = b.buf[:0]
			emit(block)
		}
	}
}

// Pending reports the number of buffered samples not yet emitted.
func (b *Blocker) Pending() int { return len(b.buf) }

// Flush drops any partial block.
func (b *Blocker) Flush() { b.buf = b.buf[:0] }
