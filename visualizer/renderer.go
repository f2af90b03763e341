package visualizer

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"
	colorful "github.com/lucasb-eyer/go-colorful"

	"halo/analyzer"
	"halo/metrics"
)

var (
	trailColor = color.NRGBA{R: 9, G: 9, B: 11, A: 51}     // rgba(9, 9, 11, 0.2)
	ringColor  = color.NRGBA{R: 59, G: 130, B: 246, A: 26} // rgba(59, 130, 246, 0.1)
)

const ringWidth = 2

// SizeFunc reports the current size of the container a surface fills.
type SizeFunc func() (width, height int)

// Surface is the drawing target. It follows its container's size and keeps
// the previous frame between renders so the trail can fade.
type Surface struct {
	mu   sync.Mutex
	img  *image.RGBA
	size SizeFunc
}

func NewSurface(size SizeFunc) *Surface {
	return &Surface{size: size, img: image.NewRGBA(image.Rect(0, 0, 0, 0))}
}

// resizeLocked reallocates the backing image when the container changed.
// A resize clears the surface.
func (s *Surface) resizeLocked() bool {
	w, h := s.size()
	w, h = max(w, 0), max(h, 0)
	b := s.img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return false
	}
	s.img = image.NewRGBA(image.Rect(0, 0, w, h))
	return true
}

// Size returns the dimensions of the last rendered frame.
func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// View calls fn with the current image while holding the surface lock.
// fn must not retain img.
func (s *Surface) View(fn func(img *image.RGBA)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.img)
}

// Renderer paints snapshots onto a Surface.
type Renderer struct{}

func barColor(hue, alpha float64) color.NRGBA {
	r, g, b := colorful.Hsl(math.Mod(hue, 360), 0.8, 0.6).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(alpha * 255))}
}

// RenderFrame draws one frame and returns its geometry.
func (r *Renderer) RenderFrame(s *Surface, snap analyzer.Snapshot) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resizeLocked()
	b := s.img.Bounds()
	f := Layout(snap, b.Dx(), b.Dy())
	if b.Empty() {
		return f
	}

	dc := gg.NewContextForRGBA(s.img)

	dc.SetColor(trailColor)
	dc.DrawRectangle(0, 0, float64(f.Width), float64(f.Height))
	dc.Fill()

	for _, bar := range f.Bars {
		dc.Push()
		dc.Translate(f.CenterX, f.CenterY)
		dc.Rotate(bar.Angle)

		dc.SetColor(barColor(bar.Hue, 0.9))
		dc.DrawRoundedRectangle(-barWidth/2, f.Radius, barWidth, bar.Length, barCorner)
		dc.Fill()

		dc.SetColor(barColor(bar.Hue, 0.2))
		dc.DrawRectangle(-1, f.Radius-reflectOffset, 2, -bar.Length*reflectScale)
		dc.Fill()

		dc.Pop()
	}

	dc.SetColor(ringColor)
	dc.SetLineWidth(ringWidth)
	dc.DrawCircle(f.CenterX, f.CenterY, f.RingRadius)
	dc.Stroke()

	metrics.RenderedFrames.Inc()
	return f
}
