//go:build gui

package gui

import (
	"image"
	"image/draw"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"halo/visualizer"
)

const minSpectrumSize = 240

// SpectrumWidget shows the visualizer surface and reports its own size
// back as the surface's container.
type SpectrumWidget struct {
	widget.BaseWidget

	mu     sync.Mutex
	width  int
	height int
	frame  *image.RGBA
}

func NewSpectrumWidget() *SpectrumWidget {
	s := &SpectrumWidget{}
	s.ExtendBaseWidget(s)
	return s
}

// PixelSize is a visualizer.SizeFunc. It is safe to call from the render loop.
func (s *SpectrumWidget) PixelSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *SpectrumWidget) setPixelSize(w, h int) {
	s.mu.Lock()
	s.width, s.height = w, h
	s.mu.Unlock()
}

// OnFrame copies the rendered surface and schedules a repaint. It never
// waits for the UI thread.
func (s *SpectrumWidget) OnFrame(surface *visualizer.Surface) {
	var frame *image.RGBA
	surface.View(func(img *image.RGBA) {
		frame = image.NewRGBA(img.Bounds())
		draw.Draw(frame, frame.Bounds(), img, img.Bounds().Min, draw.Src)
	})
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
	fyne.Do(s.Refresh)
}

// Clear drops the last frame so the placeholder shows again.
func (s *SpectrumWidget) Clear() {
	s.mu.Lock()
	had := s.frame != nil
	s.frame = nil
	s.mu.Unlock()
	if had {
		fyne.Do(s.Refresh)
	}
}

func (s *SpectrumWidget) MinSize() fyne.Size {
	return fyne.NewSize(minSpectrumSize, minSpectrumSize)
}

func (s *SpectrumWidget) CreateRenderer() fyne.WidgetRenderer {
	img := canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	img.FillMode = canvas.ImageFillStretch
	img.ScaleMode = canvas.ImageScaleFastest
	placeholder := canvas.NewText("Waiting for audio stream...", placeholderColor)
	placeholder.Alignment = fyne.TextAlignCenter
	return &spectrumRenderer{spectrum: s, image: img, placeholder: placeholder}
}

type spectrumRenderer struct {
	spectrum    *SpectrumWidget
	image       *canvas.Image
	placeholder *canvas.Text
}

func (r *spectrumRenderer) Layout(size fyne.Size) {
	r.image.Move(fyne.NewPos(0, 0))
	r.image.Resize(size)
	ph := r.placeholder.MinSize()
	r.placeholder.Move(fyne.NewPos(0, (size.Height-ph.Height)/2))
	r.placeholder.Resize(fyne.NewSize(size.Width, ph.Height))

	scale := float32(1)
	if c := fyne.CurrentApp().Driver().CanvasForObject(r.spectrum); c != nil {
		scale = c.Scale()
	}
	r.spectrum.setPixelSize(int(size.Width*scale), int(size.Height*scale))
}

func (r *spectrumRenderer) MinSize() fyne.Size {
	return r.spectrum.MinSize()
}

func (r *spectrumRenderer) Refresh() {
	r.spectrum.mu.Lock()
	frame := r.spectrum.frame
	r.spectrum.mu.Unlock()

	if frame == nil {
		r.image.Hide()
		r.placeholder.Show()
		return
	}
	r.placeholder.Hide()
	r.image.Image = frame
	r.image.Show()
	r.image.Refresh()
}

func (r *spectrumRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.image, r.placeholder}
}

func (r *spectrumRenderer) Destroy() {}
