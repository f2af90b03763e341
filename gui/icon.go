// Package gui is the desktop front end, built with -tags gui.
package gui

import (
	"bytes"
	"image/color"

	"github.com/fogleman/gg"
)

const iconSize = 22

var (
	iconRing   = color.NRGBA{R: 59, G: 130, B: 246, A: 255}
	iconActive = color.NRGBA{R: 34, G: 197, B: 94, A: 255}
)

// TrayIcon draws the tray icon as PNG: a blue ring, with a filled green
// centre while listening.
func TrayIcon(active bool) ([]byte, error) {
	dc := gg.NewContext(iconSize, iconSize)
	c := float64(iconSize) / 2

	dc.SetColor(iconRing)
	dc.SetLineWidth(2.5)
	dc.DrawCircle(c, c, c-2)
	dc.Stroke()

	if active {
		dc.SetColor(iconActive)
		dc.DrawCircle(c, c, c/2.5)
		dc.Fill()
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
