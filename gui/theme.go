//go:build gui

package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

var (
	// matches the visualizer's trail so the surface edge disappears
	backgroundColor  = color.NRGBA{R: 9, G: 9, B: 11, A: 255}
	placeholderColor = color.NRGBA{R: 113, G: 113, B: 122, A: 255}
	transcriptColor  = color.NRGBA{R: 96, G: 165, B: 250, A: 255}
)

type darkTheme struct{}

func (d *darkTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return backgroundColor
	case theme.ColorNameForeground:
		return color.NRGBA{R: 212, G: 212, B: 216, A: 255}
	case theme.ColorNamePrimary:
		return transcriptColor
	}
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}

func (d *darkTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (d *darkTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (d *darkTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
