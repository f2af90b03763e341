//go:build gui

package main

import (
	"context"

	"halo/gui"
	"halo/visualizer"
)

func runGUI(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	win := gui.NewApp(ctx, a.deviceLine())
	surface := visualizer.NewSurface(win.Spectrum.PixelSize)
	ctrl := a.newController(ctx, surface, win.Spectrum.OnFrame)
	defer ctrl.Close()
	stop := startShortcut(ctx, ctrl, nil)
	defer stop()

	return win.Run(ctrl, a.manager)
}
