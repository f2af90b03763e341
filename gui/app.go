//go:build gui

package gui

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"halo/clipboard"
	"halo/log"
	"halo/session"
	"halo/transcriber"
)

const refreshInterval = 100 * time.Millisecond

// App is the desktop window: spectrum on the left, transcript on the right.
type App struct {
	Spectrum *SpectrumWidget

	ctx     context.Context
	ctrl    *session.Controller
	manager *transcriber.Manager
	device  string

	fyneApp    fyne.App
	window     fyne.Window
	status     *widget.Label
	transcript *widget.Label
	listen     *widget.Button
	trayActive bool
}

func NewApp(ctx context.Context, device string) *App {
	return &App{Spectrum: NewSpectrumWidget(), ctx: ctx, device: device}
}

// Run shows the window and blocks until it is closed. It must be called
// from the main goroutine.
func (a *App) Run(ctrl *session.Controller, manager *transcriber.Manager) error {
	a.ctrl = ctrl
	a.manager = manager

	a.fyneApp = app.NewWithID("io.halo.gui")
	a.fyneApp.Settings().SetTheme(&darkTheme{})
	a.window = a.fyneApp.NewWindow("halo")

	a.status = widget.NewLabel("")
	a.transcript = widget.NewLabel("")
	a.transcript.Wrapping = fyne.TextWrapWord
	a.transcript.Importance = widget.HighImportance
	a.listen = widget.NewButton("Listen", a.toggle)
	copyBtn := widget.NewButton("Copy", a.copyTranscript)
	clearBtn := widget.NewButton("Clear", func() {
		a.manager.Buffer().Reset()
		a.refresh()
	})

	right := container.NewBorder(
		container.NewVBox(a.status, widget.NewLabel(a.device)),
		container.NewHBox(a.listen, copyBtn, clearBtn),
		nil, nil,
		container.NewVScroll(a.transcript),
	)
	split := container.NewHSplit(a.Spectrum, right)
	split.Offset = 0.55
	a.window.SetContent(split)
	a.window.Resize(fyne.NewSize(900, 520))

	a.window.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeySpace {
			a.toggle()
		}
	})
	a.setupTray()

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()
	go a.refreshLoop(ctx)
	go func() {
		<-ctx.Done()
		fyne.Do(a.fyneApp.Quit)
	}()

	a.refresh()
	a.window.ShowAndRun()
	return nil
}

func (a *App) setupTray() {
	desk, ok := a.fyneApp.(desktop.App)
	if !ok {
		return
	}
	menu := fyne.NewMenu("halo",
		fyne.NewMenuItem("Toggle listening", a.toggle),
		fyne.NewMenuItem("Show", a.window.Show),
	)
	desk.SetSystemTrayMenu(menu)
	a.setTrayIcon(false)
}

func (a *App) setTrayIcon(active bool) {
	desk, ok := a.fyneApp.(desktop.App)
	if !ok {
		return
	}
	data, err := TrayIcon(active)
	if err != nil {
		log.Warnf("tray icon: %v", err)
		return
	}
	desk.SetSystemTrayIcon(fyne.NewStaticResource("halo.png", data))
	a.trayActive = active
}

// toggle runs the controller off the UI thread; deactivation waits for the
// render loop, which schedules UI work of its own.
func (a *App) toggle() {
	go func() {
		err := a.ctrl.Toggle(a.ctx)
		if err == nil {
			return
		}
		log.Warnf("toggle: %v", err)
		if session.IsUserFacing(err) {
			fyne.Do(func() { dialog.ShowError(err, a.window) })
		}
	}()
}

func (a *App) copyTranscript() {
	if err := clipboard.Copy(a.manager.Buffer().String()); err != nil {
		dialog.ShowError(err, a.window)
	}
}

func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fyne.Do(a.refresh)
		}
	}
}

// refresh runs on the UI thread.
func (a *App) refresh() {
	st := a.ctrl.Status()
	status := statusText(st)
	if st.Active && st.NoVoice {
		status += "  (no voice detected)"
	}
	a.status.SetText(status)
	if st.Active {
		a.listen.SetText("Stop")
	} else {
		a.listen.SetText("Listen")
		a.Spectrum.Clear()
	}
	if st.Active != a.trayActive {
		a.setTrayIcon(st.Active)
	}

	text := a.manager.Buffer().String()
	if text == "" {
		text = "Nothing transcribed yet"
	}
	if a.transcript.Text != text {
		a.transcript.SetText(text)
	}
}

func statusText(st session.Status) string {
	switch st.State {
	case transcriber.StateConnecting:
		return "Connecting..."
	case transcriber.StateConnected:
		return fmt.Sprintf("Live %.0fs", time.Since(st.Since).Seconds())
	case transcriber.StateError:
		if st.Err != nil {
			return "Error: " + st.Err.Error()
		}
		return "Error"
	}
	return "Idle"
}
