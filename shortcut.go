package main

import (
	"context"
	"sync"

	"halo/hotkey"
	"halo/log"
	"halo/session"
)

// shortcutDriver applies global shortcut actions to a controller. A hold
// only stops a session it started itself.
type shortcutDriver struct {
	ctrl    *session.Controller
	onErr   func(error)
	holding bool
}

func (d *shortcutDriver) apply(ctx context.Context, a hotkey.Action) {
	var err error
	switch a {
	case hotkey.ActionToggle:
		d.holding = false
		err = d.ctrl.Toggle(ctx)
	case hotkey.ActionHoldStart:
		if d.ctrl.Active() {
			return
		}
		d.holding = true
		err = d.ctrl.Activate(ctx)
	case hotkey.ActionHoldEnd:
		if d.holding {
			d.holding = false
			d.ctrl.Deactivate()
		}
	}
	if err != nil {
		d.holding = false
		log.Warnf("shortcut %s: %v", a, err)
		if d.onErr != nil {
			d.onErr(err)
		}
	}
}

// startShortcut registers the global shortcut when --hotkey is set. A
// shortcut that cannot be registered only costs a warning.
func startShortcut(ctx context.Context, ctrl *session.Controller, onErr func(error)) (stop func()) {
	if !opts.hotkey {
		return func() {}
	}
	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Warnf("global shortcut %s unavailable: %v", hotkey.Binding, err)
		return func() {}
	}
	log.Infof("global shortcut %s registered", hotkey.Binding)
	return runShortcut(ctx, hk, ctrl, onErr)
}

func runShortcut(ctx context.Context, hk hotkey.Hotkey, ctrl *session.Controller, onErr func(error)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	tr := hotkey.NewTrigger(hk, hotkey.DefaultLongPress)
	d := &shortcutDriver{ctrl: ctrl, onErr: onErr}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tr.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-tr.Actions():
				d.apply(ctx, a)
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
		hk.Unregister()
	}
}
