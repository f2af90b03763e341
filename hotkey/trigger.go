package hotkey

import (
	"context"
	"time"
)

// DefaultLongPress separates a tap from a hold.
const DefaultLongPress = 350 * time.Millisecond

type Action int

const (
	// ActionToggle follows a tap.
	ActionToggle Action = iota
	// ActionHoldStart fires once a press outlasts the long-press threshold.
	ActionHoldStart
	// ActionHoldEnd follows the release of a hold.
	ActionHoldEnd
)

func (a Action) String() string {
	switch a {
	case ActionToggle:
		return "toggle"
	case ActionHoldStart:
		return "hold_start"
	case ActionHoldEnd:
		return "hold_end"
	}
	return "unknown"
}

// Trigger turns shortcut presses into actions: a tap toggles listening, a
// hold listens until release.
type Trigger struct {
	hk        Hotkey
	longPress time.Duration
	actions   chan Action
}

func NewTrigger(hk Hotkey, longPress time.Duration) *Trigger {
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	return &Trigger{hk: hk, longPress: longPress, actions: make(chan Action, 4)}
}

func (t *Trigger) Actions() <-chan Action { return t.actions }

// Run reads the hotkey until ctx is done.
func (t *Trigger) Run(ctx context.Context) {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
		down   bool
		held   bool
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.hk.Keydown():
			if down {
				continue
			}
			down, held = true, false
			timer = time.NewTimer(t.longPress)
			timerC = timer.C
		case <-timerC:
			timer, timerC = nil, nil
			if down {
				held = true
				t.emit(ctx, ActionHoldStart)
			}
		case <-t.hk.Keyup():
			if !down {
				continue
			}
			down = false
			stopTimer()
			if held {
				t.emit(ctx, ActionHoldEnd)
			} else {
				t.emit(ctx, ActionToggle)
			}
		}
	}
}

func (t *Trigger) emit(ctx context.Context, a Action) {
	select {
	case t.actions <- a:
	case <-ctx.Done():
	}
}
