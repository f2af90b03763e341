// Package voice warns when a live session hears no speech.
package voice

import "time"

const (
	TickInterval     = 100 * time.Millisecond
	warnAfter        = 8 * time.Second
	speechMinRatio   = 0.10
	speechClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type Event int

const (
	EventNone   Event = iota
	EventWarn         // no voice detected
	EventClear        // speech resumed after warning
	EventRepeat       // still silent, remind again
)

func (e Event) String() string {
	switch e {
	case EventWarn:
		return "warn"
	case EventClear:
		return "clear"
	case EventRepeat:
		return "repeat"
	}
	return "none"
}

// Monitor turns per-tick speech flags into warning events over a sliding
// window of warnAfter.
type Monitor struct {
	window   []bool
	ticks    int
	warned   bool
	lastWarn int
}

func NewMonitor() *Monitor {
	return &Monitor{window: make([]bool, int(warnAfter/TickInterval))}
}

// ratio is the share of speech ticks in the window, or of every tick seen
// so far while the window is still filling.
func (m *Monitor) ratio() float64 {
	n := min(m.ticks, len(m.window))
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+len(m.window))%len(m.window)] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *Monitor) Tick(hasSpeech bool) Event {
	m.window[m.ticks%len(m.window)] = hasSpeech
	m.ticks++

	full := m.ticks >= len(m.window)
	r := m.ratio()
	switch {
	case full && r < speechMinRatio && !m.warned:
		m.warned = true
		m.lastWarn = m.ticks
		return EventWarn
	case m.warned && r >= speechClearRatio:
		m.warned = false
		return EventClear
	case m.warned && m.ticks-m.lastWarn >= len(m.window):
		m.lastWarn = m.ticks
		return EventRepeat
	}
	return EventNone
}

func (m *Monitor) Warned() bool { return m.warned }
