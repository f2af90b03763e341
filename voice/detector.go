package voice

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"halo/audio"
	"halo/log"
)

var ErrUnavailable = errors.New("voice: stream has no audio track")

// Detector watches a stream for speech and raises warnings through the
// callback while it hears none.
type Detector struct {
	tap     *audio.Tap
	onEvent func(Event)

	mu      sync.Mutex
	gate    gate
	monitor *Monitor

	noVoice atomic.Bool
	running bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Attach starts watching stream. onEvent may be nil; it runs on the
// detector's goroutine.
func Attach(stream *audio.Stream, onEvent func(Event)) (*Detector, error) {
	d, err := attach(stream, onEvent)
	if err != nil {
		return nil, err
	}
	d.running = true
	go d.run(TickInterval)
	return d, nil
}

func attach(stream *audio.Stream, onEvent func(Event)) (*Detector, error) {
	if !stream.HasAudio() {
		return nil, ErrUnavailable
	}
	d := &Detector{
		onEvent: onEvent,
		monitor: NewMonitor(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	d.tap = stream.Tap(d.write)
	return d, nil
}

func (d *Detector) write(samples []float32) {
	d.mu.Lock()
	d.gate.process(samples)
	d.mu.Unlock()
}

func (d *Detector) run(interval time.Duration) {
	defer close(d.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Detector) tick() Event {
	d.mu.Lock()
	ev := d.monitor.Tick(d.gate.hasSpeechTick())
	d.mu.Unlock()

	switch ev {
	case EventNone:
		return ev
	case EventWarn:
		d.noVoice.Store(true)
		log.Info("no_voice_warning")
	case EventClear:
		d.noVoice.Store(false)
		log.Info("voice_resumed")
	case EventRepeat:
		log.Info("silence_during_warning")
	}
	if d.onEvent != nil {
		d.onEvent(ev)
	}
	return ev
}

// NoVoice reports whether the warning is currently raised.
func (d *Detector) NoVoice() bool {
	if d == nil {
		return false
	}
	return d.noVoice.Load()
}

// Detach disconnects from the stream and stops ticking. Idempotent.
func (d *Detector) Detach() {
	d.once.Do(func() {
		d.tap.Disconnect()
		close(d.stop)
		if d.running {
			<-d.done
		}
	})
}
