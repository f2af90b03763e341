package hotkey

import (
	"encoding/binary"
	"testing"
)

type keyEvent struct {
	code  uint16
	value int32
}

func TestChordFeed(t *testing.T) {
	tests := []struct {
		name      string
		events    []keyEvent
		downs     int
		ups       int
		spaceHeld bool
	}{
		{
			name:   "full chord press and release",
			events: []keyEvent{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 0}},
			downs:  1,
			ups:    1,
		},
		{
			name:      "right modifiers",
			events:    []keyEvent{{keyRCtrl, 1}, {keyRShift, 1}, {keySpace, 1}},
			downs:     1,
			spaceHeld: true,
		},
		{
			name:   "space without shift",
			events: []keyEvent{{keyLCtrl, 1}, {keySpace, 1}, {keySpace, 0}},
		},
		{
			name:      "autorepeat does not retrigger",
			events:    []keyEvent{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keySpace, 2}, {keySpace, 2}},
			downs:     1,
			spaceHeld: true,
		},
		{
			name:   "modifier released before space",
			events: []keyEvent{{keyLCtrl, 1}, {keyLShift, 1}, {keyLShift, 0}, {keySpace, 1}},
		},
		{
			name:   "release after modifiers let go",
			events: []keyEvent{{keyLCtrl, 1}, {keyLShift, 1}, {keySpace, 1}, {keyLCtrl, 0}, {keySpace, 0}},
			downs:  1,
			ups:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c chord
			var downs, ups int
			for _, ev := range tt.events {
				d, u := c.feed(ev.code, ev.value)
				if d {
					downs++
				}
				if u {
					ups++
				}
			}
			if downs != tt.downs || ups != tt.ups {
				t.Errorf("downs=%d ups=%d, want %d/%d", downs, ups, tt.downs, tt.ups)
			}
			if c.space != tt.spaceHeld {
				t.Errorf("space held = %v, want %v", c.space, tt.spaceHeld)
			}
		})
	}
}

func encodeEvents(events ...keyEvent) []byte {
	buf := make([]byte, 0, len(events)*inputEventSize)
	for _, ev := range events {
		rec := make([]byte, inputEventSize)
		binary.LittleEndian.PutUint16(rec[16:], evKey)
		binary.LittleEndian.PutUint16(rec[18:], ev.code)
		binary.LittleEndian.PutUint32(rec[20:], uint32(ev.value))
		buf = append(buf, rec...)
	}
	// a trailing sync event
	return append(buf, make([]byte, inputEventSize)...)
}

func TestChordDecode(t *testing.T) {
	buf := encodeEvents(keyEvent{keyLCtrl, 1}, keyEvent{keyLShift, 1}, keyEvent{keySpace, 1}, keyEvent{keySpace, 0})
	var c chord
	var got []string
	c.decode(buf, func() { got = append(got, "down") }, func() { got = append(got, "up") })
	if len(got) != 2 || got[0] != "down" || got[1] != "up" {
		t.Errorf("decode emitted %v", got)
	}

	// a partial record is ignored
	got = nil
	c.decode(buf[:inputEventSize-1], func() { got = append(got, "down") }, func() {})
	if len(got) != 0 {
		t.Errorf("partial record emitted %v", got)
	}
}
