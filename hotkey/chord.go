package hotkey

import "encoding/binary"

// Linux input-event constants, see linux/input-event-codes.h.
const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyLCtrl   = 29
	keyRCtrl   = 97
	keyLShift  = 42
	keyRShift  = 54
	keySpace   = 57
)

const inputEventSize = 24

// chord tracks Ctrl+Shift+Space across raw key events. Autorepeat events
// (value 2) leave the state unchanged.
type chord struct {
	ctrl, shift, space bool
}

// feed applies one key event and reports whether it completed (down) or
// released (up) the chord.
func (c *chord) feed(code uint16, value int32) (down, up bool) {
	pressed := value == keyPress
	released := value == keyRelease
	switch code {
	case keyLCtrl, keyRCtrl:
		c.ctrl = pressed || (!released && c.ctrl)
	case keyLShift, keyRShift:
		c.shift = pressed || (!released && c.shift)
	case keySpace:
		if pressed && !c.space && c.ctrl && c.shift {
			c.space = true
			return true, false
		}
		if released && c.space {
			c.space = false
			return false, true
		}
	}
	return false, false
}

// decode walks a buffer of struct input_event records (64-bit layout).
func (c *chord) decode(buf []byte, onDown, onUp func()) {
	for i := 0; i+inputEventSize <= len(buf); i += inputEventSize {
		evType := binary.LittleEndian.Uint16(buf[i+16:])
		if evType != evKey {
			continue
		}
		code := binary.LittleEndian.Uint16(buf[i+18:])
		value := int32(binary.LittleEndian.Uint32(buf[i+20:]))
		down, up := c.feed(code, value)
		if down {
			onDown()
		}
		if up {
			onUp()
		}
	}
}
