// Package hotkey provides the global Ctrl+Shift+Space shortcut.
package hotkey

// Binding names the shortcut for help text.
const Binding = "Ctrl+Shift+Space"

// Hotkey delivers press and release of the global shortcut.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
