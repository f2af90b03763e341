// Package clipboard copies the transcript to the system clipboard.
package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

var (
	ErrEmpty       = errors.New("nothing to copy")
	ErrUnsupported = errors.New("no clipboard utility available")
)

// Available reports whether a clipboard backend was found (xclip, xsel,
// wl-copy, pbcopy or the Windows API).
func Available() bool { return !cb.Unsupported }

// Copy writes text to the clipboard. Whitespace-only text is rejected.
func Copy(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	if !Available() {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}

func Read() (string, error) {
	if !Available() {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}
