package transcriber

import (
	"strings"
	"sync"
)

// Buffer accumulates transcript fragments in arrival order. Fragments are
// concatenated verbatim; the service supplies its own spacing.
type Buffer struct {
	mu sync.RWMutex
	sb strings.Builder
}

// Append adds fragment and returns the full text. Empty fragments are
// ignored.
func (b *Buffer) Append(fragment string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fragment == "" {
		return b.sb.String()
	}
	b.sb.WriteString(fragment)
	return b.sb.String()
}

func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sb.String()
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sb.Len()
}

// Reset clears the transcript. Only the UI calls this; sessions never do.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sb.Reset()
}
