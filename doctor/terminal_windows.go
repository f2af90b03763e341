//go:build windows

package doctor

import (
	"fmt"
	"os"
	"os/signal"
)

// resetTerminal is a no-op; the console restores its own mode.
func resetTerminal() {}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\ndoctor interrupted")
		os.Exit(1)
	}()
}
