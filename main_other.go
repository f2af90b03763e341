//go:build !linux

package main

import (
	"os"
	"runtime"
	"slices"

	"golang.design/x/hotkey/mainthread"
)

// The OS event loop behind both the window and the global shortcut must
// own the main thread.
func init() {
	runtime.LockOSThread()
}

func runMain(run func()) {
	if slices.Contains(os.Args[1:], "--gui") {
		// fyne drives the main thread itself
		run()
		return
	}
	mainthread.Init(run)
}
