//go:build linux

package main

func runMain(run func()) {
	run()
}
