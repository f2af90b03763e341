//go:build !gui

package main

import (
	"context"
	"errors"
)

var errNoGUI = errors.New("built without GUI support (rebuild with -tags gui)")

func runGUI(context.Context) error {
	return errNoGUI
}
