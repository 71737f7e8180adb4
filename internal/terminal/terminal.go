package terminal

import (
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

const (
	keyEnter    = '\r'
	keyNewline  = '\n'
	keyCtrlC    = 0x03
	defaultCols = 80
)

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ColorEnabled reports whether ANSI colours should be written to f.
func ColorEnabled(f *os.File) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return IsTerminal(f)
}

// Width returns the column count of the terminal on f, or 80 when unknown.
func Width(f *os.File) int {
	if !IsTerminal(f) {
		return defaultCols
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return defaultCols
	}
	return cols
}

// dispatch maps one input byte onto the stop and cancel callbacks.
// It returns false once a callback fired and no further input matters.
func dispatch(b byte, onStop func(), onCancel func()) bool {
	switch b {
	case keyEnter, keyNewline:
		if onStop != nil {
			onStop()
		}
		return false
	case keyCtrlC:
		if onCancel != nil {
			onCancel()
		}
		return false
	}
	return true
}
