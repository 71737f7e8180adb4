//go:build unix

package terminal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// KeyListener reads single keypresses from stdin in raw mode.
type KeyListener struct {
	in  *os.File
	log *slog.Logger
}

func NewKeyListener(in *os.File, log *slog.Logger) *KeyListener {
	if log == nil {
		log = slog.Default()
	}
	return &KeyListener{in: in, log: log}
}

// Listen puts the terminal into raw mode and fires onStop for Enter and onCancel
// for Ctrl+C. Without a terminal it does nothing. release restores the terminal
// and stops the reader; it is safe to call more than once.
func (l *KeyListener) Listen(onStop func(), onCancel func()) (func(), error) {
	if l.in == nil || !IsTerminal(l.in) {
		l.log.Debug("stdin is not a terminal; keypress listener disabled")
		return func() {}, nil
	}

	fd := int(l.in.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enabling raw mode: %w", err)
	}

	// A non-blocking duplicate lets release interrupt a pending read via deadline.
	dup, err := unix.Dup(fd)
	if err != nil {
		_ = term.Restore(fd, state)
		return nil, fmt.Errorf("duplicating stdin: %w", err)
	}
	if err := unix.SetNonblock(dup, true); err != nil {
		_ = unix.Close(dup)
		_ = term.Restore(fd, state)
		return nil, fmt.Errorf("setting stdin non-blocking: %w", err)
	}
	reader := os.NewFile(uintptr(dup), "stdin")

	stopped := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1)
		for {
			n, err := reader.Read(buf)
			if n == 1 && !dispatch(buf[0], onStop, onCancel) {
				return
			}
			if err != nil {
				if !errors.Is(err, os.ErrDeadlineExceeded) {
					select {
					case <-stopped:
					default:
						l.log.Debug("keypress reader stopped", slog.String("error", err.Error()))
					}
				}
				return
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stopped)
			_ = reader.SetReadDeadline(time.Now())
			<-done
			_ = reader.Close()
			_ = unix.SetNonblock(fd, false)
			if err := term.Restore(fd, state); err != nil {
				l.log.Warn("failed to restore terminal", slog.String("error", err.Error()))
			}
		})
	}
	return release, nil
}
