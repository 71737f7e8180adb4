//go:build !unix

package terminal

import (
	"log/slog"
	"os"
)

// KeyListener is inert on platforms without raw-mode support; stop with Ctrl+C.
type KeyListener struct {
	log *slog.Logger
}

func NewKeyListener(_ *os.File, log *slog.Logger) *KeyListener {
	if log == nil {
		log = slog.Default()
	}
	return &KeyListener{log: log}
}

func (l *KeyListener) Listen(func(), func()) (func(), error) {
	l.log.Debug("keypress listener unsupported on this platform")
	return func() {}, nil
}
