// Package level turns loudness measurements into a scrolling meter.
package level

import (
	"math"
	"strings"
	"sync"
)

const (
	// Floor and Ceiling bracket quiet-room noise to speech peaks, in dB.
	Floor   = -45.0
	Ceiling = -18.0
	// Silent is the loudness assumed before any measurement arrives.
	Silent = -60.0
)

// Symbols are ordered from quietest to loudest.
var Symbols = []rune{'·', '-', '=', '≡', '■', '█'}

// Quantize maps a loudness value onto one of Symbols. Out-of-range values saturate.
func Quantize(db float64) rune {
	if math.IsNaN(db) {
		return Symbols[0]
	}
	clamped := math.Max(Floor, math.Min(Ceiling, db))
	normalized := (clamped - Floor) / (Ceiling - Floor)
	index := int(math.Floor(normalized * float64(len(Symbols))))
	if index > len(Symbols)-1 {
		index = len(Symbols) - 1
	}
	return Symbols[index]
}

// History is a fixed-width ring of meter symbols.
type History struct {
	mu   sync.Mutex
	buf  []rune
	head int
}

// NewHistory returns a history of width blanks. Width is at least 1.
func NewHistory(width int) *History {
	if width < 1 {
		width = 1
	}
	buf := make([]rune, width)
	for i := range buf {
		buf[i] = ' '
	}
	return &History{buf: buf}
}

// Push evicts the oldest symbol and appends r.
func (h *History) Push(r rune) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.head] = r
	h.head = (h.head + 1) % len(h.buf)
}

// Len is constant for the lifetime of the history.
func (h *History) Len() int {
	return len(h.buf)
}

// String renders oldest to newest.
func (h *History) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var sb strings.Builder
	sb.Grow(len(h.buf) * 3)
	for i := 0; i < len(h.buf); i++ {
		sb.WriteRune(h.buf[(h.head+i)%len(h.buf)])
	}
	return sb.String()
}
