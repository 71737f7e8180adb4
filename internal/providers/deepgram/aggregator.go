package deepgram

import (
	"strings"
	"sync"
)

type transcriptEvent struct {
	Text  string
	Final bool
}

// transcriptAggregator joins final segments. If the connection ended before any
// final arrived, the most recent interim text is used instead.
type transcriptAggregator struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

func (a *transcriptAggregator) Add(event transcriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if event.Final {
		a.finals = append(a.finals, text)
		a.interim = ""
		return
	}
	a.interim = text
}

func (a *transcriptAggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	parts := append([]string(nil), a.finals...)
	if a.interim != "" {
		parts = append(parts, a.interim)
	}
	return strings.Join(parts, " ")
}
