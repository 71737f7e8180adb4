// Package progress estimates how far a streamed cleanup edit has come.
//
// A cleanup edit produces roughly as much text as it was given, so the ratio of
// output to input length is a usable proxy. It is only an approximation: it can
// reach 100 before the stream ends and can stall below 100 when the output is
// shorter than the input. Callers must treat the end of the stream, not the
// percentage, as completion.
package progress

import (
	"iter"
	"math"
	"strings"
	"unicode/utf8"

	"whspr/internal/domain"
)

// Percent returns min(100, round(accumulated/raw*100)), clamped to [0,100].
func Percent(rawLen, accumulatedLen int) int {
	if accumulatedLen <= 0 {
		return 0
	}
	if rawLen <= 0 {
		return 100
	}
	p := int(math.Round(float64(accumulatedLen) / float64(rawLen) * 100))
	return max(0, min(100, p))
}

// Tracker accumulates a completion stream and reports progress against the raw input.
type Tracker struct {
	rawLen int
	text   strings.Builder
	count  int
	usage  domain.Usage
}

func NewTracker(raw string) *Tracker {
	return &Tracker{rawLen: utf8.RuneCountInString(raw)}
}

// Track yields a percentage after every chunk. The sequence ends when chunks ends
// or yields an error; the error is passed through as the final element.
func (t *Tracker) Track(chunks iter.Seq2[domain.CompletionChunk, error]) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for chunk, err := range chunks {
			if err != nil {
				yield(Percent(t.rawLen, t.count), err)
				return
			}
			if chunk.Usage != nil {
				t.usage = t.usage.Add(*chunk.Usage)
			}
			if chunk.Text != "" {
				t.text.WriteString(chunk.Text)
				t.count += utf8.RuneCountInString(chunk.Text)
			}
			if !yield(Percent(t.rawLen, t.count), nil) {
				return
			}
		}
	}
}

// Text is everything accumulated so far.
func (t *Tracker) Text() string {
	return t.text.String()
}

func (t *Tracker) Usage() domain.Usage {
	return t.usage
}
