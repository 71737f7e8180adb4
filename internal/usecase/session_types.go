package usecase

import (
	"sync"
	"time"

	"whspr/internal/domain"
	"whspr/internal/level"
	"whspr/internal/ports"
)

// ticker is the subset of *time.Ticker the recorder needs.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// recordingState is the mutable part of a live session, shared by the tick,
// level, and control goroutines.
type recordingState struct {
	mu         sync.Mutex
	state      domain.SessionState
	elapsed    int
	maxSeconds int
	currentDb  float64
	wave       *level.History
}

func newRecordingState(maxSeconds int, waveWidth int) *recordingState {
	return &recordingState{
		state:      domain.SessionStateIdle,
		maxSeconds: maxSeconds,
		currentDb:  level.Silent,
		wave:       level.NewHistory(waveWidth),
	}
}

// setState applies a forward transition and reports whether it happened.
func (s *recordingState) setState(next domain.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.state == next {
		return false
	}
	s.state = next
	return true
}

// advance counts one elapsed second, capped at the maximum.
func (s *recordingState) advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.elapsed < s.maxSeconds {
		s.elapsed++
	}
}

func (s *recordingState) sample() {
	s.mu.Lock()
	db := s.currentDb
	s.mu.Unlock()
	s.wave.Push(level.Quantize(db))
}

func (s *recordingState) observe(event domain.LoudnessEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDb = event.Average()
}

func (s *recordingState) elapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

func (s *recordingState) snapshot() domain.RecordingStatus {
	s.mu.Lock()
	status := domain.RecordingStatus{
		State:          s.state,
		ElapsedSeconds: s.elapsed,
		MaxSeconds:     s.maxSeconds,
	}
	s.mu.Unlock()
	status.Wave = s.wave.String()
	return status
}

type noopEventSink struct{}

func (noopEventSink) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {}
func (noopEventSink) RecordingProgress(domain.RecordingStatus)                           {}
func (noopEventSink) StageChanged(domain.Stage)                                          {}
func (noopEventSink) PostProcessProgress(int)                                            {}
func (noopEventSink) SessionError(domain.ErrorCode, string)                              {}

var _ ports.EventSink = noopEventSink{}

type noopKeyListener struct{}

func (noopKeyListener) Listen(func(), func()) (func(), error) {
	return func() {}, nil
}
