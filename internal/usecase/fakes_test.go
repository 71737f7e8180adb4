package usecase

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"sync"
	"time"

	"whspr/internal/domain"
	"whspr/internal/ports"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type manualTicker struct {
	c chan time.Time
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               {}

func (m *manualTicker) tick(n int) {
	for range n {
		m.c <- time.Now()
	}
}

// fakeProcess finishes when exit is called, or when Stop runs its onStop hook.
type fakeProcess struct {
	levels chan domain.LoudnessEvent
	done   chan struct{}

	mu       sync.Mutex
	status   ports.ExitStatus
	stops    []bool
	exitOnce sync.Once

	onStop func(graceful bool) ports.ExitStatus
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		levels: make(chan domain.LoudnessEvent, 16),
		done:   make(chan struct{}),
	}
}

func (p *fakeProcess) Levels() <-chan domain.LoudnessEvent { return p.levels }
func (p *fakeProcess) Done() <-chan struct{}               { return p.done }

func (p *fakeProcess) Wait() ports.ExitStatus {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakeProcess) Stop(graceful bool) error {
	p.mu.Lock()
	p.stops = append(p.stops, graceful)
	hook := p.onStop
	p.mu.Unlock()

	status := ports.ExitStatus{Code: -1, Interrupted: true, Err: errors.New("signal: killed")}
	if hook != nil {
		status = hook(graceful)
	}
	p.exit(status)
	return nil
}

func (p *fakeProcess) exit(status ports.ExitStatus) {
	p.exitOnce.Do(func() {
		p.mu.Lock()
		p.status = status
		p.mu.Unlock()
		close(p.levels)
		close(p.done)
	})
}

func (p *fakeProcess) snapshotStops() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.stops...)
}

type fakeLauncher struct {
	mu      sync.Mutex
	proc    *fakeProcess
	cfg     ports.CaptureConfig
	err     error
	prepare func(cfg ports.CaptureConfig, proc *fakeProcess)
}

func (f *fakeLauncher) Start(_ context.Context, cfg ports.CaptureConfig) (ports.CaptureProcess, error) {
	if f.err != nil {
		return nil, f.err
	}
	proc := newFakeProcess()
	if f.prepare != nil {
		f.prepare(cfg, proc)
	}
	f.mu.Lock()
	f.proc = proc
	f.cfg = cfg
	f.mu.Unlock()
	return proc, nil
}

// finalizeOnInterrupt mimics ffmpeg writing the file and exiting 255 on SIGINT.
func finalizeOnInterrupt(cfg ports.CaptureConfig, proc *fakeProcess) {
	proc.onStop = func(graceful bool) ports.ExitStatus {
		if !graceful {
			return ports.ExitStatus{Code: -1, Interrupted: true}
		}
		_ = os.WriteFile(cfg.OutputPath, []byte("RIFF"), 0o600)
		return ports.ExitStatus{Code: ports.InterruptedExitCode}
	}
}

type fakeKeys struct {
	mu       sync.Mutex
	onStop   func()
	onCancel func()
	releases int
	err      error
}

func (f *fakeKeys) Listen(onStop func(), onCancel func()) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.onStop = onStop
	f.onCancel = onCancel
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.releases++
	}, nil
}

func (f *fakeKeys) pressEnter() {
	f.mu.Lock()
	stop := f.onStop
	f.mu.Unlock()
	stop()
}

func (f *fakeKeys) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

type fakeEventSink struct {
	mu sync.Mutex

	states   []stateEvent
	progress []domain.RecordingStatus
	stages   []domain.Stage
	percents []int
	errors   []errEvent
}

type stateEvent struct {
	state  domain.SessionState
	reason domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{state: state, reason: reason})
}

func (f *fakeEventSink) RecordingProgress(status domain.RecordingStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, status)
}

func (f *fakeEventSink) StageChanged(stage domain.Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
}

func (f *fakeEventSink) PostProcessProgress(percent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.percents = append(f.percents, percent)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotStages() []domain.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Stage(nil), f.stages...)
}

func (f *fakeEventSink) snapshotPercents() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.percents...)
}

func (f *fakeEventSink) lastProgress() (domain.RecordingStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.progress) == 0 {
		return domain.RecordingStatus{}, false
	}
	return f.progress[len(f.progress)-1], true
}

type fakeEncoder struct {
	err   error
	calls int
}

func (f *fakeEncoder) Encode(_ context.Context, inputPath string, outputPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte("ID3"), 0o600)
}

type fakeTranscriber struct {
	mu       sync.Mutex
	results  []transcribeResult
	requests []domain.TranscriptionRequest
}

type transcribeResult struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req domain.TranscriptionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.results) == 0 {
		return "", errors.New("no scripted result")
	}
	next := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return next.text, next.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeCompleter struct {
	mu       sync.Mutex
	chunks   []string
	usage    *domain.Usage
	failures int
	err      error
	requests []domain.CompletionRequest
}

func (f *fakeCompleter) Stream(_ context.Context, req domain.CompletionRequest) iter.Seq2[domain.CompletionChunk, error] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fail := f.failures > 0 || f.err != nil
	if f.failures > 0 {
		f.failures--
	}
	err := f.err
	if err == nil {
		err = errors.New("stream reset")
	}
	f.mu.Unlock()

	return func(yield func(domain.CompletionChunk, error) bool) {
		for i, text := range f.chunks {
			if fail && i == 1 {
				yield(domain.CompletionChunk{}, err)
				return
			}
			if !yield(domain.CompletionChunk{Text: text}, nil) {
				return
			}
		}
		if fail {
			yield(domain.CompletionChunk{}, err)
			return
		}
		if f.usage != nil {
			yield(domain.CompletionChunk{Usage: f.usage}, nil)
		}
	}
}

func (f *fakeCompleter) snapshotRequests() []domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CompletionRequest(nil), f.requests...)
}

type fakeClipboard struct {
	lastText string
	err      error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.lastText = text
	return f.err
}

type fakeSink struct {
	lastText string
	err      error
}

func (f *fakeSink) Send(_ context.Context, text string) error {
	f.lastText = text
	return f.err
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (f *fakeHistory) Record(_ context.Context, entry domain.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}
