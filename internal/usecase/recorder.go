package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"whspr/internal/domain"
	"whspr/internal/ports"
)

const (
	elapsedTick = time.Second
	waveTick    = 50 * time.Millisecond

	recordingFileName = "recording.wav"
	tempDirPattern    = "whspr-"
)

// RecorderConfig controls a capture session.
type RecorderConfig struct {
	InputFormat string
	InputDevice string
	MaxDuration time.Duration
	WaveWidth   int
	// TempRoot is where the private session directory is created; empty means os.TempDir.
	TempRoot string
	// Probe, when set, reports the real length of the captured file for logging.
	Probe func(path string) (time.Duration, error)
}

// Recorder runs microphone capture sessions with live level metering.
type Recorder struct {
	launcher ports.CaptureLauncher
	keys     ports.KeyListener
	events   ports.EventSink
	log      *slog.Logger
	cfg      RecorderConfig

	newTicker func(d time.Duration) ticker
}

func NewRecorder(launcher ports.CaptureLauncher, keys ports.KeyListener, events ports.EventSink, log *slog.Logger, cfg RecorderConfig) *Recorder {
	if keys == nil {
		keys = noopKeyListener{}
	}
	if events == nil {
		events = noopEventSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 900 * time.Second
	}
	if cfg.WaveWidth <= 0 {
		cfg.WaveWidth = 60
	}
	return &Recorder{
		launcher:  launcher,
		keys:      keys,
		events:    events,
		log:       log,
		cfg:       cfg,
		newTicker: newTimeTicker,
	}
}

// Record starts a session and blocks until it completes, fails, or is cancelled.
func (r *Recorder) Record(ctx context.Context) (domain.Recording, error) {
	session, err := r.Start(ctx)
	if err != nil {
		return domain.Recording{}, err
	}
	return session.Wait()
}

// RecordingSession is one live capture. Stop and Cancel may be called from any goroutine.
type RecordingSession struct {
	recorder *Recorder
	dir      string
	target   string
	proc     ports.CaptureProcess
	state    *recordingState

	stopCh     chan struct{}
	stopOnce   sync.Once
	cancelCh   chan struct{}
	cancelOnce sync.Once

	done   chan struct{}
	result domain.Recording
	err    error
}

// Start creates the session directory and spawns the capture process.
func (r *Recorder) Start(ctx context.Context) (*RecordingSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(r.cfg.TempRoot, tempDirPattern)
	if err != nil {
		return nil, &domain.StageError{Code: domain.ErrorCodeStartup, Stage: domain.StageCapturing, Err: fmt.Errorf("create session dir: %w", err)}
	}
	target := filepath.Join(dir, recordingFileName)

	maxSeconds := int(r.cfg.MaxDuration / time.Second)
	s := &RecordingSession{
		recorder: r,
		dir:      dir,
		target:   target,
		state:    newRecordingState(maxSeconds, r.cfg.WaveWidth),
		stopCh:   make(chan struct{}),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}

	proc, err := r.launcher.Start(ctx, ports.CaptureConfig{
		InputFormat: r.cfg.InputFormat,
		InputDevice: r.cfg.InputDevice,
		MaxDuration: r.cfg.MaxDuration,
		OutputPath:  target,
	})
	if err != nil {
		s.discard()
		s.transition(domain.SessionStateFailed, domain.SessionReasonCaptureSpawnFailed)
		r.events.SessionError(domain.ErrorCodeCaptureSpawn, err.Error())
		return nil, &domain.StageError{Code: domain.ErrorCodeCaptureSpawn, Stage: domain.StageCapturing, Err: err}
	}
	s.proc = proc
	s.transition(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	r.log.Debug("recording started", slog.String("path", target), slog.Int("max_seconds", maxSeconds))

	release, err := r.keys.Listen(s.Stop, s.Cancel)
	if err != nil {
		r.log.Warn("keypress listener unavailable", slog.String("error", err.Error()))
		release = func() {}
	}
	s.render()

	go s.run(ctx, release)
	return s, nil
}

// Stop requests a graceful stop so the capture process finalizes the file.
func (s *RecordingSession) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Cancel aborts the recording and discards the audio.
func (s *RecordingSession) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

// Status returns the current render snapshot.
func (s *RecordingSession) Status() domain.RecordingStatus {
	return s.state.snapshot()
}

// Done is closed when the session reached a terminal outcome.
func (s *RecordingSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends.
func (s *RecordingSession) Wait() (domain.Recording, error) {
	<-s.done
	return s.result, s.err
}

func (s *RecordingSession) run(ctx context.Context, release func()) {
	defer close(s.done)

	var releaseOnce sync.Once
	releaseKeys := func() { releaseOnce.Do(release) }
	defer releaseKeys()

	tickCtx, stopTicks := context.WithCancel(context.Background())
	defer stopTicks()

	var ticks sync.WaitGroup
	ticks.Add(2)
	go s.tickLoop(tickCtx, &ticks, s.recorder.newTicker(elapsedTick), s.state.advance)
	go s.tickLoop(tickCtx, &ticks, s.recorder.newTicker(waveTick), s.state.sample)

	levelsDone := make(chan struct{})
	go func() {
		defer close(levelsDone)
		for event := range s.proc.Levels() {
			s.state.observe(event)
		}
	}()

	halt := func() {
		stopTicks()
		releaseKeys()
		ticks.Wait()
	}

	select {
	case <-s.stopCh:
		halt()
		s.transition(domain.SessionStateStopping, domain.SessionReasonStopRequested)
		if err := s.proc.Stop(true); err != nil {
			s.recorder.log.Warn("failed to stop capture", slog.String("error", err.Error()))
		}
		<-s.proc.Done()
		<-levelsDone
		s.finish(true)

	case <-s.cancelCh:
		halt()
		s.abort(levelsDone, domain.ErrUserCancelled)

	case <-ctx.Done():
		halt()
		s.abort(levelsDone, fmt.Errorf("%w: %w", domain.ErrUserCancelled, ctx.Err()))

	case <-s.proc.Done():
		halt()
		<-levelsDone
		if s.proc.Wait().Clean(false) {
			s.transition(domain.SessionStateStopping, domain.SessionReasonMaxDuration)
		}
		s.finish(false)
	}
}

func (s *RecordingSession) tickLoop(ctx context.Context, wg *sync.WaitGroup, t ticker, step func()) {
	defer wg.Done()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			step()
			s.render()
		}
	}
}

func (s *RecordingSession) finish(stopRequested bool) {
	status := s.proc.Wait()
	log := s.recorder.log

	if !status.Clean(stopRequested) {
		err := fmt.Errorf("capture exited with code %d", status.Code)
		if status.Detail != "" {
			err = fmt.Errorf("%w: %s", err, status.Detail)
		}
		s.fail(err)
		return
	}

	if _, err := os.Stat(s.target); err != nil {
		s.fail(fmt.Errorf("recording file was not created: %w", err))
		return
	}

	elapsed := s.state.elapsedSeconds()
	if probe := s.recorder.cfg.Probe; probe != nil {
		if length, err := probe(s.target); err != nil {
			log.Debug("could not probe recording", slog.String("error", err.Error()))
		} else {
			log.Debug("recording saved", slog.Int("elapsed_seconds", elapsed), slog.Duration("audio_length", length))
		}
	}

	s.result = domain.Recording{Path: s.target, Dir: s.dir, DurationSeconds: elapsed}
	s.transition(domain.SessionStateCompleted, domain.SessionReasonRecordingSaved)
}

func (s *RecordingSession) fail(err error) {
	s.discard()
	s.transition(domain.SessionStateFailed, domain.SessionReasonCaptureFailed)
	s.recorder.events.SessionError(domain.ErrorCodeCaptureProcess, err.Error())
	s.err = &domain.StageError{Code: domain.ErrorCodeCaptureProcess, Stage: domain.StageCapturing, Err: err}
}

func (s *RecordingSession) abort(levelsDone <-chan struct{}, err error) {
	if stopErr := s.proc.Stop(false); stopErr != nil {
		s.recorder.log.Warn("failed to kill capture", slog.String("error", stopErr.Error()))
	}
	<-s.proc.Done()
	<-levelsDone
	s.discard()
	s.transition(domain.SessionStateFailed, domain.SessionReasonCancelled)
	s.err = err
}

func (s *RecordingSession) discard() {
	if err := os.RemoveAll(s.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.recorder.log.Warn("failed to remove session dir", slog.String("dir", s.dir), slog.String("error", err.Error()))
	}
}

func (s *RecordingSession) transition(state domain.SessionState, reason domain.SessionStateReason) {
	if s.state.setState(state) {
		s.recorder.events.SessionStateChanged(state, reason)
	}
}

func (s *RecordingSession) render() {
	status := s.state.snapshot()
	if status.State != domain.SessionStateRecording {
		return
	}
	s.recorder.events.RecordingProgress(status)
}
