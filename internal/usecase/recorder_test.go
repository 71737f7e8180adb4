package usecase

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"whspr/internal/domain"
	"whspr/internal/level"
	"whspr/internal/ports"
)

type recorderHarness struct {
	recorder *Recorder
	launcher *fakeLauncher
	keys     *fakeKeys
	events   *fakeEventSink
	elapsed  *manualTicker
	wave     *manualTicker
	tempRoot string
}

func newRecorderHarness(t *testing.T, maxDuration time.Duration) *recorderHarness {
	t.Helper()
	h := &recorderHarness{
		launcher: &fakeLauncher{prepare: finalizeOnInterrupt},
		keys:     &fakeKeys{},
		events:   &fakeEventSink{},
		elapsed:  newManualTicker(),
		wave:     newManualTicker(),
		tempRoot: t.TempDir(),
	}
	h.recorder = NewRecorder(h.launcher, h.keys, h.events, newLogger(), RecorderConfig{
		InputFormat: "pulse",
		InputDevice: "default",
		MaxDuration: maxDuration,
		WaveWidth:   8,
		TempRoot:    h.tempRoot,
	})
	h.recorder.newTicker = func(d time.Duration) ticker {
		if d == elapsedTick {
			return h.elapsed
		}
		return h.wave
	}
	return h
}

func (h *recorderHarness) process() *fakeProcess {
	h.launcher.mu.Lock()
	defer h.launcher.mu.Unlock()
	return h.launcher.proc
}

func waitSession(t *testing.T, s *RecordingSession) (domain.Recording, error) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for session")
	}
	return s.Wait()
}

func assertTempRootEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read temp root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected session dir to be removed, found %d entries", len(entries))
	}
}

func TestRecorderStopAfterThreeSecondsCompletes(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	h.process().levels <- domain.LoudnessEvent{Left: -20, Right: -16}
	h.elapsed.tick(3)
	h.wave.tick(1)

	session.Stop()
	rec, err := waitSession(t, session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.DurationSeconds != 3 {
		t.Fatalf("expected duration 3, got %d", rec.DurationSeconds)
	}
	if !strings.HasSuffix(rec.Path, "recording.wav") || !strings.HasPrefix(rec.Dir, h.tempRoot) {
		t.Fatalf("unexpected recording %+v", rec)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		t.Fatalf("expected recording file: %v", err)
	}

	states := h.events.snapshotStates()
	want := []stateEvent{
		{domain.SessionStateRecording, domain.SessionReasonRecordingStarted},
		{domain.SessionStateStopping, domain.SessionReasonStopRequested},
		{domain.SessionStateCompleted, domain.SessionReasonRecordingSaved},
	}
	if len(states) != len(want) {
		t.Fatalf("unexpected states %+v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d: got %+v want %+v", i, states[i], want[i])
		}
	}
	if stops := h.process().snapshotStops(); len(stops) != 1 || !stops[0] {
		t.Fatalf("expected one graceful stop, got %v", stops)
	}
	if h.keys.releaseCount() != 1 {
		t.Fatalf("expected key listener released once, got %d", h.keys.releaseCount())
	}
	if got := session.Status().State; got != domain.SessionStateCompleted {
		t.Fatalf("unexpected final state %s", got)
	}
}

func TestRecorderRendersWaveFromLoudness(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	initial, ok := h.events.lastProgress()
	if !ok || initial.Wave != strings.Repeat(" ", 8) || initial.MaxSeconds != 900 {
		t.Fatalf("unexpected initial render %+v", initial)
	}

	h.wave.tick(1)
	h.wave.tick(1)
	last, _ := h.events.lastProgress()
	if !strings.HasSuffix(last.Wave, string(level.Quantize(level.Silent))) {
		t.Fatalf("expected silent symbol before any loudness, got %q", last.Wave)
	}

	session.Cancel()
	if _, err := waitSession(t, session); !errors.Is(err, domain.ErrUserCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRecorderElapsedNeverExceedsMax(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 2*time.Second)
	h.launcher.prepare = nil
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if cfg := h.launcher.cfg; cfg.MaxDuration != 2*time.Second || !strings.HasSuffix(cfg.OutputPath, "recording.wav") {
		t.Fatalf("unexpected capture config %+v", cfg)
	}

	h.elapsed.tick(5)
	if got := session.Status().ElapsedSeconds; got != 2 {
		t.Fatalf("expected elapsed capped at 2, got %d", got)
	}

	proc := h.process()
	if err := os.WriteFile(h.launcher.cfg.OutputPath, []byte("RIFF"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	proc.exit(ports.ExitStatus{Code: 0})

	rec, err := waitSession(t, session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.DurationSeconds != 2 {
		t.Fatalf("expected duration 2, got %d", rec.DurationSeconds)
	}
	states := h.events.snapshotStates()
	if len(states) != 3 || states[1].reason != domain.SessionReasonMaxDuration || states[2].state != domain.SessionStateCompleted {
		t.Fatalf("unexpected states %+v", states)
	}
	if h.keys.releaseCount() != 1 {
		t.Fatalf("expected key listener released, got %d", h.keys.releaseCount())
	}
}

func TestRecorderSpawnFailure(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	h.launcher.err = errors.New("exec: \"ffmpeg\": executable file not found in $PATH")

	_, err := h.recorder.Record(context.Background())
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Code != domain.ErrorCodeCaptureSpawn {
		t.Fatalf("expected capture spawn error, got %v", err)
	}
	states := h.events.snapshotStates()
	if len(states) != 1 || states[0].state != domain.SessionStateFailed {
		t.Fatalf("unexpected states %+v", states)
	}
	assertTempRootEmpty(t, h.tempRoot)
	if h.keys.releaseCount() != 0 {
		t.Fatalf("key listener should not be acquired on spawn failure")
	}
}

func TestRecorderAbnormalExitFails(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	h.launcher.prepare = nil
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.process().exit(ports.ExitStatus{Code: 1, Err: errors.New("exit status 1"), Detail: "default: No such device"})

	_, err = waitSession(t, session)
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Code != domain.ErrorCodeCaptureProcess {
		t.Fatalf("expected capture process error, got %v", err)
	}
	if !strings.Contains(err.Error(), "No such device") {
		t.Fatalf("expected diagnostics in error, got %v", err)
	}
	states := h.events.snapshotStates()
	if last := states[len(states)-1]; last.state != domain.SessionStateFailed || last.reason != domain.SessionReasonCaptureFailed {
		t.Fatalf("unexpected final state %+v", last)
	}
	if errs := h.events.snapshotErrors(); len(errs) != 1 || errs[0].code != domain.ErrorCodeCaptureProcess {
		t.Fatalf("unexpected errors %+v", errs)
	}
	assertTempRootEmpty(t, h.tempRoot)
	if h.keys.releaseCount() != 1 {
		t.Fatalf("expected key listener released, got %d", h.keys.releaseCount())
	}
}

func TestRecorderMissingFileFails(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	h.launcher.prepare = func(_ ports.CaptureConfig, proc *fakeProcess) {
		proc.onStop = func(bool) ports.ExitStatus { return ports.ExitStatus{Code: ports.InterruptedExitCode} }
	}
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session.Stop()

	_, err = waitSession(t, session)
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Code != domain.ErrorCodeCaptureProcess {
		t.Fatalf("expected capture process error, got %v", err)
	}
	if !strings.Contains(err.Error(), "not created") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRecorderInterruptSignalCountsAsCleanAfterStop(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	h.launcher.prepare = func(cfg ports.CaptureConfig, proc *fakeProcess) {
		proc.onStop = func(bool) ports.ExitStatus {
			_ = os.WriteFile(cfg.OutputPath, []byte("RIFF"), 0o600)
			return ports.ExitStatus{Code: -1, Interrupted: true}
		}
	}
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.keys.pressEnter()

	if _, err := waitSession(t, session); err != nil {
		t.Fatalf("expected completion, got %v", err)
	}
}

func TestRecorderCancelDiscardsAudio(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.elapsed.tick(1)

	h.keys.mu.Lock()
	cancel := h.keys.onCancel
	h.keys.mu.Unlock()
	cancel()

	_, err = waitSession(t, session)
	if !errors.Is(err, domain.ErrUserCancelled) {
		t.Fatalf("expected ErrUserCancelled, got %v", err)
	}
	if stops := h.process().snapshotStops(); len(stops) != 1 || stops[0] {
		t.Fatalf("expected one forced stop, got %v", stops)
	}
	assertTempRootEmpty(t, h.tempRoot)
	if h.keys.releaseCount() != 1 {
		t.Fatalf("expected key listener released, got %d", h.keys.releaseCount())
	}
}

func TestRecorderContextCancellation(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	session, err := h.recorder.Start(ctx)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	cancel()

	_, err = waitSession(t, session)
	if !errors.Is(err, domain.ErrUserCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	assertTempRootEmpty(t, h.tempRoot)
}

func TestRecorderStopIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session.Stop()
	session.Stop()
	session.Cancel()

	if _, err := waitSession(t, session); err != nil && !errors.Is(err, domain.ErrUserCancelled) {
		t.Fatalf("unexpected error %v", err)
	}
	if stops := h.process().snapshotStops(); len(stops) != 1 {
		t.Fatalf("expected exactly one stop, got %v", stops)
	}
}

func TestRecorderKeyListenerFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newRecorderHarness(t, 900*time.Second)
	h.keys.err = errors.New("inappropriate ioctl for device")
	session, err := h.recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	session.Stop()
	if _, err := waitSession(t, session); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
