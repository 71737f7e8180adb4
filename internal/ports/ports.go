package ports

import (
	"context"
	"iter"
	"time"

	"whspr/internal/domain"
)

// CaptureConfig describes how the microphone should be recorded.
type CaptureConfig struct {
	InputFormat string
	InputDevice string
	MaxDuration time.Duration
	OutputPath  string
}

// InterruptedExitCode is what the capture tool returns after handling an interrupt.
const InterruptedExitCode = 255

// ExitStatus is how a subprocess ended.
type ExitStatus struct {
	Code int
	// Interrupted is set when the process died from an interrupt signal.
	Interrupted bool
	Err         error
	// Detail carries the last diagnostic lines, if any.
	Detail string
}

// Clean reports whether the exit means the output file was finalized.
// An interrupt signal only counts when the stop was requested.
func (s ExitStatus) Clean(stopRequested bool) bool {
	switch {
	case s.Code == 0, s.Code == InterruptedExitCode:
		return true
	case s.Interrupted && stopRequested:
		return true
	default:
		return false
	}
}

// CaptureProcess is a running capture subprocess.
type CaptureProcess interface {
	// Levels yields parsed loudness reports; closed when diagnostics end.
	Levels() <-chan domain.LoudnessEvent
	// Stop asks the process to end, gracefully (interrupt) or not (kill).
	Stop(graceful bool) error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Wait blocks until exit and returns the exit status.
	Wait() ExitStatus
}

// CaptureLauncher starts capture subprocesses.
type CaptureLauncher interface {
	Start(ctx context.Context, cfg CaptureConfig) (CaptureProcess, error)
}

// Encoder converts captured audio into the delivery format.
type Encoder interface {
	Encode(ctx context.Context, inputPath string, outputPath string) error
}

// Transcriber converts an audio file into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, req domain.TranscriptionRequest) (string, error)
}

// Completer streams a text completion.
type Completer interface {
	Stream(ctx context.Context, req domain.CompletionRequest) iter.Seq2[domain.CompletionChunk, error]
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Sink hands the final text to an external consumer.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// KeyListener watches the terminal for stop and cancel keys.
type KeyListener interface {
	// Listen returns an idempotent release func that restores the terminal.
	Listen(onStop func(), onCancel func()) (release func(), err error)
}

// History persists finished runs.
type History interface {
	Record(ctx context.Context, entry domain.HistoryEntry) error
}

// EventSink renders backend state/events to the terminal.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	RecordingProgress(status domain.RecordingStatus)
	StageChanged(stage domain.Stage)
	PostProcessProgress(percent int)
	SessionError(code domain.ErrorCode, detail string)
}

// Archive preserves artifacts beyond the life of a run.
type Archive interface {
	// Backup moves a recoverable artifact to the backup location.
	Backup(src string) (string, error)
	// BackupText writes text next to a previous backup.
	BackupText(beside string, text string) (string, error)
	SaveTranscript(text string) (string, error)
	SaveAudio(src string) (string, error)
}

// Metrics observes run outcomes.
type Metrics interface {
	RecordRun(outcome string)
	RecordStage(stage string, durationSeconds float64)
	RecordRetry(stage string)
	RecordRecording(seconds int)
	RecordUsage(inputTokens int, outputTokens int, costUSD float64)
}
