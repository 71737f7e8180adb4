package domain

import "time"

// SessionState models the recording lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStateStopping  SessionState = "stopping"
	SessionStateCompleted SessionState = "completed"
	SessionStateFailed    SessionState = "failed"
)

// Terminal reports whether no further transition can leave the state.
func (s SessionState) Terminal() bool {
	return s == SessionStateCompleted || s == SessionStateFailed
}

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonRecordingStarted   SessionStateReason = "recording_started"
	SessionReasonStopRequested      SessionStateReason = "stop_requested"
	SessionReasonMaxDuration        SessionStateReason = "max_duration"
	SessionReasonCancelled          SessionStateReason = "cancelled"
	SessionReasonRecordingSaved     SessionStateReason = "recording_saved"
	SessionReasonCaptureSpawnFailed SessionStateReason = "capture_spawn_failed"
	SessionReasonCaptureFailed      SessionStateReason = "capture_failed"
)

// ErrorCode identifies non-fatal and fatal pipeline errors.
type ErrorCode string

const (
	ErrorCodeStartup        ErrorCode = "startup"
	ErrorCodeCaptureSpawn   ErrorCode = "capture_spawn"
	ErrorCodeCaptureProcess ErrorCode = "capture_process"
	ErrorCodeEncoding       ErrorCode = "encoding"
	ErrorCodeTranscription  ErrorCode = "transcription"
	ErrorCodePostProcessing ErrorCode = "post_processing"
	ErrorCodeSink           ErrorCode = "sink"
	ErrorCodeClipboard      ErrorCode = "clipboard"
	ErrorCodeArchive        ErrorCode = "archive"
)

// Stage is one ordered step of a pipeline run.
type Stage string

const (
	StageCapturing      Stage = "capturing"
	StageEncoding       Stage = "encoding"
	StageTranscribing   Stage = "transcribing"
	StagePostProcessing Stage = "post_processing"
	StageDelivered      Stage = "delivered"
	StageFailed         Stage = "failed"
)

// ArtifactKind names an intermediate or final product of a run.
type ArtifactKind string

const (
	ArtifactAudio         ArtifactKind = "audio"
	ArtifactEncodedAudio  ArtifactKind = "encoded_audio"
	ArtifactRawTranscript ArtifactKind = "raw_transcript"
	ArtifactFinalText     ArtifactKind = "final_text"
)

// LoudnessEvent is one parsed loudness report from the capture process.
type LoudnessEvent struct {
	Left  float64
	Right float64
}

// Average returns the mean of both channel values in dB.
func (e LoudnessEvent) Average() float64 {
	return (e.Left + e.Right) / 2
}

// RecordingStatus is a render snapshot of a live recording.
type RecordingStatus struct {
	State          SessionState
	ElapsedSeconds int
	MaxSeconds     int
	Wave           string
}

// Recording is the immutable result of a completed capture session.
type Recording struct {
	Path            string
	Dir             string
	DurationSeconds int
}

// Failure records where a run failed and what can still be recovered.
type Failure struct {
	Stage           Stage
	Code            ErrorCode
	Cause           error
	RecoverablePath string
}

// PipelineRun is the mutable state of one end-to-end request.
type PipelineRun struct {
	ID        string
	Stage     Stage
	StartedAt time.Time
	Artifacts map[ArtifactKind]string
	Failure   *Failure
}

// Usage holds token counts reported by a completion backend.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates counts, keeping the larger of cumulative reports.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  max(u.InputTokens, other.InputTokens),
		OutputTokens: max(u.OutputTokens, other.OutputTokens),
	}
}

// TranscriptionRequest describes one speech-to-text call.
type TranscriptionRequest struct {
	AudioPath string
	Model     string
	Language  string
}

// CompletionRequest describes one text-completion call.
type CompletionRequest struct {
	Model  string
	System string
	User   string
}

// CompletionChunk is one increment of a streamed completion.
type CompletionChunk struct {
	Text  string
	Usage *Usage
}

// DeliveryTarget names where the final text ended up.
type DeliveryTarget string

const (
	DeliveredToSink      DeliveryTarget = "sink"
	DeliveredToClipboard DeliveryTarget = "clipboard"
	DeliveredToStdout    DeliveryTarget = "stdout"
)

// RunResult summarises a successfully delivered run.
type RunResult struct {
	RunID           string
	RawText         string
	FinalText       string
	DeliveredVia    DeliveryTarget
	AudioSeconds    int
	ProcessingTime  time.Duration
	Usage           Usage
	CostUSD         float64
	SavedTranscript string
	SavedAudio      string
}

// HistoryEntry is one persisted row describing a finished run.
type HistoryEntry struct {
	RunID          string
	StartedAt      time.Time
	Stage          Stage
	AudioSeconds   int
	Model          string
	FinalText      string
	ErrorCode      ErrorCode
	ErrorMessage   string
	BackupPath     string
	SavedAudioPath string
	CostUSD        float64
}
