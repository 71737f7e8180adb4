package usecase

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"whspr/internal/domain"
	"whspr/internal/ports"
	"whspr/internal/pricing"
	"whspr/internal/progress"
	"whspr/internal/retry"
)

const (
	DefaultMaxAttempts = 3
	encodedFileName    = "recording.mp3"
)

var errEmptyCompletion = errors.New("completion returned no text")

// Capturer produces one finished recording.
type Capturer interface {
	Record(ctx context.Context) (domain.Recording, error)
}

// PipelineConfig holds per-run settings.
type PipelineConfig struct {
	Prompt             PromptConfig
	TranscriptionModel string
	Language           string
	// ModelLabel is the provider:model identifier shown to the user and stored in history.
	ModelLabel string
	// Suffix is appended only to the delivered text; saved transcripts and history keep the bare text.
	Suffix          string
	SaveTranscripts bool
	SaveAudio       bool
	MaxAttempts     int
	Retry           retry.Policy
}

// PipelineDeps are the collaborators of a run. History, Metrics and Sink are optional.
type PipelineDeps struct {
	Capture     Capturer
	Encoder     ports.Encoder
	Transcriber ports.Transcriber
	Completer   ports.Completer
	Clipboard   ports.Clipboard
	Sink        ports.Sink
	Archive     ports.Archive
	History     ports.History
	Metrics     ports.Metrics
	Events      ports.EventSink
	Log         *slog.Logger
}

// Pipeline drives capture, encoding, transcription, cleanup, and delivery for one run.
type Pipeline struct {
	deps      PipelineDeps
	cfg       PipelineConfig
	finalizer textFinalizer

	clock func() time.Time
	newID func() string
}

func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if deps.Events == nil {
		deps.Events = noopEventSink{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = retry.DefaultBaseDelay
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = deps.Log
	}
	return &Pipeline{
		deps:      deps,
		cfg:       cfg,
		finalizer: newTextFinalizer(deps.Sink, deps.Clipboard, deps.Events, deps.Log),
		clock:     time.Now,
		newID:     uuid.NewString,
	}
}

// Run executes one end-to-end request. A user cancellation returns domain.ErrUserCancelled;
// any other failure is a *domain.StageError carrying backup paths when audio was preserved.
func (p *Pipeline) Run(ctx context.Context) (domain.RunResult, error) {
	run := &domain.PipelineRun{
		ID:        p.newID(),
		StartedAt: p.clock(),
		Artifacts: map[domain.ArtifactKind]string{},
	}
	log := p.deps.Log.With(slog.String("run_id", run.ID))
	result := domain.RunResult{RunID: run.ID}

	p.enter(run, domain.StageCapturing)
	rec, err := p.deps.Capture.Record(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUserCancelled) {
			log.Debug("recording cancelled")
			p.recordRun("cancelled")
			return result, err
		}
		return result, p.fail(ctx, run, asStageError(err, domain.ErrorCodeCaptureProcess, domain.StageCapturing), "")
	}
	defer p.removeDir(rec.Dir)

	run.Artifacts[domain.ArtifactAudio] = rec.Path
	result.AudioSeconds = rec.DurationSeconds
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordRecording(rec.DurationSeconds)
	}
	processingStart := p.clock()

	p.enter(run, domain.StageEncoding)
	encoded := filepath.Join(rec.Dir, encodedFileName)
	err = p.timed(domain.StageEncoding, func() error {
		return p.deps.Encoder.Encode(ctx, rec.Path, encoded)
	})
	if err != nil {
		return result, p.fail(ctx, run, &domain.StageError{Code: domain.ErrorCodeEncoding, Stage: domain.StageEncoding, Err: err}, "")
	}
	p.removeFile(rec.Path)
	delete(run.Artifacts, domain.ArtifactAudio)
	run.Artifacts[domain.ArtifactEncodedAudio] = encoded

	p.enter(run, domain.StageTranscribing)
	var raw string
	err = p.timed(domain.StageTranscribing, func() error {
		var err error
		raw, err = retry.Do(ctx, p.policy(domain.StageTranscribing), p.cfg.MaxAttempts, "transcription",
			func(ctx context.Context) (string, error) {
				return p.deps.Transcriber.Transcribe(ctx, domain.TranscriptionRequest{
					AudioPath: encoded,
					Model:     p.cfg.TranscriptionModel,
					Language:  p.cfg.Language,
				})
			})
		return err
	})
	raw = strings.TrimSpace(raw)
	if err == nil && raw == "" {
		err = errors.New("transcription returned no text")
	}
	if err != nil {
		return result, p.fail(ctx, run, &domain.StageError{Code: domain.ErrorCodeTranscription, Stage: domain.StageTranscribing, Err: err}, encoded)
	}
	run.Artifacts[domain.ArtifactRawTranscript] = raw
	result.RawText = raw
	log.Debug("raw transcript", slog.String("text", raw))

	p.enter(run, domain.StagePostProcessing)
	req := BuildCompletionRequest(p.cfg.Prompt, raw)
	var tracker *progress.Tracker
	err = p.timed(domain.StagePostProcessing, func() error {
		var err error
		tracker, err = retry.Do(ctx, p.policy(domain.StagePostProcessing), p.cfg.MaxAttempts, "post-processing",
			func(ctx context.Context) (*progress.Tracker, error) {
				return p.complete(ctx, req, raw)
			})
		return err
	})
	if err != nil {
		return result, p.fail(ctx, run, &domain.StageError{Code: domain.ErrorCodePostProcessing, Stage: domain.StagePostProcessing, Err: err}, encoded)
	}

	final := strings.TrimSpace(tracker.Text())
	run.Artifacts[domain.ArtifactFinalText] = final
	result.FinalText = final
	result.Usage = tracker.Usage()
	result.CostUSD = pricing.Cost(p.cfg.Prompt.Model, result.Usage)
	result.DeliveredVia = p.finalizer.Deliver(ctx, final+p.cfg.Suffix)
	result.ProcessingTime = p.clock().Sub(processingStart)

	p.persist(&result, final, encoded, log)
	p.removeFile(encoded)
	delete(run.Artifacts, domain.ArtifactEncodedAudio)
	p.enter(run, domain.StageDelivered)

	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordUsage(result.Usage.InputTokens, result.Usage.OutputTokens, result.CostUSD)
	}
	p.recordRun("delivered")
	p.recordHistory(ctx, domain.HistoryEntry{
		RunID:          run.ID,
		StartedAt:      run.StartedAt,
		Stage:          domain.StageDelivered,
		AudioSeconds:   result.AudioSeconds,
		Model:          p.cfg.ModelLabel,
		FinalText:      final,
		SavedAudioPath: result.SavedAudio,
		CostUSD:        result.CostUSD,
	})
	return result, nil
}

// complete runs one streamed cleanup attempt, forwarding progress as it goes.
func (p *Pipeline) complete(ctx context.Context, req domain.CompletionRequest, raw string) (*progress.Tracker, error) {
	tracker := progress.NewTracker(raw)
	p.deps.Events.PostProcessProgress(0)
	for percent, err := range tracker.Track(p.deps.Completer.Stream(ctx, req)) {
		if err != nil {
			return nil, err
		}
		p.deps.Events.PostProcessProgress(percent)
	}
	if strings.TrimSpace(tracker.Text()) == "" {
		return nil, errEmptyCompletion
	}
	return tracker, nil
}

// fail moves the recoverable artifact to the backup location and records the failure.
func (p *Pipeline) fail(ctx context.Context, run *domain.PipelineRun, stageErr *domain.StageError, recoverable string) error {
	log := p.deps.Log.With(slog.String("run_id", run.ID))
	run.Failure = &domain.Failure{Stage: stageErr.Stage, Code: stageErr.Code, Cause: stageErr.Err, RecoverablePath: recoverable}

	if recoverable != "" && p.deps.Archive != nil {
		backup, err := p.deps.Archive.Backup(recoverable)
		if err != nil {
			log.Error("failed to back up recording", slog.String("path", recoverable), slog.String("error", err.Error()))
			p.deps.Events.SessionError(domain.ErrorCodeArchive, err.Error())
		} else {
			stageErr.BackupPath = backup
			if raw := run.Artifacts[domain.ArtifactRawTranscript]; raw != "" {
				if txt, err := p.deps.Archive.BackupText(backup, raw); err != nil {
					log.Warn("failed to back up raw transcript", slog.String("error", err.Error()))
				} else {
					stageErr.TranscriptBackupPath = txt
				}
			}
		}
	}

	p.enter(run, domain.StageFailed)
	p.deps.Events.SessionError(stageErr.Code, stageErr.Error())
	p.recordRun("failed")
	p.recordHistory(ctx, domain.HistoryEntry{
		RunID:        run.ID,
		StartedAt:    run.StartedAt,
		Stage:        stageErr.Stage,
		Model:        p.cfg.ModelLabel,
		FinalText:    run.Artifacts[domain.ArtifactRawTranscript],
		ErrorCode:    stageErr.Code,
		ErrorMessage: stageErr.Error(),
		BackupPath:   stageErr.BackupPath,
	})
	return stageErr
}

func (p *Pipeline) persist(result *domain.RunResult, final string, encoded string, log *slog.Logger) {
	if p.deps.Archive == nil {
		return
	}
	if p.cfg.SaveTranscripts {
		path, err := p.deps.Archive.SaveTranscript(final)
		if err != nil {
			log.Warn("failed to save transcript", slog.String("error", err.Error()))
			p.deps.Events.SessionError(domain.ErrorCodeArchive, err.Error())
		} else {
			result.SavedTranscript = path
		}
	}
	if p.cfg.SaveAudio {
		path, err := p.deps.Archive.SaveAudio(encoded)
		if err != nil {
			log.Warn("failed to save audio", slog.String("error", err.Error()))
			p.deps.Events.SessionError(domain.ErrorCodeArchive, err.Error())
		} else {
			result.SavedAudio = path
		}
	}
}

func (p *Pipeline) policy(stage domain.Stage) retry.Policy {
	policy := p.cfg.Retry
	hook := policy.OnFailure
	policy.OnFailure = func(label string, attempt int, err error) {
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordRetry(string(stage))
		}
		if hook != nil {
			hook(label, attempt, err)
		}
	}
	return policy
}

func (p *Pipeline) enter(run *domain.PipelineRun, stage domain.Stage) {
	run.Stage = stage
	p.deps.Events.StageChanged(stage)
}

func (p *Pipeline) timed(stage domain.Stage, fn func() error) error {
	start := p.clock()
	err := fn()
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordStage(string(stage), p.clock().Sub(start).Seconds())
	}
	return err
}

func (p *Pipeline) recordRun(outcome string) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordRun(outcome)
	}
}

func (p *Pipeline) recordHistory(ctx context.Context, entry domain.HistoryEntry) {
	if p.deps.History == nil {
		return
	}
	if err := p.deps.History.Record(context.WithoutCancel(ctx), entry); err != nil {
		p.deps.Log.Warn("failed to record history", slog.String("error", err.Error()))
	}
}

func (p *Pipeline) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.deps.Log.Warn("failed to remove intermediate file", slog.String("path", path), slog.String("error", err.Error()))
	}
}

func (p *Pipeline) removeDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		p.deps.Log.Warn("failed to remove session dir", slog.String("dir", dir), slog.String("error", err.Error()))
	}
}

func asStageError(err error, code domain.ErrorCode, stage domain.Stage) *domain.StageError {
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	return &domain.StageError{Code: code, Stage: stage, Err: err}
}
