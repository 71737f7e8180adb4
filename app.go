package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"unicode/utf8"

	"whspr/internal/bootstrap"
	"whspr/internal/cli"
	"whspr/internal/config"
	"whspr/internal/domain"
	"whspr/internal/pricing"
	"whspr/internal/terminal"
	"whspr/internal/ui"
)

// App renders a dictation run on the terminal. Live status goes to the
// status writer so the final text on out stays pipe-friendly.
type App struct {
	cfg    config.Config
	out    io.Writer
	status io.Writer
	log    *slog.Logger

	palette     ui.Palette
	width       int
	interactive bool
	verbose     bool

	mu        sync.Mutex
	liveLines int
}

func NewApp(cfg config.Config, out io.Writer, status io.Writer, log *slog.Logger) *App {
	a := &App{cfg: cfg, out: out, status: status, log: log, width: 80}
	if f, ok := status.(*os.File); ok {
		a.interactive = terminal.IsTerminal(f)
		a.palette = ui.Palette{Enabled: terminal.ColorEnabled(f)}
		a.width = terminal.Width(f)
	}
	return a
}

// Dictate builds the pipeline for this invocation and runs it once.
func (a *App) Dictate(ctx context.Context, opts cli.DictateOptions) error {
	a.verbose = opts.Verbose

	services, err := bootstrap.Build(ctx, a.cfg, bootstrap.Options{
		PipeCommand: opts.PipeCommand,
		Events:      a,
		WaveWidth:   ui.WaveWidth(a.width),
		Log:         a.log,
	})
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			a.log.Warn("shutdown", slog.String("error", err.Error()))
		}
	}()

	fmt.Fprint(a.status, ui.StartupHeader(a.palette, a.cfg.Settings.Model, services.Vocabulary.Paths(), a.width))

	result, err := services.Pipeline.Run(ctx)
	a.clearLive()
	if err != nil {
		if errors.Is(err, domain.ErrUserCancelled) {
			a.line(a.palette.Dim("Recording cancelled"))
		}
		return err
	}

	a.printResult(result)
	return nil
}

func (a *App) printResult(result domain.RunResult) {
	if a.verbose && result.RawText != "" {
		a.line(a.palette.Metadata("Raw: " + result.RawText))
	}
	if result.DeliveredVia != domain.DeliveredToSink {
		fmt.Fprintln(a.out, result.FinalText)
	}

	switch result.DeliveredVia {
	case domain.DeliveredToClipboard:
		a.line(a.palette.Metadata("(Copied to clipboard)"))
	case domain.DeliveredToSink:
		a.line(a.palette.Metadata("(Sent to pipe command)"))
	default:
		a.line(a.palette.Warn("(Clipboard unavailable)"))
	}

	cost := ""
	if _, ok := pricing.Lookup(a.completionModel()); ok {
		cost = pricing.Format(result.CostUSD)
	}
	a.line(ui.CompactStats(a.palette, ui.FormatTime(result.AudioSeconds), ui.FormatDuration(result.ProcessingTime), cost))

	if result.SavedTranscript != "" {
		a.line(a.palette.Metadata("Transcript saved to: " + result.SavedTranscript))
	}
	if result.SavedAudio != "" {
		a.line(a.palette.Metadata("Audio saved to: " + result.SavedAudio))
	}
}

func (a *App) completionModel() string {
	_, model := config.SplitModel(a.cfg.Settings.Model, "groq")
	return model
}

// Report prints a fatal error as one red line plus any preserved artifacts.
func (a *App) Report(err error) {
	a.clearLive()
	a.line(a.palette.Error("Error: " + err.Error()))

	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		if stageErr.BackupPath != "" {
			a.line(a.palette.Warn("Recording saved to: " + stageErr.BackupPath))
		}
		if stageErr.TranscriptBackupPath != "" {
			a.line(a.palette.Warn("Transcript saved to: " + stageErr.TranscriptBackupPath))
		}
	}
}

// SessionStateChanged clears the live line once recording ends.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.log.Debug("session state", slog.String("state", string(state)), slog.String("reason", string(reason)))
	if state == domain.SessionStateRecording {
		return
	}
	a.clearLive()
	if reason == domain.SessionReasonMaxDuration {
		a.line(a.palette.Warn("Maximum recording duration reached"))
	}
}

// RecordingProgress repaints the level meter and timer.
func (a *App) RecordingProgress(status domain.RecordingStatus) {
	if !a.interactive {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprint(a.status, ui.RecordingLine(a.palette, status.Wave, status.ElapsedSeconds, status.MaxSeconds, a.width))
	a.liveLines = 1
	if a.width < utf8.RuneCountInString(status.Wave)+ui.StatusTextWidth {
		a.liveLines = 2
	}
}

// StageChanged shows the pipeline step being worked on.
func (a *App) StageChanged(stage domain.Stage) {
	message := stageMessage(stage)
	if message == "" {
		a.clearLive()
		return
	}
	a.showStatus(message)
}

// PostProcessProgress appends the estimated completion percentage to the status line.
func (a *App) PostProcessProgress(percent int) {
	if !a.interactive {
		return
	}
	a.showStatus(fmt.Sprintf("%s %d%%", stageMessage(domain.StagePostProcessing), percent))
}

// SessionError shows recoverable problems. Fatal errors are reported from the returned error.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.log.Debug("session error", slog.String("code", string(code)), slog.String("detail", detail))
	switch code {
	case domain.ErrorCodeSink, domain.ErrorCodeClipboard, domain.ErrorCodeArchive:
		a.clearLive()
		a.line(a.palette.Warn(errorMessage(code) + ": " + detail))
	}
}

func (a *App) showStatus(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearLiveLocked()
	if !a.interactive {
		fmt.Fprintln(a.status, ui.Status(a.palette, message))
		return
	}
	fmt.Fprint(a.status, ui.ClearLine+ui.Status(a.palette, message))
	a.liveLines = 1
}

func (a *App) line(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.status, s)
}

func (a *App) clearLive() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearLiveLocked()
}

func (a *App) clearLiveLocked() {
	switch a.liveLines {
	case 0:
		return
	case 2:
		fmt.Fprint(a.status, "\r\n"+ui.ClearLine+ui.CursorUp)
	}
	fmt.Fprint(a.status, ui.ClearLine)
	a.liveLines = 0
}

func stageMessage(stage domain.Stage) string {
	switch stage {
	case domain.StageEncoding:
		return "Converting to MP3..."
	case domain.StageTranscribing:
		return "Transcribing..."
	case domain.StagePostProcessing:
		return "Post-processing..."
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode) string {
	switch code {
	case domain.ErrorCodeSink:
		return "Pipe command failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeArchive:
		return "Could not back up the recording"
	default:
		return string(code)
	}
}
