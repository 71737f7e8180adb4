package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"whspr/internal/archive"
	"whspr/internal/audio"
	"whspr/internal/config"
	"whspr/internal/history"
	"whspr/internal/metrics"
	"whspr/internal/ports"
	"whspr/internal/providers"
	"whspr/internal/providers/anthropic"
	"whspr/internal/providers/deepgram"
	"whspr/internal/providers/groq"
	"whspr/internal/providers/ollama"
	"whspr/internal/sink"
	"whspr/internal/terminal"
	"whspr/internal/ui"
	"whspr/internal/usecase"
	"whspr/internal/vocab"
)

// Options carries the per-invocation inputs that do not come from the settings document.
type Options struct {
	PipeCommand string
	Events      ports.EventSink
	// Clipboard overrides the system clipboard.
	Clipboard ports.Clipboard
	// Keys overrides the terminal key listener on Stdin.
	Keys      ports.KeyListener
	Stdin     *os.File
	WaveWidth int
	Log       *slog.Logger
}

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Pipeline   *usecase.Pipeline
	Vocabulary vocab.Document
	History    *history.Store
	Metrics    *metrics.Metrics
	Archive    *archive.Archive

	// CompletionModel is the bare model name sent to the completion backend.
	CompletionModel string
	log             *slog.Logger
}

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, cfg config.Config, opts Options) (*Services, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.WaveWidth <= 0 {
		opts.WaveWidth = ui.DefaultWaveWidth
	}

	client := providers.NewHTTPClient(cfg.Settings.HTTP2)

	transcriber, transcriptionModel, err := newTranscriber(cfg, client, log)
	if err != nil {
		return nil, err
	}
	completer, completionModel, err := newCompleter(cfg, client, log)
	if err != nil {
		return nil, err
	}

	var commandSink ports.Sink
	if opts.PipeCommand != "" {
		cmd, err := sink.NewCommand(opts.PipeCommand, log)
		if err != nil {
			return nil, fmt.Errorf("invalid pipe command: %w", err)
		}
		commandSink = cmd
	}

	clip := opts.Clipboard
	if clip == nil {
		clip = sink.NewSystemClipboard()
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	dirs := []string{cfg.Paths.VocabularyDir}
	if cwd != "" {
		dirs = append(dirs, cwd)
	}
	doc, err := vocab.Load(config.VocabularyFile, dirs...)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}

	services := &Services{
		Config:          cfg,
		Vocabulary:      doc,
		Metrics:         metrics.NewMetrics(),
		Archive:         archive.New(cfg.Paths.BackupDir, cfg.Settings.SaveDir),
		CompletionModel: completionModel,
		log:             log,
	}

	var runHistory ports.History
	if cfg.Settings.History {
		store, err := history.Open(ctx, cfg.Paths.HistoryFile, log)
		if err != nil {
			log.Warn("run history disabled", slog.String("error", err.Error()))
		} else {
			services.History = store
			runHistory = store
		}
	}

	keys := opts.Keys
	if keys == nil {
		keys = terminal.NewKeyListener(opts.Stdin, log)
	}

	recorder := usecase.NewRecorder(
		audio.NewFFMPEGCapture(cfg.Audio.FFmpegCommand),
		keys,
		opts.Events,
		log,
		usecase.RecorderConfig{
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
			MaxDuration: cfg.Audio.MaxDuration,
			WaveWidth:   opts.WaveWidth,
			Probe:       audio.ProbeWAV,
		},
	)

	services.Pipeline = usecase.NewPipeline(
		usecase.PipelineDeps{
			Capture:     recorder,
			Encoder:     audio.NewFFMPEGEncoder(cfg.Audio.FFmpegCommand),
			Transcriber: transcriber,
			Completer:   completer,
			Clipboard:   clip,
			Sink:        commandSink,
			Archive:     services.Archive,
			History:     runHistory,
			Metrics:     services.Metrics,
			Events:      opts.Events,
			Log:         log,
		},
		usecase.PipelineConfig{
			Prompt: usecase.PromptConfig{
				Model:               completionModel,
				SystemPrompt:        cfg.Settings.SystemPrompt,
				CustomPromptPrefix:  cfg.Settings.CustomPromptPrefix,
				TranscriptionPrefix: cfg.Settings.TranscriptionPrefix,
				Vocabulary:          doc.Text(),
			},
			TranscriptionModel: transcriptionModel,
			Language:           cfg.Settings.Language,
			ModelLabel:         cfg.Settings.Model,
			Suffix:             cfg.Settings.Suffix,
			SaveTranscripts:    cfg.Settings.SaveTranscripts,
			SaveAudio:          cfg.Settings.SaveAudio,
		},
	)

	return services, nil
}

// Close flushes metrics and releases the history store.
func (s *Services) Close() error {
	var errs []error
	if path := s.Config.Settings.MetricsTextfile; path != "" {
		if err := s.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newTranscriber(cfg config.Config, client *http.Client, log *slog.Logger) (ports.Transcriber, string, error) {
	provider, model := config.SplitModel(cfg.Settings.TranscriptionModel, "groq")
	switch provider {
	case "groq":
		return groq.New(groq.Config{APIKey: cfg.Keys.Groq, BaseURL: cfg.GroqBaseURL}, client, log), model, nil
	case "deepgram":
		return deepgram.NewTranscriber(deepgram.Config{
			APIKey:      cfg.Keys.Deepgram,
			APIBaseURL:  cfg.DeepgramBaseURL,
			Model:       model,
			Language:    cfg.Settings.Language,
			SmartFormat: true,
		}, log), model, nil
	default:
		return nil, "", fmt.Errorf("unknown transcription provider %q", provider)
	}
}

func newCompleter(cfg config.Config, client *http.Client, log *slog.Logger) (ports.Completer, string, error) {
	provider, model := config.SplitModel(cfg.Settings.Model, "groq")
	switch provider {
	case "groq":
		return groq.New(groq.Config{APIKey: cfg.Keys.Groq, BaseURL: cfg.GroqBaseURL}, client, log), model, nil
	case "anthropic":
		return anthropic.NewCompleter(anthropic.Config{APIKey: cfg.Keys.Anthropic, BaseURL: cfg.AnthropicBaseURL}, client, log), model, nil
	case "ollama":
		return ollama.NewCompleter(cfg.OllamaHost, client, log), model, nil
	default:
		return nil, "", fmt.Errorf("unknown model provider %q", provider)
	}
}
