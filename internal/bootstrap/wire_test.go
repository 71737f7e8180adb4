package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whspr/internal/config"
	"whspr/internal/providers/anthropic"
	"whspr/internal/providers/deepgram"
	"whspr/internal/providers/groq"
	"whspr/internal/providers/ollama"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	settings := config.DefaultSettings()
	settings.SaveDir = filepath.Join(dir, "saved")
	return config.Config{
		Settings: settings,
		Paths: config.Paths{
			DataDir:       dir,
			BackupDir:     filepath.Join(dir, "recordings"),
			HistoryFile:   filepath.Join(dir, "history.db"),
			VocabularyDir: dir,
		},
		Keys:  config.APIKeys{Groq: "test-key"},
		Audio: config.AudioConfig{FFmpegCommand: "ffmpeg", InputFormat: "pulse", InputDevice: "default"},
	}
}

func TestBuildSuccess(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.Paths.VocabularyDir, config.VocabularyFile), []byte("Kubernetes\n"), 0o600); err != nil {
		t.Fatalf("write vocab: %v", err)
	}

	services, err := Build(context.Background(), cfg, Options{Log: newLogger(), Clipboard: noopClipboard{}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()

	if services.Pipeline == nil {
		t.Fatalf("expected pipeline")
	}
	if services.History == nil {
		t.Fatalf("expected history store")
	}
	if services.CompletionModel != "openai/gpt-oss-120b" {
		t.Fatalf("unexpected completion model %q", services.CompletionModel)
	}
	if !strings.Contains(services.Vocabulary.Text(), "Kubernetes") {
		t.Fatalf("expected vocabulary to be loaded, got %q", services.Vocabulary.Text())
	}
}

func TestBuildWithoutHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settings.History = false

	services, err := Build(context.Background(), cfg, Options{Log: newLogger(), Clipboard: noopClipboard{}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Close()
	if services.History != nil {
		t.Fatalf("did not expect history store")
	}
}

func TestBuildRejectsBadPipeCommand(t *testing.T) {
	cfg := testConfig(t)
	_, err := Build(context.Background(), cfg, Options{Log: newLogger(), Clipboard: noopClipboard{}, PipeCommand: `tee "unterminated`})
	if err == nil {
		t.Fatalf("expected pipe command error")
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settings.Model = "mystery:model"
	if _, err := Build(context.Background(), cfg, Options{Log: newLogger(), Clipboard: noopClipboard{}}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestCloseWritesMetricsTextfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settings.History = false
	cfg.Settings.MetricsTextfile = filepath.Join(t.TempDir(), "whspr.prom")

	services, err := Build(context.Background(), cfg, Options{Log: newLogger(), Clipboard: noopClipboard{}})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	services.Metrics.RecordRun("delivered")
	if err := services.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(cfg.Settings.MetricsTextfile)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), "whspr_runs_total") {
		t.Fatalf("expected runs counter in textfile:\n%s", data)
	}
}

func TestProviderSelection(t *testing.T) {
	cfg := testConfig(t)
	log := newLogger()

	cases := []struct {
		model string
		check func(any) bool
		name  string
	}{
		{"groq:openai/gpt-oss-120b", func(v any) bool { _, ok := v.(*groq.Client); return ok }, "openai/gpt-oss-120b"},
		{"anthropic:claude-sonnet-4-5", func(v any) bool { _, ok := v.(*anthropic.Completer); return ok }, "claude-sonnet-4-5"},
		{"ollama:llama3.2:latest", func(v any) bool { _, ok := v.(*ollama.Completer); return ok }, "llama3.2:latest"},
	}
	for _, tc := range cases {
		cfg.Settings.Model = tc.model
		completer, model, err := newCompleter(cfg, nil, log)
		if err != nil {
			t.Fatalf("%s: %v", tc.model, err)
		}
		if !tc.check(completer) || model != tc.name {
			t.Fatalf("%s: unexpected completer %T model %q", tc.model, completer, model)
		}
	}

	cfg.Settings.TranscriptionModel = "deepgram:nova-2"
	transcriber, model, err := newTranscriber(cfg, nil, log)
	if err != nil {
		t.Fatalf("deepgram: %v", err)
	}
	if _, ok := transcriber.(*deepgram.Transcriber); !ok || model != "nova-2" {
		t.Fatalf("unexpected transcriber %T model %q", transcriber, model)
	}
}

type noopClipboard struct{}

func (noopClipboard) SetText(context.Context, string) error { return nil }
