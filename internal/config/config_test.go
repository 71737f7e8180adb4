package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	for _, key := range []string{
		"WHSPR_HOME", "WHSPR_SETTINGS", "WHSPR_VERBOSE", "WHSPR_MODEL", "WHSPR_LANGUAGE",
		"WHSPR_TRANSCRIPTION_MODEL", "WHSPR_SAVE_TRANSCRIPTS", "WHSPR_SAVE_AUDIO", "WHSPR_SAVE_DIR",
		"WHSPR_HISTORY", "WHSPR_METRICS_TEXTFILE", "WHSPR_HTTP2", "WHSPR_MAX_DURATION_SECONDS",
		"WHSPR_FFMPEG_COMMAND", "WHSPR_AUDIO_INPUT_FORMAT", "WHSPR_AUDIO_INPUT_DEVICE",
		"GROQ_API_KEY", "ANTHROPIC_API_KEY", "DEEPGRAM_API_KEY", "OLLAMA_HOST",
	} {
		t.Setenv(key, "")
	}
	return home
}

func TestLoadCreatesDefaultSettingsOnFirstRun(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	want := filepath.Join(home, ".config", "whspr", "settings.toml")
	if cfg.Paths.SettingsFile != want {
		t.Fatalf("unexpected settings path %q", cfg.Paths.SettingsFile)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected settings file to be written: %v", err)
	}
	if !strings.Contains(string(data), `model = "groq:openai/gpt-oss-120b"`) {
		t.Fatalf("unexpected defaults document:\n%s", data)
	}
	if cfg.Settings.Model != DefaultModel || cfg.Settings.TranscriptionModel != DefaultTranscriptionModel {
		t.Fatalf("unexpected defaults: %+v", cfg.Settings)
	}
	if cfg.Paths.BackupDir != filepath.Join(home, ".whspr", "recordings") {
		t.Fatalf("unexpected backup dir %q", cfg.Paths.BackupDir)
	}
	if cfg.Audio.MaxDuration != 900*time.Second {
		t.Fatalf("unexpected max duration %s", cfg.Audio.MaxDuration)
	}
	if !cfg.Settings.History {
		t.Fatalf("expected history enabled by default")
	}
}

func TestLoadReadsExistingTOML(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".config", "whspr", "settings.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	doc := "verbose = true\nsuffix = \" \"\nmodel = \"anthropic:claude-haiku-4-5\"\nsave_dir = \"~/notes\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.Settings.Verbose || cfg.Settings.Suffix != " " {
		t.Fatalf("unexpected settings: %+v", cfg.Settings)
	}
	if cfg.Settings.Model != "anthropic:claude-haiku-4-5" {
		t.Fatalf("unexpected model %q", cfg.Settings.Model)
	}
	if cfg.Settings.SaveDir != filepath.Join(home, "notes") {
		t.Fatalf("expected tilde expansion, got %q", cfg.Settings.SaveDir)
	}
	if cfg.Settings.SystemPrompt != DefaultSystemPrompt {
		t.Fatalf("expected missing keys to keep defaults")
	}
}

func TestLoadReadsYAMLSettings(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "whspr.yaml")
	if err := os.WriteFile(path, []byte("model: ollama:llama3.2\nlanguage: de\nhistory: false\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("WHSPR_SETTINGS", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Settings.Model != "ollama:llama3.2" || cfg.Settings.Language != "de" || cfg.Settings.History {
		t.Fatalf("unexpected settings: %+v", cfg.Settings)
	}
}

func TestLoadRejectsMalformedSettings(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "broken.toml")
	if err := os.WriteFile(path, []byte("model = [unterminated"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("WHSPR_SETTINGS", path)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parsing settings") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadRespectsEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("GROQ_API_KEY", " gsk-test ")
	t.Setenv("WHSPR_MODEL", "groq:llama-3.3-70b-versatile")
	t.Setenv("WHSPR_VERBOSE", "yes")
	t.Setenv("WHSPR_HTTP2", "off")
	t.Setenv("WHSPR_FFMPEG_COMMAND", "/opt/ffmpeg")
	t.Setenv("WHSPR_AUDIO_INPUT_DEVICE", "hw:1")
	t.Setenv("WHSPR_MAX_DURATION_SECONDS", "30")
	t.Setenv("OLLAMA_HOST", "http://gpu:11434")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Keys.Groq != "gsk-test" {
		t.Fatalf("unexpected groq key %q", cfg.Keys.Groq)
	}
	if cfg.Settings.Model != "groq:llama-3.3-70b-versatile" || !cfg.Settings.Verbose || cfg.Settings.HTTP2 {
		t.Fatalf("unexpected settings: %+v", cfg.Settings)
	}
	if cfg.Audio.FFmpegCommand != "/opt/ffmpeg" || cfg.Audio.InputDevice != "hw:1" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.MaxDuration != 30*time.Second {
		t.Fatalf("unexpected max duration %s", cfg.Audio.MaxDuration)
	}
	if cfg.OllamaHost != "http://gpu:11434" {
		t.Fatalf("unexpected ollama host %q", cfg.OllamaHost)
	}
}

func TestLoadClampsMaxDuration(t *testing.T) {
	isolate(t)
	t.Setenv("WHSPR_MAX_DURATION_SECONDS", "5000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.MaxDuration != MaxRecordingDuration {
		t.Fatalf("expected clamp to %s, got %s", MaxRecordingDuration, cfg.Audio.MaxDuration)
	}
}

func TestSplitModel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		provider string
		model    string
	}{
		{"groq:openai/gpt-oss-120b", "groq", "openai/gpt-oss-120b"},
		{"Anthropic:claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5"},
		{"ollama:llama3.2:3b", "ollama", "llama3.2:3b"},
		{"llama3", "groq", "llama3"},
		{":bare", "groq", "bare"},
	}
	for _, tc := range cases {
		provider, model := SplitModel(tc.in, "groq")
		if provider != tc.provider || model != tc.model {
			t.Fatalf("SplitModel(%q) = %q,%q want %q,%q", tc.in, provider, model, tc.provider, tc.model)
		}
	}
}

func TestDefaultInput(t *testing.T) {
	t.Parallel()

	if f, d := defaultInput("darwin"); f != "avfoundation" || d != ":default" {
		t.Fatalf("unexpected darwin input %q %q", f, d)
	}
	if f, d := defaultInput("linux"); f != "pulse" || d != "default" {
		t.Fatalf("unexpected linux input %q %q", f, d)
	}
}
