package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSystemPrompt        = `You are a transcription editor. Fix punctuation, capitalization, and obvious speech-to-text mistakes in the transcript you are given. Keep the speaker's wording, tone, and language. Do not summarize, answer, or add commentary. Return only the corrected transcript.`
	DefaultCustomPromptPrefix  = "Use this vocabulary and context when correcting names and terms:"
	DefaultTranscriptionPrefix = "Here is the raw transcript:"

	DefaultTranscriptionModel = "whisper-large-v3-turbo"
	DefaultModel              = "groq:openai/gpt-oss-120b"
	DefaultLanguage           = "en"

	MaxRecordingDuration = 900 * time.Second
	VocabularyFile       = "WHISPER.md"
)

// Config is the immutable runtime configuration, loaded once at startup.
type Config struct {
	Settings Settings
	Paths    Paths
	Keys     APIKeys
	Audio    AudioConfig
	Endpoints
}

// Settings mirrors the persisted settings document.
type Settings struct {
	Verbose             bool   `toml:"verbose" yaml:"verbose"`
	Suffix              string `toml:"suffix" yaml:"suffix"`
	TranscriptionModel  string `toml:"transcription_model" yaml:"transcription_model"`
	Language            string `toml:"language" yaml:"language"`
	Model               string `toml:"model" yaml:"model"`
	SystemPrompt        string `toml:"system_prompt" yaml:"system_prompt"`
	CustomPromptPrefix  string `toml:"custom_prompt_prefix" yaml:"custom_prompt_prefix"`
	TranscriptionPrefix string `toml:"transcription_prefix" yaml:"transcription_prefix"`
	SaveTranscripts     bool   `toml:"save_transcripts" yaml:"save_transcripts"`
	SaveAudio           bool   `toml:"save_audio" yaml:"save_audio"`
	SaveDir             string `toml:"save_dir" yaml:"save_dir"`
	History             bool   `toml:"history" yaml:"history"`
	MetricsTextfile     string `toml:"metrics_textfile" yaml:"metrics_textfile"`
	HTTP2               bool   `toml:"http2" yaml:"http2"`
}

type Paths struct {
	SettingsFile string
	// DataDir holds backups, the vocabulary file, and history.
	DataDir     string
	BackupDir   string
	HistoryFile string
	// VocabularyDir is the per-user location of the global vocabulary file.
	VocabularyDir string
}

type APIKeys struct {
	Groq      string
	Anthropic string
	Deepgram  string
}

type Endpoints struct {
	GroqBaseURL      string
	AnthropicBaseURL string
	DeepgramBaseURL  string
	OllamaHost       string
}

type AudioConfig struct {
	FFmpegCommand string
	InputFormat   string
	InputDevice   string
	MaxDuration   time.Duration
}

// DefaultSettings is written to disk on first run.
func DefaultSettings() Settings {
	return Settings{
		TranscriptionModel:  DefaultTranscriptionModel,
		Language:            DefaultLanguage,
		Model:               DefaultModel,
		SystemPrompt:        DefaultSystemPrompt,
		CustomPromptPrefix:  DefaultCustomPromptPrefix,
		TranscriptionPrefix: DefaultTranscriptionPrefix,
		History:             true,
		HTTP2:               true,
	}
}

// Load resolves the settings document, creating it on first run, then applies environment overrides.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	dataDir := envOrDefault("WHSPR_HOME", filepath.Join(home, ".whspr"))
	settingsPath := strings.TrimSpace(os.Getenv("WHSPR_SETTINGS"))
	if settingsPath == "" {
		settingsPath = filepath.Join(configDir(home), "settings.toml")
	}
	settingsPath = expandTilde(settingsPath, home)

	settings, err := loadOrCreate(settingsPath)
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&settings)
	applySettingsOverrides(&settings)

	if settings.SaveDir == "" {
		settings.SaveDir = filepath.Join(dataDir, "saved")
	}
	settings.SaveDir = expandTilde(settings.SaveDir, home)
	settings.MetricsTextfile = expandTilde(settings.MetricsTextfile, home)

	inputFormat, inputDevice := defaultInput(runtime.GOOS)
	cfg := Config{
		Settings: settings,
		Paths: Paths{
			SettingsFile:  settingsPath,
			DataDir:       dataDir,
			BackupDir:     filepath.Join(dataDir, "recordings"),
			HistoryFile:   filepath.Join(dataDir, "history.db"),
			VocabularyDir: dataDir,
		},
		Keys: APIKeys{
			Groq:      strings.TrimSpace(os.Getenv("GROQ_API_KEY")),
			Anthropic: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			Deepgram:  strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
		},
		Endpoints: Endpoints{
			GroqBaseURL:      envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			AnthropicBaseURL: envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
			DeepgramBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			OllamaHost:       envOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		},
		Audio: AudioConfig{
			FFmpegCommand: envOrDefault("WHSPR_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:   envOrDefault("WHSPR_AUDIO_INPUT_FORMAT", inputFormat),
			InputDevice:   envOrDefault("WHSPR_AUDIO_INPUT_DEVICE", inputDevice),
			MaxDuration:   time.Duration(envOrDefaultInt("WHSPR_MAX_DURATION_SECONDS", int(MaxRecordingDuration/time.Second))) * time.Second,
		},
	}

	if cfg.Audio.MaxDuration <= 0 || cfg.Audio.MaxDuration > MaxRecordingDuration {
		cfg.Audio.MaxDuration = MaxRecordingDuration
	}

	return cfg, nil
}

func loadOrCreate(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		settings := DefaultSettings()
		if err := writeSettings(path, settings); err != nil {
			return Settings{}, err
		}
		return settings, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings %q: %w", path, err)
	}

	settings := DefaultSettings()
	if isYAML(path) {
		err = yaml.Unmarshal(data, &settings)
	} else {
		_, err = toml.Decode(string(data), &settings)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("parsing settings %q: %w", path, err)
	}
	return settings, nil
}

func writeSettings(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	var buf bytes.Buffer
	if isYAML(path) {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(settings); err != nil {
			return fmt.Errorf("encoding settings: %w", err)
		}
		_ = enc.Close()
	} else if err := toml.NewEncoder(&buf).Encode(settings); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing settings %q: %w", path, err)
	}
	return nil
}

func applyDefaults(s *Settings) {
	d := DefaultSettings()
	if strings.TrimSpace(s.TranscriptionModel) == "" {
		s.TranscriptionModel = d.TranscriptionModel
	}
	if strings.TrimSpace(s.Language) == "" {
		s.Language = d.Language
	}
	if strings.TrimSpace(s.Model) == "" {
		s.Model = d.Model
	}
	if strings.TrimSpace(s.SystemPrompt) == "" {
		s.SystemPrompt = d.SystemPrompt
	}
	if strings.TrimSpace(s.CustomPromptPrefix) == "" {
		s.CustomPromptPrefix = d.CustomPromptPrefix
	}
	if strings.TrimSpace(s.TranscriptionPrefix) == "" {
		s.TranscriptionPrefix = d.TranscriptionPrefix
	}
}

func applySettingsOverrides(s *Settings) {
	s.Verbose = envOrDefaultBool("WHSPR_VERBOSE", s.Verbose)
	s.TranscriptionModel = envOrDefault("WHSPR_TRANSCRIPTION_MODEL", s.TranscriptionModel)
	s.Language = envOrDefault("WHSPR_LANGUAGE", s.Language)
	s.Model = envOrDefault("WHSPR_MODEL", s.Model)
	s.SaveTranscripts = envOrDefaultBool("WHSPR_SAVE_TRANSCRIPTS", s.SaveTranscripts)
	s.SaveAudio = envOrDefaultBool("WHSPR_SAVE_AUDIO", s.SaveAudio)
	s.SaveDir = envOrDefault("WHSPR_SAVE_DIR", s.SaveDir)
	s.History = envOrDefaultBool("WHSPR_HISTORY", s.History)
	s.MetricsTextfile = envOrDefault("WHSPR_METRICS_TEXTFILE", s.MetricsTextfile)
	s.HTTP2 = envOrDefaultBool("WHSPR_HTTP2", s.HTTP2)
}

// SplitModel splits a provider:model identifier. A bare model uses fallbackProvider.
func SplitModel(id string, fallbackProvider string) (provider string, model string) {
	id = strings.TrimSpace(id)
	provider, model, found := strings.Cut(id, ":")
	if !found {
		return fallbackProvider, id
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if provider == "" {
		provider = fallbackProvider
	}
	return provider, model
}

func defaultInput(goos string) (format string, device string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":default"
	default:
		return "pulse", "default"
	}
}

func configDir(home string) string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "whspr")
	}
	return filepath.Join(home, ".config", "whspr")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func expandTilde(path string, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
