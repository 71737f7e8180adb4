package cli

import (
	"os/exec"

	"github.com/spf13/cobra"

	"whspr/internal/config"
	"whspr/internal/sink"
	"whspr/internal/vocab"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(deps.out())
			cfg := deps.Config
			ok := true

			if path, err := exec.LookPath(cfg.Audio.FFmpegCommand); err != nil {
				f.check("ffmpeg", false, "not found. Install ffmpeg or set WHSPR_FFMPEG_COMMAND")
				ok = false
			} else {
				f.check("ffmpeg", true, path)
			}
			f.check("Audio input", true, cfg.Audio.InputFormat+" "+cfg.Audio.InputDevice)

			for _, check := range keyChecks(cfg) {
				f.check(check.name, check.ok, check.detail)
				ok = ok && check.ok
			}

			if sink.Available() {
				f.check("Clipboard", true, "available")
			} else {
				f.check("Clipboard", false, "no clipboard utility found; text will only be printed")
			}

			f.check("Settings", true, cfg.Paths.SettingsFile)
			if doc, err := vocab.Load(config.VocabularyFile, cfg.Paths.VocabularyDir); err == nil && !doc.Empty() {
				f.check("Vocabulary", true, doc.Paths()[0])
			} else {
				f.check("Vocabulary", true, "none (optional)")
			}
			f.check("Backups", true, cfg.Paths.BackupDir)

			if ok {
				f.success("\nAll prerequisites met. Ready to dictate!")
			} else {
				f.warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}
}

type keyCheck struct {
	name   string
	ok     bool
	detail string
}

// keyChecks reports the API keys the configured providers need.
func keyChecks(cfg config.Config) []keyCheck {
	needed := map[string]bool{}
	transcription, _ := config.SplitModel(cfg.Settings.TranscriptionModel, "groq")
	completion, _ := config.SplitModel(cfg.Settings.Model, "groq")
	needed[transcription] = true
	needed[completion] = true

	var checks []keyCheck
	add := func(provider string, name string, env string, value string) {
		if !needed[provider] {
			return
		}
		if value != "" {
			checks = append(checks, keyCheck{name: name, ok: true, detail: "configured"})
			return
		}
		checks = append(checks, keyCheck{name: name, ok: false, detail: "not set. Export " + env})
	}
	add("groq", "Groq API key", "GROQ_API_KEY", cfg.Keys.Groq)
	add("anthropic", "Anthropic API key", "ANTHROPIC_API_KEY", cfg.Keys.Anthropic)
	add("deepgram", "Deepgram API key", "DEEPGRAM_API_KEY", cfg.Keys.Deepgram)
	if needed["ollama"] {
		checks = append(checks, keyCheck{name: "Ollama", ok: true, detail: cfg.OllamaHost})
	}
	return checks
}
