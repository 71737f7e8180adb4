package usecase

import (
	"strings"

	"whspr/internal/domain"
)

// PromptConfig is the static part of every cleanup request.
type PromptConfig struct {
	Model               string
	SystemPrompt        string
	CustomPromptPrefix  string
	TranscriptionPrefix string
	// Vocabulary is the merged custom vocabulary; empty omits the context block.
	Vocabulary string
}

// BuildCompletionRequest fences the vocabulary and the raw transcript in code blocks
// after their prefixes.
func BuildCompletionRequest(cfg PromptConfig, raw string) domain.CompletionRequest {
	var b strings.Builder
	if vocab := strings.TrimSpace(cfg.Vocabulary); vocab != "" {
		b.WriteString(cfg.CustomPromptPrefix)
		b.WriteString("\n```\n")
		b.WriteString(vocab)
		b.WriteString("\n```\n\n")
	}
	b.WriteString(cfg.TranscriptionPrefix)
	b.WriteString("\n```\n")
	b.WriteString(raw)
	b.WriteString("\n```")

	return domain.CompletionRequest{
		Model:  cfg.Model,
		System: cfg.SystemPrompt,
		User:   strings.TrimSpace(b.String()),
	}
}
