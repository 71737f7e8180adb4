// Package ollama streams completions from a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"whspr/internal/domain"
	"whspr/internal/providers"
)

const (
	DefaultHost  = "http://localhost:11434"
	providerName = "ollama"
)

type Completer struct {
	host string
	http *http.Client
	log  *slog.Logger
}

func NewCompleter(host string, client *http.Client, log *slog.Logger) *Completer {
	if strings.TrimSpace(host) == "" {
		host = DefaultHost
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Completer{host: strings.TrimRight(host, "/"), http: client, log: log}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	EvalCount       int    `json:"eval_count,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (c *Completer) Stream(ctx context.Context, req domain.CompletionRequest) iter.Seq2[domain.CompletionChunk, error] {
	return func(yield func(domain.CompletionChunk, error) bool) {
		resp, err := c.open(ctx, req)
		if err != nil {
			yield(domain.CompletionChunk{}, err)
			return
		}
		defer resp.Body.Close()

		for line, err := range providers.ReadLines(resp.Body) {
			if err != nil {
				yield(domain.CompletionChunk{}, err)
				return
			}

			var chunk generateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield(domain.CompletionChunk{}, fmt.Errorf("decoding generate chunk: %w", err))
				return
			}
			if chunk.Error != "" {
				yield(domain.CompletionChunk{}, fmt.Errorf("ollama error: %s", chunk.Error))
				return
			}

			out := domain.CompletionChunk{Text: chunk.Response}
			if chunk.Done {
				out.Usage = &domain.Usage{InputTokens: chunk.PromptEvalCount, OutputTokens: chunk.EvalCount}
			}
			if out.Text != "" || out.Usage != nil {
				if !yield(out, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		yield(domain.CompletionChunk{}, errors.New("ollama stream ended before done"))
	}
}

func (c *Completer) open(ctx context.Context, req domain.CompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: req.User,
		System: req.System,
		Stream: true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}
	if err := providers.CheckResponse(providerName, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	c.log.Debug("ollama stream opened", slog.String("model", req.Model), slog.String("host", c.host))
	return resp, nil
}
