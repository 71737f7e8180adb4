// Package anthropic streams completions from the Anthropic Messages API.
package anthropic

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
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	APIVersion       = "2023-06-01"
	DefaultMaxTokens = 4096

	providerName = "anthropic"
)

var errMissingKey = errors.New("ANTHROPIC_API_KEY is not configured")

// Config controls Anthropic API access.
type Config struct {
	APIKey    string
	BaseURL   string
	MaxTokens int
}

type Completer struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewCompleter(cfg Config, client *http.Client, log *slog.Logger) *Completer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Completer{cfg: cfg, http: client, log: log}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	Stream    bool      `json:"stream"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage usage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *usage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Stream yields text deltas, then a cumulative usage chunk when the message ends.
func (c *Completer) Stream(ctx context.Context, req domain.CompletionRequest) iter.Seq2[domain.CompletionChunk, error] {
	return func(yield func(domain.CompletionChunk, error) bool) {
		resp, err := c.open(ctx, req)
		if err != nil {
			yield(domain.CompletionChunk{}, err)
			return
		}
		defer resp.Body.Close()

		var total domain.Usage
		for ev, err := range providers.ReadEvents(resp.Body) {
			if err != nil {
				yield(domain.CompletionChunk{}, err)
				return
			}

			var event streamEvent
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				yield(domain.CompletionChunk{}, fmt.Errorf("decoding stream event: %w", err))
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					total = total.Add(domain.Usage{InputTokens: event.Message.Usage.InputTokens, OutputTokens: event.Message.Usage.OutputTokens})
				}
			case "content_block_delta":
				if event.Delta == nil || event.Delta.Type != "text_delta" || event.Delta.Text == "" {
					continue
				}
				if !yield(domain.CompletionChunk{Text: event.Delta.Text}, nil) {
					return
				}
			case "message_delta":
				if event.Usage != nil {
					total = total.Add(domain.Usage{InputTokens: event.Usage.InputTokens, OutputTokens: event.Usage.OutputTokens})
				}
			case "message_stop":
				usage := total
				yield(domain.CompletionChunk{Usage: &usage}, nil)
				return
			case "error":
				msg := "unknown stream error"
				if event.Error != nil {
					msg = event.Error.Type + ": " + event.Error.Message
				}
				yield(domain.CompletionChunk{}, fmt.Errorf("anthropic stream error: %s", msg))
				return
			}
		}
		yield(domain.CompletionChunk{}, errors.New("anthropic stream ended before message_stop"))
	}
}

func (c *Completer) open(ctx context.Context, req domain.CompletionRequest) (*http.Response, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errMissingKey
	}

	body, err := json.Marshal(messagesRequest{
		Model:     req.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    req.System,
		Messages:  []message{{Role: "user", Content: req.User}},
		Stream:    true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("messages request: %w", err)
	}
	if err := providers.CheckResponse(providerName, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	c.log.Debug("anthropic stream opened", slog.String("model", req.Model))
	return resp, nil
}
