// Package groq talks to the OpenAI-compatible Groq API for speech-to-text and chat completions.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"whspr/internal/domain"
	"whspr/internal/providers"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	providerName   = "groq"
)

var errMissingKey = errors.New("GROQ_API_KEY is not configured")

// Config controls Groq API access.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client implements both the transcriber and the completer ports.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func New(cfg Config, client *http.Client, log *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, http: client, log: log}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, req domain.TranscriptionRequest) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", errMissingKey
	}

	body, contentType, err := transcriptionBody(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()
	if err := providers.CheckResponse(providerName, resp); err != nil {
		return "", err
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}
	c.log.Debug("transcription received", slog.String("model", req.Model), slog.Int("chars", len(out.Text)))
	return strings.TrimSpace(out.Text), nil
}

func transcriptionBody(req domain.TranscriptionRequest) (io.Reader, string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, "", fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("reading audio: %w", err)
	}

	fields := [][2]string{
		{"model", req.Model},
		{"temperature", "0"},
		{"response_format", "json"},
	}
	if req.Language != "" {
		fields = append(fields, [2]string{"language", req.Language})
	}
	for _, field := range fields {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Stream        bool          `json:"stream"`
	StreamOptions streamOptions `json:"stream_options"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
	XGroq *struct {
		Usage *chatUsage `json:"usage"`
	} `json:"x_groq"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c chatChunk) usage() *chatUsage {
	if c.Usage != nil {
		return c.Usage
	}
	if c.XGroq != nil {
		return c.XGroq.Usage
	}
	return nil
}

// Stream runs a streaming chat completion.
func (c *Client) Stream(ctx context.Context, req domain.CompletionRequest) iter.Seq2[domain.CompletionChunk, error] {
	return func(yield func(domain.CompletionChunk, error) bool) {
		resp, err := c.openChat(ctx, req)
		if err != nil {
			yield(domain.CompletionChunk{}, err)
			return
		}
		defer resp.Body.Close()

		for ev, err := range providers.ReadEvents(resp.Body) {
			if err != nil {
				yield(domain.CompletionChunk{}, err)
				return
			}
			if ev.Data == "[DONE]" {
				return
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				yield(domain.CompletionChunk{}, fmt.Errorf("decoding completion chunk: %w", err))
				return
			}
			if chunk.Error != nil {
				yield(domain.CompletionChunk{}, fmt.Errorf("groq stream error: %s", chunk.Error.Message))
				return
			}

			out := domain.CompletionChunk{}
			if len(chunk.Choices) > 0 {
				out.Text = chunk.Choices[0].Delta.Content
			}
			if u := chunk.usage(); u != nil {
				out.Usage = &domain.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
			}
			if out.Text == "" && out.Usage == nil {
				continue
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}

func (c *Client) openChat(ctx context.Context, req domain.CompletionRequest) (*http.Response, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errMissingKey
	}

	payload := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream:        true,
		StreamOptions: streamOptions{IncludeUsage: true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	if err := providers.CheckResponse(providerName, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}
