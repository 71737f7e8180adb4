// Package deepgram transcribes recorded files over Deepgram's live websocket API.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"whspr/internal/domain"
)

const (
	DefaultBaseURL = "https://api.deepgram.com/v1"
	DefaultModel   = "nova-2"

	defaultChunkSize   = 8192
	defaultStreamGrace = 30 * time.Second
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type Transcriber struct {
	cfg         Config
	dialer      *websocket.Dialer
	log         *slog.Logger
	chunkSize   int
	streamGrace time.Duration
}

func NewTranscriber(cfg Config, log *slog.Logger) *Transcriber {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Transcriber{
		cfg:         cfg,
		dialer:      &websocket.Dialer{Proxy: websocket.DefaultDialer.Proxy, HandshakeTimeout: 15 * time.Second},
		log:         log,
		chunkSize:   defaultChunkSize,
		streamGrace: defaultStreamGrace,
	}
}

// Transcribe streams the file at req.AudioPath and returns the joined final transcript.
func (t *Transcriber) Transcribe(ctx context.Context, req domain.TranscriptionRequest) (string, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return "", fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	cfg := t.cfg
	if req.Model != "" {
		cfg.Model = req.Model
	}
	if req.Language != "" {
		cfg.Language = req.Language
	}

	agg := &transcriptAggregator{}
	session, err := openSession(ctx, t.dialer, cfg, agg, t.log)
	if err != nil {
		return "", err
	}
	defer session.Close()

	if err := pumpAudio(f, t.chunkSize, session.send); err != nil {
		if failure := session.Close(); failure != nil {
			return "", failure
		}
		return "", err
	}
	if err := session.finish(); err != nil {
		return "", err
	}
	if err := waitForStream(session, t.streamGrace); err != nil {
		return "", err
	}

	text := agg.Text()
	t.log.Debug("deepgram transcript received", slog.String("model", cfg.Model), slog.Int("chars", len(text)))
	return text, nil
}

// pumpAudio reads r in chunkSize pieces and hands each to send.
func pumpAudio(r io.Reader, chunkSize int, send func([]byte) error) error {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if sendErr := send(buf[:n]); sendErr != nil {
				return sendErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading audio: %w", err)
		}
	}
}

type waitCloser interface {
	Wait() error
	Close() error
}

// waitForStream gives the service grace to deliver the last results before hanging up.
func waitForStream(stream waitCloser, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- stream.Wait() }()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = stream.Close()
		if err := <-done; err != nil {
			return err
		}
		return fmt.Errorf("deepgram did not finish within %s", grace)
	}
}
