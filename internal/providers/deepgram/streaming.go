package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

var closeStreamMessage = []byte(`{"type":"CloseStream"}`)

// listenSession is one connection to the live listen endpoint. Writes happen on the
// caller's goroutine; a single reader feeds every transcript into the aggregator.
type listenSession struct {
	conn *websocket.Conn
	agg  *transcriptAggregator
	log  *slog.Logger

	readDone  chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func openSession(ctx context.Context, dialer *websocket.Dialer, cfg Config, agg *transcriptAggregator, log *slog.Logger) (*listenSession, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}
	target, err := buildListenURL(cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{"Authorization": []string{"Token " + cfg.APIKey}}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram handshake failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}

	s := &listenSession{conn: conn, agg: agg, log: log, readDone: make(chan struct{})}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			_ = s.Close()
		case <-s.readDone:
		}
	}()
	return s, nil
}

func (s *listenSession) send(chunk []byte) error {
	if err := s.failure(); err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("sending audio: %w", err)
	}
	return nil
}

// finish tells the service no more audio follows; it flushes remaining results and hangs up.
func (s *listenSession) finish() error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage); err != nil {
		return fmt.Errorf("closing audio stream: %w", err)
	}
	return nil
}

func (s *listenSession) Wait() error {
	<-s.readDone
	return s.failure()
}

func (s *listenSession) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		_ = s.conn.Close()
	})
	<-s.readDone
	return s.failure()
}

func (s *listenSession) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *listenSession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *listenSession) readLoop() {
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.fail(fmt.Errorf("reading deepgram results: %w", err))
			}
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.log.Debug("skipping undecodable deepgram message", slog.String("error", err.Error()))
			continue
		}

		switch {
		case strings.EqualFold(msg.Type, "Error"):
			s.fail(errors.New(msg.errorText()))
			return
		case msg.transcript() != "":
			s.agg.Add(transcriptEvent{Text: msg.transcript(), Final: msg.IsFinal || msg.SpeechFinal})
		}
	}
}

type alternative struct {
	Transcript string `json:"transcript"`
}

type listenMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

func (m listenMessage) transcript() string {
	if len(m.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Channel.Alternatives[0].Transcript)
}

func (m listenMessage) errorText() string {
	for _, text := range []string{m.Description, m.Message} {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return "deepgram returned an unknown error"
}

// buildListenURL omits encoding parameters so the service detects the mp3 container.
func buildListenURL(cfg Config) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	q := url.Values{}
	q.Set("model", cfg.Model)
	q.Set("punctuate", "true")
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
