// Package providers holds the HTTP plumbing shared by the speech and completion backends.
package providers

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const (
	defaultDialTimeout = 10 * time.Second
	maxErrorBody       = 4096
	maxLineSize        = 1 << 20
)

// NewHTTPClient builds the client every HTTP backend shares. Streaming responses
// rely on the request context for cancellation, so there is no overall timeout.
func NewHTTPClient(enableHTTP2 bool) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   defaultDialTimeout,
		ResponseHeaderTimeout: 2 * time.Minute,
	}
	if enableHTTP2 {
		_ = http2.ConfigureTransport(tr)
	}
	return &http.Client{Transport: tr}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// CheckResponse turns a non-2xx response into a *StatusError carrying a trimmed body.
func CheckResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// ReadEvents yields server-sent events until the body ends.
func ReadEvents(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		var current Event
		var data []string
		flush := func() bool {
			if len(data) == 0 {
				current = Event{}
				return true
			}
			current.Data = strings.Join(data, "\n")
			ev := current
			current, data = Event{}, nil
			return yield(ev, nil)
		}

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, ":"):
			case strings.HasPrefix(line, "event:"):
				current.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Event{}, fmt.Errorf("reading event stream: %w", err))
			return
		}
		flush()
	}
}

// ReadLines yields non-empty lines of a newline-delimited body.
func ReadLines(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("reading stream: %w", err))
		}
	}
}
