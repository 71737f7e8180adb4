package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"whspr/internal/domain"
	"whspr/internal/ports"
)

// InterruptedExitCode is what ffmpeg returns after handling SIGINT.
const InterruptedExitCode = ports.InterruptedExitCode

const (
	defaultStopGrace = 3 * time.Second
	stderrTailLines  = 8
	maxStderrLine    = 1 << 20
)

var loudnessPattern = regexp.MustCompile(`FTPK:\s*(-?[\d.]+)\s+(-?[\d.]+)\s+dBFS`)

// FFMPEGCapture records the microphone to a file using ffmpeg, with ebur128 loudness reports.
type FFMPEGCapture struct {
	command   string
	stopGrace time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, stopGrace: defaultStopGrace}
}

func captureArgs(cfg ports.CaptureConfig) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-af", "ebur128=peak=true",
	}
	if cfg.MaxDuration > 0 {
		args = append(args, "-t", strconv.Itoa(int(cfg.MaxDuration/time.Second)))
	}
	return append(args, "-y", cfg.OutputPath)
}

// Start spawns ffmpeg. The process is not bound to ctx: it must be stopped
// through Stop so the encoder can finalize the output file.
func (c *FFMPEGCapture) Start(_ context.Context, cfg ports.CaptureConfig) (ports.CaptureProcess, error) {
	if cfg.OutputPath == "" {
		return nil, errors.New("capture output path is required")
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	cmd := exec.Command(c.command, captureArgs(cfg)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &ffmpegProcess{
		process:   cmd.Process,
		levels:    make(chan domain.LoudnessEvent, 16),
		done:      make(chan struct{}),
		stopGrace: c.stopGrace,
	}
	go p.run(cmd, stderr)
	return p, nil
}

type ffmpegProcess struct {
	process   *os.Process
	levels    chan domain.LoudnessEvent
	done      chan struct{}
	stopGrace time.Duration

	tailMu sync.Mutex
	tail   []string

	status ports.ExitStatus

	stopOnce sync.Once
	stopErr  error
}

func (p *ffmpegProcess) run(cmd *exec.Cmd, stderr io.Reader) {
	err := readDiagnostics(stderr, func(line string) {
		p.remember(line)
		event, ok := ParseLoudness(line)
		if !ok {
			return
		}
		select {
		case p.levels <- event:
		default:
		}
	})
	if err != nil {
		p.remember("stderr: " + err.Error())
	}
	close(p.levels)

	p.status = exitStatus(cmd.Wait())
	p.status.Detail = p.detail()
	close(p.done)
}

// readDiagnostics hands each stderr line to handle. If scanning fails the rest of
// the stream is discarded so ffmpeg never blocks on a full pipe.
func readDiagnostics(r io.Reader, handle func(line string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	scanner.Split(scanDiagnosticLines)
	for scanner.Scan() {
		handle(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func (p *ffmpegProcess) remember(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	p.tail = append(p.tail, line)
	if len(p.tail) > stderrTailLines {
		p.tail = p.tail[len(p.tail)-stderrTailLines:]
	}
}

func (p *ffmpegProcess) detail() string {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	return strings.Join(p.tail, "\n")
}

func (p *ffmpegProcess) Levels() <-chan domain.LoudnessEvent {
	return p.levels
}

func (p *ffmpegProcess) Done() <-chan struct{} {
	return p.done
}

func (p *ffmpegProcess) Wait() ports.ExitStatus {
	<-p.done
	return p.status
}

// Stop interrupts ffmpeg and kills it if it has not exited within the grace period.
func (p *ffmpegProcess) Stop(graceful bool) error {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if !graceful {
			p.stopErr = ignoreFinished(p.process.Kill())
			return
		}

		if err := p.process.Signal(os.Interrupt); err != nil {
			p.stopErr = ignoreFinished(err)
			return
		}

		timer := time.NewTimer(p.stopGrace)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			p.stopErr = ignoreFinished(p.process.Kill())
		}
	})
	return p.stopErr
}

// ParseLoudness extracts the two channel values of an ebur128 true-peak report.
func ParseLoudness(line string) (domain.LoudnessEvent, bool) {
	m := loudnessPattern.FindStringSubmatch(line)
	if m == nil {
		return domain.LoudnessEvent{}, false
	}
	left, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return domain.LoudnessEvent{}, false
	}
	right, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return domain.LoudnessEvent{}, false
	}
	return domain.LoudnessEvent{Left: left, Right: right}, true
}

// scanDiagnosticLines splits on both \n and \r, since ffmpeg rewrites its status line in place.
func scanDiagnosticLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitStatus(err error) ports.ExitStatus {
	if err == nil {
		return ports.ExitStatus{Code: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status := ports.ExitStatus{Code: exitErr.ExitCode(), Err: err}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status.Interrupted = ws.Signal() == syscall.SIGINT
		}
		return status
	}
	return ports.ExitStatus{Code: -1, Err: err}
}

func ignoreFinished(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
