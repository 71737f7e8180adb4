package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

var ErrEmptyCommand = errors.New("pipe command is empty")

// Command pipes the final text into an external program on stdin.
type Command struct {
	name string
	args []string
	line string
	log  *slog.Logger
}

// NewCommand splits line with shell quoting rules. Environment variables are expanded.
func NewCommand(line string, log *slog.Logger) (*Command, error) {
	if log == nil {
		log = slog.Default()
	}
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	argv, err := parser.Parse(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("parsing pipe command %q: %w", line, err)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return &Command{name: argv[0], args: argv[1:], line: line, log: log}, nil
}

func (c *Command) String() string {
	return c.line
}

func (c *Command) Send(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = os.Stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.log.Debug("piping text to command", slog.String("command", c.line), slog.Int("bytes", len(text)))
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("pipe command %q failed: %w: %s", c.line, err, detail)
		}
		return fmt.Errorf("pipe command %q failed: %w", c.line, err)
	}
	return nil
}
