package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// MP3Quality is the libmp3lame VBR quality (0 best, 9 worst).
const MP3Quality = "2"

// FFMPEGEncoder converts captured audio into MP3 for upload.
type FFMPEGEncoder struct {
	command string
}

func NewFFMPEGEncoder(command string) *FFMPEGEncoder {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGEncoder{command: command}
}

func (e *FFMPEGEncoder) Encode(ctx context.Context, inputPath string, outputPath string) error {
	cmd := exec.CommandContext(ctx, e.command,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-codec:a", "libmp3lame",
		"-qscale:a", MP3Quality,
		"-y",
		outputPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		status := exitStatus(err)
		detail := string(bytes.TrimSpace(out))
		if detail == "" {
			return fmt.Errorf("mp3 conversion failed with code %d: %w", status.Code, err)
		}
		return fmt.Errorf("mp3 conversion failed with code %d: %w: %s", status.Code, err, detail)
	}
	return nil
}
