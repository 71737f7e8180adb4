package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// Archive moves failed-run artifacts to the backup directory and saves
// successful runs when durable saving is enabled.
type Archive struct {
	backupDir string
	saveDir   string
	clock     func() time.Time
}

func New(backupDir string, saveDir string) *Archive {
	return &Archive{backupDir: backupDir, saveDir: saveDir, clock: time.Now}
}

// Backup moves src to <backupDir>/recording-<unix-ms><ext of src>.
func (a *Archive) Backup(src string) (string, error) {
	dst := filepath.Join(a.backupDir, a.name("recording", filepath.Ext(src)))
	if err := os.MkdirAll(a.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	if err := move(src, dst); err != nil {
		return "", fmt.Errorf("back up %q: %w", src, err)
	}
	return dst, nil
}

// BackupText writes text beside a backup, reusing its base name with a .txt extension.
func (a *Archive) BackupText(beside string, text string) (string, error) {
	dst := beside[:len(beside)-len(filepath.Ext(beside))] + ".txt"
	if err := os.WriteFile(dst, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write transcript backup: %w", err)
	}
	return dst, nil
}

// SaveTranscript writes text to <saveDir>/transcript-<unix-ms>.txt.
func (a *Archive) SaveTranscript(text string) (string, error) {
	if err := os.MkdirAll(a.saveDir, 0o755); err != nil {
		return "", fmt.Errorf("create save dir: %w", err)
	}
	dst := filepath.Join(a.saveDir, a.name("transcript", ".txt"))
	if err := os.WriteFile(dst, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	return dst, nil
}

// SaveAudio copies src to <saveDir>/audio-<unix-ms><ext>, leaving src in place.
func (a *Archive) SaveAudio(src string) (string, error) {
	if err := os.MkdirAll(a.saveDir, 0o755); err != nil {
		return "", fmt.Errorf("create save dir: %w", err)
	}
	dst := filepath.Join(a.saveDir, a.name("audio", filepath.Ext(src)))
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("save audio: %w", err)
	}
	return dst, nil
}

func (a *Archive) name(prefix string, ext string) string {
	return prefix + "-" + strconv.FormatInt(a.clock().UnixMilli(), 10) + ext
}

// move renames src, falling back to copy+remove across filesystems.
func move(src string, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
