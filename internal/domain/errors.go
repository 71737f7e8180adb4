package domain

import (
	"errors"
	"fmt"
)

// ErrUserCancelled is returned when the user aborts a recording. It is not a failure.
var ErrUserCancelled = errors.New("recording cancelled")

// StageError is a fatal pipeline failure.
type StageError struct {
	Code  ErrorCode
	Stage Stage
	Err   error

	// BackupPath is set when a recoverable artifact was preserved.
	BackupPath string
	// TranscriptBackupPath is set when the raw transcript was preserved too.
	TranscriptBackupPath string
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Stage)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether an artifact was preserved for the user.
func (e *StageError) Recoverable() bool {
	return e.BackupPath != ""
}
