package models

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrSyncInProgress      = errors.New("sync already in progress")
	ErrSyncCancelled       = errors.New("sync cancelled by user")
	ErrNoConfiguredService = errors.New("no sync service configured")
	ErrNotSupported        = errors.New("sync service not supported on this system")
	ErrNoteNotFound        = errors.New("note not found")
)

// ServerCreationError wraps a failure to construct the remote store.
type ServerCreationError struct {
	Service string
	Err     error
}

func (e *ServerCreationError) Error() string {
	return fmt.Sprintf("create sync server for service %q: %v", e.Service, e.Err)
}

func (e *ServerCreationError) Unwrap() error {
	return e.Err
}

// UploadError reports a per-note upload failure. These are logged and
// skipped; they never abort the pass on their own.
type UploadError struct {
	NoteID string
	Title  string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload note %q (%s): %v", e.Title, e.NoteID, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// CorruptFileError marks a manifest or lock file that failed to parse.
// Callers treat the file as absent and recover.
type CorruptFileError struct {
	Path string
	Err  error
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt file %s: %v", e.Path, e.Err)
}

func (e *CorruptFileError) Unwrap() error {
	return e.Err
}
