package connect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Recorder persists the last acknowledged stream offset so a restarted
// consumer resumes where it left off. WriteOffset must be durable before it
// returns; ReadOffset returns "" when no offset has been stored yet.
//
// A single consumer owns a recorder for the lifetime of a connection.
// Implementations are not required to support concurrent writers.
type Recorder interface {
	ReadOffset() (string, error)
	WriteOffset(offset string) error
}

// FileRecorder stores the offset in a local file. Writes go through a temp
// file, fsync and rename so a crash mid-write never leaves a torn offset.
type FileRecorder struct {
	path string
}

// NewFileRecorder returns a FileRecorder persisting to path. The file is
// created on the first WriteOffset.
func NewFileRecorder(path string) (*FileRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("offset file path is required")
	}
	return &FileRecorder{path: path}, nil
}

func (r *FileRecorder) ReadOffset() (string, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read offset file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *FileRecorder) WriteOffset(offset string) error {
	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".offset-*")
	if err != nil {
		return fmt.Errorf("create offset temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(offset); err != nil {
		tmp.Close()
		return fmt.Errorf("write offset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync offset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close offset temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace offset file: %w", err)
	}
	return nil
}
