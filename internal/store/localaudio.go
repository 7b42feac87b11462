package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalAudio writes recordings to a directory on disk, the default for
// single-node deployments.
type LocalAudio struct {
	dir string
}

func NewLocalAudio(dir string) (*LocalAudio, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &LocalAudio{dir: dir}, nil
}

func (a *LocalAudio) Store(callID string, audio io.Reader) (string, error) {
	name := fmt.Sprintf("%s-%s.audio", callID, uuid.New().String())
	path := filepath.Join(a.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, audio); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return path, nil
}

func (a *LocalAudio) Read(handle string) (io.ReadCloser, error) {
	return os.Open(handle)
}

func (a *LocalAudio) Delete(handle string) error {
	return os.Remove(handle)
}
