package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// LocalStore is a content-addressed directory of artifacts.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir. The directory is created on
// first write.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Dir returns the store directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) path(fp string) string {
	return filepath.Join(s.dir, fp+".tar.gz")
}

// Exists reports whether a complete artifact is stored for fp. Unreadable
// and log-only artifacts do not count.
func (s *LocalStore) Exists(fp string) bool {
	data, err := os.ReadFile(s.path(fp))
	if err != nil {
		return false
	}
	e, err := Decode(data)
	return err == nil && !e.Meta.LogOnly
}

// Fetch returns the raw artifact for fp, or nil when absent.
func (s *LocalStore) Fetch(ctx context.Context, fp string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(fp))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Put stores an artifact for fp. A complete artifact already stored for fp
// is left untouched; anything else under fp is replaced.
func (s *LocalStore) Put(ctx context.Context, fp string, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Exists(fp) {
		return nil
	}
	dest := s.path(fp)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, fp+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(artifact); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
