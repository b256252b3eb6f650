package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// FSAdapter is the default local-filesystem persistence Adapter: one
// file per key under Dir, written via temp-file-then-rename so a
// crash mid-write leaves either the old or the new content, never a
// half-written file.
type FSAdapter struct {
	Dir string
}

// NewFSAdapter builds an adapter rooted at dir, creating it if absent.
func NewFSAdapter(dir string) (*FSAdapter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSAdapter{Dir: dir}, nil
}

// Name identifies the backend for metrics labels.
func (a *FSAdapter) Name() string { return "filesystem" }

func (a *FSAdapter) path(key string) string {
	safe := strings.ReplaceAll(key, "/", "__")
	return filepath.Join(a.Dir, safe+".json")
}

func (a *FSAdapter) Read(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(a.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// WriteAtomic writes to a temp file in the same directory (so the rename
// is on the same filesystem and therefore atomic) and renames it over the
// destination.
func (a *FSAdapter) WriteAtomic(ctx context.Context, key string, value []byte) error {
	dest := a.path(key)
	tmp, err := os.CreateTemp(a.Dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}

func (a *FSAdapter) Delete(ctx context.Context, key string) error {
	err := os.Remove(a.path(key))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
