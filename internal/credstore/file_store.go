package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kardosh/multisend/internal/model"
)

// FileStore keeps one credential file per identity under a base directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", model.ErrStorage, dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(identity string) string {
	// Identities are phone numbers; strip anything that could escape the
	// base directory.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			return r
		default:
			return '_'
		}
	}, identity)
	return filepath.Join(f.dir, safe+".cred")
}

func (f *FileStore) Load(_ context.Context, identity string) ([]byte, error) {
	blob, err := os.ReadFile(f.path(identity))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", model.ErrStorage, identity, err)
	}
	return blob, nil
}

func (f *FileStore) Save(_ context.Context, identity string, blob []byte) error {
	path := f.path(identity)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("%w: save %s: %v", model.ErrStorage, identity, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: save %s: %v", model.ErrStorage, identity, err)
	}
	return nil
}

func (f *FileStore) Erase(_ context.Context, identity string) error {
	err := os.Remove(f.path(identity))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: erase %s: %v", model.ErrStorage, identity, err)
	}
	return nil
}
