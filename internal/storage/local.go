package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps images in a directory served under a URL prefix.
type LocalStore struct {
	root   string
	prefix string
}

// NewLocalStore creates root if needed. Images are exposed as prefix + "/" + name.
func NewLocalStore(root, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage/local: mkdir %s: %w", root, err)
	}
	return &LocalStore{
		root:   root,
		prefix: strings.TrimRight(prefix, "/"),
	}, nil
}

// Root returns the directory that holds the images.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("storage/local: invalid file name %q", name)
	}
	full := filepath.Join(s.root, name)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage/local: create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("storage/local: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("storage/local: close %s: %w", name, err)
	}
	return s.prefix + "/" + name, nil
}

func (s *LocalStore) Owns(publicPath string) bool {
	name, ok := strings.CutPrefix(publicPath, s.prefix+"/")
	return ok && name != "" && name == filepath.Base(name)
}

func (s *LocalStore) Delete(_ context.Context, publicPath string) error {
	if !s.Owns(publicPath) {
		return fmt.Errorf("storage/local: %s is not a managed upload", publicPath)
	}
	name := strings.TrimPrefix(publicPath, s.prefix+"/")
	err := os.Remove(filepath.Join(s.root, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage/local: delete %s: %w", name, err)
	}
	return nil
}
