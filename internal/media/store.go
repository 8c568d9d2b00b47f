// Package media stores product images and downloads the payloads behind
// message media references.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Object store errors.
var (
	ErrInvalidKey     = errors.New("invalid object key")
	ErrForeignURL     = errors.New("url is not served by this store")
	ErrObjectNotFound = errors.New("object not found")
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FileStore keeps objects on the local filesystem and serves them under a
// public base URL, e.g. through the health server's /media/ route.
type FileStore struct {
	root       string
	publicBase string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root, publicBase string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}

	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}

	return &FileStore{root: abs, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Root returns the directory objects are written to.
func (s *FileStore) Root() string {
	return s.root
}

// Put writes data under key and returns its public URL. The write is atomic.
func (s *FileStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return "", fmt.Errorf("write object: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}

	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		return "", fmt.Errorf("chmod object: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}

	return s.publicBase + "/" + filepath.ToSlash(strings.TrimPrefix(path, s.root+string(filepath.Separator))), nil
}

// Get reads the object behind a URL returned by Put.
func (s *FileStore) Get(_ context.Context, url string) ([]byte, error) {
	key, ok := s.KeyOf(url)
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, ErrForeignURL)
	}

	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}

		return nil, fmt.Errorf("read object: %w", err)
	}

	return data, nil
}

// Delete removes the object behind a URL returned by Put. A missing object
// is not an error.
func (s *FileStore) Delete(_ context.Context, url string) error {
	key, ok := s.KeyOf(url)
	if !ok {
		return fmt.Errorf("%s: %w", url, ErrForeignURL)
	}

	path, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove object: %w", err)
	}

	return nil
}

// KeyOf returns the object key of a URL served by this store.
func (s *FileStore) KeyOf(url string) (string, bool) {
	prefix := s.publicBase + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}

	return strings.TrimPrefix(url, prefix), true
}

func (s *FileStore) path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}

	return path, nil
}
