// Package imagecache stores downloaded image bytes on local disk, one file
// per remote URL.
package imagecache

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidURL is returned when no file name can be derived from a URL
var ErrInvalidURL = errors.New("cannot derive cache file name from url")

// Store maps remote image URLs to files in a private directory. Two URLs with
// the same final path segment share a file.
type Store struct {
	dir string
}

// New creates the cache directory if needed
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory
func (s *Store) Dir() string {
	return s.dir
}

// Key returns the cache file name for remoteURL: its last path segment
func Key(remoteURL string) (string, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	name := path.Base(u.Path)
	switch name {
	case "", ".", "/", "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, remoteURL)
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, remoteURL)
	}
	return name, nil
}

// PathFor returns the file path for remoteURL without touching disk
func (s *Store) PathFor(remoteURL string) (string, error) {
	name, err := Key(remoteURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Read returns the cached bytes. ok is false when nothing is cached.
func (s *Store) Read(remoteURL string) (data []byte, ok bool, err error) {
	p, err := s.PathFor(remoteURL)
	if err != nil {
		return nil, false, err
	}
	data, err = os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached image: %w", err)
	}
	return data, true, nil
}

// Write stores data for remoteURL. Readers see either the old file or the
// complete new one.
func (s *Store) Write(remoteURL string, data []byte) (string, error) {
	p, err := s.PathFor(remoteURL)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write cached image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync cached image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close cached image: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return "", fmt.Errorf("failed to move cached image into place: %w", err)
	}
	return p, nil
}

// Delete removes the cached file. A missing file is not an error.
func (s *Store) Delete(remoteURL string) error {
	p, err := s.PathFor(remoteURL)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cached image: %w", err)
	}
	return nil
}
