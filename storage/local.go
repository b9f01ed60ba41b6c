package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalArchive implements Archive on the local filesystem
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a local archive rooted at basePath
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

// Put stores a volume's document, replacing any previous one.
func (a *LocalArchive) Put(ctx context.Context, volume int, filename string, data io.Reader) (string, error) {
	if err := a.Remove(ctx, volume); err != nil {
		return "", err
	}

	key := volumeKey(volume, filename)
	fullPath := filepath.Join(a.basePath, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return key, nil
}

// Get opens the archived document for a volume.
func (a *LocalArchive) Get(ctx context.Context, volume int) (io.ReadCloser, string, error) {
	dir := filepath.Join(a.basePath, volumePrefix(volume))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %d", ErrNotArchived, volume)
		}
		return nil, "", fmt.Errorf("failed to read archive directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, "", fmt.Errorf("failed to open archived file: %w", err)
		}
		return file, entry.Name(), nil
	}
	return nil, "", fmt.Errorf("%w: %d", ErrNotArchived, volume)
}

// Remove deletes a volume's archived document.
func (a *LocalArchive) Remove(ctx context.Context, volume int) error {
	dir := filepath.Join(a.basePath, volumePrefix(volume))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove archived volume %d: %w", volume, err)
	}
	return nil
}
