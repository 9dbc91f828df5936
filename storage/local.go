package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when a stored object does not exist
var ErrObjectNotFound = errors.New("object not found")

// LocalStorage implements Storage interface for local filesystem
type LocalStorage struct {
	basePath string
	prefix   string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath, prefix string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		prefix:   prefix,
	}, nil
}

// Upload stores an object locally
func (s *LocalStorage) Upload(ctx context.Context, objectID uuid.UUID, filename string, data io.Reader) (string, error) {
	storagePath := generateStoragePath(s.prefix, objectID, filename)
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return "", err
	}

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

	return storagePath, nil
}

// Download retrieves an object from local storage
func (s *LocalStorage) Download(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, storagePath)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// resolve maps a storage path below basePath, rejecting paths that escape it
func (s *LocalStorage) resolve(storagePath string) (string, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(storagePath))
	rel, err := filepath.Rel(s.basePath, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage path: %s", storagePath)
	}
	return fullPath, nil
}
