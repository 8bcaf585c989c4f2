package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes uploaded media under a single base directory. It is
// the stdio-mode default: the caller runs on the same machine, so the
// object key doubles as a filename and Retrieve never copies anything.
type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Store writes the bytes under a content-addressed filename.
func (s *LocalStorage) Store(ctx context.Context, data []byte, mimeType string, prefix string) (*StorageResult, error) {
	filename, contentHash := contentFilename(data, mimeType, prefix)
	outputPath := filepath.Join(s.baseDir, filename)

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &StorageResult{
		Location:    outputPath,
		ObjectKey:   filename,
		ContentHash: contentHash,
		MIMEType:    mimeType,
		Size:        int64(len(data)),
	}, nil
}

// objectPath maps an object key to a path under baseDir, rejecting keys
// that would escape it. Keys come from callers, not from Store.
func (s *LocalStorage) objectPath(objectKey string) (string, error) {
	filePath := filepath.Join(s.baseDir, objectKey)
	rel, err := filepath.Rel(s.baseDir, filePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key: %s", objectKey)
	}
	return filePath, nil
}

// Retrieve resolves an object key to its path; nothing is downloaded, the
// cleanup function is a no-op.
func (s *LocalStorage) Retrieve(ctx context.Context, objectKey string) (string, func(), error) {
	filePath, err := s.objectPath(objectKey)
	if err != nil {
		return "", nil, err
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return "", nil, fmt.Errorf("file not found: %s", objectKey)
	} else if err != nil {
		return "", nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return filePath, func() {}, nil
}

// Delete removes an object; a missing key is not an error.
func (s *LocalStorage) Delete(ctx context.Context, objectKey string) error {
	filePath, err := s.objectPath(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStorage) Close() error {
	return nil
}

func (s *LocalStorage) IsRemote() bool {
	return false
}
