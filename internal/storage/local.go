package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes objects below a directory that the HTTP server exposes at publicBaseURL.
type LocalStore struct {
	root          string
	publicBaseURL string
}

func NewLocalStore(root, publicBaseURL string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: local directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", root, err)
	}
	return &LocalStore{root: root, publicBaseURL: publicBaseURL}, nil
}

func (s *LocalStore) Put(ctx context.Context, object Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleaned := filepath.Clean(filepath.FromSlash(object.Key))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("storage: invalid key %q", object.Key)
	}
	target := filepath.Join(s.root, cleaned)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("storage: create directory: %w", err)
	}

	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: create %s: %w", object.Key, err)
	}
	if _, err := io.Copy(file, object.Body); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("storage: write %s: %w", object.Key, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("storage: close %s: %w", object.Key, err)
	}
	return publicURL(s.publicBaseURL, object.Key), nil
}
