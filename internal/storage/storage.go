// Package storage writes rating photos to a blob store and returns their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MarcoPoloResearchLab/tortilla/internal/config"
)

// ErrDisabled is returned by the store used when uploads are switched off.
var ErrDisabled = errors.New("storage: uploads are disabled")

// Object is a single upload.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

// BlobStore persists objects and reports where clients can fetch them.
type BlobStore interface {
	Put(ctx context.Context, object Object) (string, error)
}

// New builds the store selected by cfg.Driver.
func New(cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Driver {
	case config.StorageDriverOSS:
		return NewOSSStore(OSSStoreConfig{
			Endpoint:        cfg.OSS.Endpoint,
			Region:          cfg.OSS.Region,
			Bucket:          cfg.OSS.Bucket,
			AccessKeyID:     cfg.OSS.AccessKeyID,
			AccessKeySecret: cfg.OSS.AccessKeySecret,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
	case config.StorageDriverLocal:
		return NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	case config.StorageDriverNone:
		return disabledStore{}, nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.Driver)
	}
}

type disabledStore struct{}

func (disabledStore) Put(context.Context, Object) (string, error) {
	return "", ErrDisabled
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
