// Package objectstore mirrors cached images into a bucket so they survive
// the loss of the local cache directory.
package objectstore

import (
	"context"
	"fmt"

	"virtual-tourist-backend/internal/config"
)

// Store is a flat key/value blob store
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ok=false when the key does not exist
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	// Delete succeeds when the key does not exist
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Driver. It returns nil when the mirror
// is disabled.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "s3":
		return NewS3(ctx, cfg)
	case "minio":
		return NewMinio(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown object store driver %q", cfg.Driver)
	}
}
