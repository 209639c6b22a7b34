// Package blobstore keeps the raw bytes of collected documents, addressed by
// their SHA-256 digest.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"tally/internal/config"
)

// ErrNotFound reports a key with no stored object.
var ErrNotFound = errors.New("blob not found")

// Store writes each key at most once. Put reports written=false when the key
// already holds data; the existing bytes are kept.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (written bool, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Location renders key the way operators would look it up.
	Location(key string) string
	Close() error
}

// ContentKey returns the storage key for a digest, sharded by its first two
// hex characters.
func ContentKey(digest, ext string) string {
	digest = strings.ToLower(strings.TrimSpace(digest))
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	shard := digest
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join(shard, digest+ext)
}

// Open returns the backend selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageLocal:
		return NewLocal(cfg.Paths.BlobDir)
	case config.StorageGCS:
		return NewGCS(ctx, cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix)
	default:
		return nil, fmt.Errorf("storage backend %q not supported", cfg.Storage.Backend)
	}
}

func validKey(key string) error {
	clean := path.Clean(key)
	if key == "" || clean != key || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
