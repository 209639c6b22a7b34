package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCS stores blobs as objects in a Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// NewGCS connects with Application Default Credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket), name: bucket, prefix: prefix}, nil
}

func (g *GCS) object(key string) string {
	if g.prefix == "" {
		return key
	}
	return path.Join(g.prefix, key)
}

// Put writes the object only if it does not exist yet. A failed precondition
// means another run stored the same content first.
func (g *GCS) Put(ctx context.Context, key string, data []byte) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	w := g.bucket.Object(g.object(key)).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = http.DetectContentType(data)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		if preconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if preconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("finalize object %s: %w", key, err)
	}
	return true, nil
}

func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	r, err := g.bucket.Object(g.object(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	_, err := g.bucket.Object(g.object(key)).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
}

func (g *GCS) Location(key string) string {
	return "gs://" + g.name + "/" + g.object(key)
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func preconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
