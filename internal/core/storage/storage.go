// Package storage persists archive artifacts by key, on local disk or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"log"

	"github.com/seckatie/linkkeeper/internal/config"
)

var (
	// ErrNotFound is returned by Get when no object exists for the key.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidKey is returned for keys that would escape the storage root.
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Store reads and writes artifact bodies. Keys are slash-separated relative paths.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Open returns the bucket store when one is configured and the local
// filesystem store otherwise.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	if cfg.S3.Enabled() {
		log.Printf("Storing artifacts in bucket %s", cfg.S3.Bucket)
		return NewS3(ctx, S3Options{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.ForcePathStyle,
		})
	}
	log.Printf("Storing artifacts under %s", cfg.StorageFolder)
	return NewFS(cfg.StorageFolder), nil
}
