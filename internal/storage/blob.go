// Package storage defines the blob store contract used for batch files,
// caches, and checkpoints.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a requested blob does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobStore persists opaque blobs under slash-separated paths.
type BlobStore interface {
	// PutObject writes data under path and returns a provider URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject reads the blob at path, or ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
	// List returns the paths of all blobs under prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
	// Rename moves a blob to a new path. Implementations may copy+delete.
	Rename(ctx context.Context, oldPath, newPath string) error
}
