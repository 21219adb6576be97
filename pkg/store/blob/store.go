// Package blob defines the content-addressed byte store beneath the
// reference storage engine.
//
// Keys are opaque strings chosen by the caller (the engine uses the content
// hash). Blobs are immutable once written: writing an existing key replaces
// it with identical bytes.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key has no blob.
var ErrNotFound = errors.New("blob not found")

// Store persists immutable blobs by key.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Put stores the bytes read from r under key. size is the number of
	// bytes r yields, or -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get opens the blob for reading. The caller closes the reader.
	// Returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key has a blob.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every stored key.
	List(ctx context.Context) ([]string, error)
}
