// Package storage abstracts the blob store holding ingested media bytes.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound indicates the requested object does not exist in the store.
var ErrNotFound = errors.New("object not found")

// Provider abstracts object storage operations.
type Provider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error
	// Open returns a reader for the given storage key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, key string) error
	// SignedURL returns a time-bounded URL granting read access to the
	// object; it is handed to destinations instead of the permanent key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
