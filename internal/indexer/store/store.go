// Package store persists index blobs: encoded segments plus the manifest
// that names the live ones. Every backend offers the same small contract so
// the index can run against local disk, an embedded KV store, a SQL table or
// an object store without knowing which.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get for names that were never written or have
// been deleted.
var ErrNotFound = errors.New("blob not found")

// Store is a flat namespace of immutable-by-convention blobs. Put must be
// atomic: a concurrent or subsequent Get observes either the previous
// contents or the new ones, never a prefix.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete is idempotent.
	Delete(ctx context.Context, name string) error
	Close() error
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, "..") && !strings.HasPrefix(name, "/")
}
