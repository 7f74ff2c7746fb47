// Package storage provides object storage access for bosun.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an object does not exist at the given key.
var ErrNotFound = errors.New("storage: object not found")

// ObjectStore is the minimal object storage contract the orchestration engine
// needs: prefix listing, whole-object download/upload, and an existence probe
// used to confirm a write landed before declaring success.
type ObjectStore interface {
	// List returns the keys under prefix in lexicographic order.
	List(ctx context.Context, container, prefix string) ([]string, error)

	// Download returns the object at key, or ErrNotFound.
	Download(ctx context.Context, container, key string) ([]byte, error)

	// Upload creates or overwrites the object at key.
	Upload(ctx context.Context, container, key string, data []byte) error

	// Head reports whether an object exists at key.
	Head(ctx context.Context, container, key string) (bool, error)
}
