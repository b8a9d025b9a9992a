// Package storage provides the durable object stores that hold receipt
// backup artifacts: Google Cloud Storage in production and a local bbolt
// file for single-machine deployments.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Delete when the object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is a flat namespace of named byte blobs with
// overwrite-on-same-name semantics.
type ObjectStore interface {
	// Put writes data under name, replacing any existing object.
	Put(ctx context.Context, name string, data []byte) error
	// Get reads the object stored under name.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns all object names in lexical order.
	List(ctx context.Context) ([]string, error)
	// Delete removes the object stored under name.
	Delete(ctx context.Context, name string) error
}
