// Package store defines the shared key-path document that every match lives in
// and provides memory, Redis and Postgres backends for it.
//
// Paths are slash separated ("games/{id}/players/{name}/dice"). The first two
// segments name a root; every multi-path update must stay inside one root and
// is applied atomically. Each write bumps the root's "version" field, which
// UpdateIf uses as an optimistic concurrency token.
package store

import (
	"context"
	"errors"
)

var (
	ErrVersionConflict = errors.New("document version conflict")
	ErrNotFound        = errors.New("document not found")
	ErrCrossRoot       = errors.New("update spans more than one root")
	ErrInvalidPath     = errors.New("invalid document path")
)

// VersionField is maintained by the store on every root.
const VersionField = "version"

// Document is the contract the game engine needs from the replicated store.
type Document interface {
	// Get returns the value at path, or nil when absent.
	Get(ctx context.Context, path string) (any, error)
	// Set replaces the subtree at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error
	// Update applies every path of patch as one atomic operation.
	// Absent keys are untouched, nil values delete.
	Update(ctx context.Context, patch map[string]any) error
	// UpdateIf is Update guarded by the root's current version.
	// It returns the new version or ErrVersionConflict.
	UpdateIf(ctx context.Context, root string, version int64, patch map[string]any) (int64, error)
	// Subscribe delivers the subtree at path now and after every change.
	// Intermediate values may be coalesced; the latest one is always delivered.
	Subscribe(ctx context.Context, path string, fn func(value any)) (unsubscribe func(), err error)
	// List returns the keys of every root under collection.
	List(ctx context.Context, collection string) ([]string, error)
	Close() error
}
