// Package blob provides a production-shaped Repository capability backed by
// object storage: chunks live under a "chunks/" key prefix, fossils under a
// "fossils/" prefix, and fossilisation is a server-side copy followed by
// deletion of the original so a concurrent reader's probe always observes
// either the chunk or the fossil, never neither.
package blob

import (
	"context"
	"errors"
	"iter"
)

// ErrNotFound is returned by StorageBackend.Get when the requested key
// does not exist. Backends must translate their SDK-specific not-found
// errors into this sentinel so Repository can treat absence uniformly
// across drivers.
var ErrNotFound = errors.New("blob: object not found")

// StorageBackend is the minimal object-storage capability the Repository
// needs. Concrete drivers (S3, Azure Blob Storage, Google Cloud Storage)
// implement this against their respective SDKs. Constructors validate
// configuration eagerly and fail fast; none start background work before
// first use.
type StorageBackend interface {
	// Put uploads data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get downloads the object at key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Copy performs a server-side copy from srcKey to dstKey without
	// downloading the object through the caller.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// List enumerates every key under prefix, lazily and in no guaranteed
	// order.
	List(ctx context.Context, prefix string) iter.Seq2[string, error]
}
