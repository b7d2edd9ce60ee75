// Package store provides artifact persistence for filled forms: an
// object store with a conditional-write primitive and an append-only
// version index. Mutual exclusion for version assignment is delegated
// entirely to PutIfAbsent; nothing here takes a lock around "read
// highest version, write next".
package store

import (
	"context"
	"errors"
	"time"

	"github.com/openfiling/formfill/types"
)

// ErrKeyExists is returned by PutIfAbsent when an object already sits at
// the target key. Version assignment treats it as a lost race.
var ErrKeyExists = errors.New("object already exists at key")

// ErrKeyNotFound is returned by Get for keys with no object.
var ErrKeyNotFound = errors.New("object not found")

// ObjectStore is the persistence contract for rendered artifacts.
// Implementations must make PutIfAbsent atomic: exactly one of any
// number of concurrent writers to the same key succeeds, the rest get
// ErrKeyExists. All operations honor ctx deadlines.
type ObjectStore interface {
	// Get returns the object bytes at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// PutIfAbsent writes data at key only if no object exists there.
	PutIfAbsent(ctx context.Context, key string, data []byte) error

	// List returns all keys under prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Presign produces a time-limited retrieval descriptor for key.
	Presign(key string, ttl time.Duration) (types.Descriptor, error)
}

// wrapTimeout converts context deadline errors into the transient
// StorageTimeoutError callers are expected to retry with backoff.
func wrapTimeout(op, key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.StorageTimeoutError{Op: op, Key: key, Err: err}
	}
	return err
}
