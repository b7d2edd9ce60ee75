// Package formfill implements a dynamic field-mapping and versioned
// PDF-form-filling engine: semantic tax data in, an immutable versioned
// artifact out.
package formfill

import "sync"

// operationType distinguishes read operations, which may proceed
// concurrently, from write operations, which are exclusive.
type operationType int

const (
	readOperation operationType = iota
	writeOperation
)

// lockManager centralizes the locking strategy for read-mostly shared
// state (the catalog cache). Funneling every access through execute
// prevents lock/unlock/relock mistakes in the callers.
type lockManager struct {
	mu sync.RWMutex
}

func newLockManager() *lockManager {
	return &lockManager{}
}

// execute runs fn under the lock appropriate for the operation type.
// The lock is released via defer even if fn panics.
func (lm *lockManager) execute(opType operationType, fn func() error) error {
	switch opType {
	case readOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case writeOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}
