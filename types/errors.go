package types

import (
	"errors"
	"fmt"
)

// NotFoundError reports an unknown form type/tax year pair or an unknown
// document id. Non-retryable; surfaced to the caller as-is.
type NotFoundError struct {
	Kind string // "form" or "document"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// TemplateCorruptError reports template bytes that could not be parsed.
// Fatal for the operation; retrying without fixing the template cannot
// succeed.
type TemplateCorruptError struct {
	Ref string
	Err error
}

func (e *TemplateCorruptError) Error() string {
	return fmt.Sprintf("template %s is corrupt: %v", e.Ref, e.Err)
}

func (e *TemplateCorruptError) Unwrap() error { return e.Err }

// VersionConflictError reports that bounded retries of conditional
// version writes were exhausted. Transient: the caller may retry the
// whole fill.
type VersionConflictError struct {
	DocumentID string
	Attempts   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict for document %s after %d attempts", e.DocumentID, e.Attempts)
}

// StorageTimeoutError reports a store operation that exceeded its bounded
// timeout. Transient; retry/backoff policy is owned by the caller.
type StorageTimeoutError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageTimeoutError) Error() string {
	return fmt.Sprintf("storage %s timed out for %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageTimeoutError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying from the caller's
// side. Structural failures (unknown form, corrupt template) are not.
func IsTransient(err error) bool {
	var vc *VersionConflictError
	var st *StorageTimeoutError
	return errors.As(err, &vc) || errors.As(err, &st)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
