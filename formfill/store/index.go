package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/openfiling/formfill/types"
)

// Index is the append-only version ledger: document id to the ordered
// list of version records. History queries read it instead of listing
// the whole store.
//
// It is backed by one JSON file guarded by an in-process RWMutex and a
// cross-process flock. The index is a read-optimization, not the
// authority on version identity; the object store's conditional write
// is. A record is appended only after its object write succeeded.
type Index struct {
	filePath string
	fileLock *flock.Flock
	mu       sync.RWMutex
}

// indexData is the JSON file layout.
type indexData struct {
	Records  map[string][]types.VersionRecord `json:"records"`
	Metadata indexMetadata                    `json:"metadata"`
}

type indexMetadata struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewIndex returns an index over the JSON file at filePath, creating
// parent directories as needed. The file itself is created on first
// append.
func NewIndex(filePath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return &Index{
		filePath: filePath,
		fileLock: flock.New(filePath + ".lock"),
	}, nil
}

// lock acquires the cross-process file lock, retrying until ctx expires.
func (ix *Index) lock(ctx context.Context) error {
	locked, err := ix.fileLock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return wrapTimeout("index-lock", ix.filePath, err)
	}
	if !locked {
		return &types.StorageTimeoutError{Op: "index-lock", Key: ix.filePath, Err: context.DeadlineExceeded}
	}
	return nil
}

// load reads the index file. Caller holds the locks. A missing or empty
// file is an empty index.
func (ix *Index) load() (*indexData, error) {
	data := &indexData{
		Records:  make(map[string][]types.VersionRecord),
		Metadata: indexMetadata{Version: "1.0"},
	}
	raw, err := os.ReadFile(ix.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	if data.Records == nil {
		data.Records = make(map[string][]types.VersionRecord)
	}
	return data, nil
}

// save writes the index atomically: temp file then rename. Caller holds
// the locks.
func (ix *Index) save(data *indexData) error {
	data.Metadata.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	tmp := ix.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp index: %w", err)
	}
	if err := os.Rename(tmp, ix.filePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename index: %w", err)
	}
	return nil
}

// Append adds one version record. Records for a document only ever grow;
// nothing is updated in place.
func (ix *Index) Append(ctx context.Context, rec types.VersionRecord) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.lock(ctx); err != nil {
		return err
	}
	defer func() { _ = ix.fileLock.Unlock() }()

	data, err := ix.load()
	if err != nil {
		return err
	}
	data.Records[rec.DocumentID] = append(data.Records[rec.DocumentID], rec)
	return ix.save(data)
}

// Records returns all versions of a document in ascending version
// order. Unknown documents return an empty slice, not an error; the
// caller decides whether that means "not found".
func (ix *Index) Records(ctx context.Context, documentID string) ([]types.VersionRecord, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := ix.lock(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = ix.fileLock.Unlock() }()

	data, err := ix.load()
	if err != nil {
		return nil, err
	}
	recs := append([]types.VersionRecord(nil), data.Records[documentID]...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Version < recs[j].Version })
	return recs, nil
}

// HighestVersion returns the latest known version of a document, or 0
// when none exist. Advisory only: the conditional object write is what
// actually arbitrates version identity.
func (ix *Index) HighestVersion(ctx context.Context, documentID string) (int, error) {
	recs, err := ix.Records(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[len(recs)-1].Version, nil
}
