package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openfiling/formfill/types"
)

// FileStore is an ObjectStore over a local directory tree. Keys use "/"
// separators and map directly to paths under the root.
//
// PutIfAbsent writes to a temp file and hard-links it to the final path:
// link(2) fails atomically when the target exists, which is the
// conditional-create primitive version assignment relies on. No partial
// object is ever visible at the final key.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed and returns a store
// over it.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Get implements ObjectStore.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapTimeout("get", key, err)
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// PutIfAbsent implements ObjectStore.
func (s *FileStore) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return wrapTimeout("put", key, err)
	}
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp := dst + ".tmp." + randomSuffix()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp object: %w", err)
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := os.Link(tmp, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrKeyExists
		}
		return fmt.Errorf("failed to link object %s: %w", key, err)
	}
	return nil
}

// List implements ObjectStore.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapTimeout("list", prefix, err)
	}
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && !strings.Contains(key, ".tmp.") {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Presign implements ObjectStore. For a filesystem store the descriptor
// is a file URL; the expiry is advisory.
func (s *FileStore) Presign(key string, ttl time.Duration) (types.Descriptor, error) {
	abs, err := filepath.Abs(s.path(key))
	if err != nil {
		return types.Descriptor{}, fmt.Errorf("failed to resolve object path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return types.Descriptor{
		StorageKey: key,
		URL:        u.String(),
		ExpiresAt:  time.Now().Add(ttl),
	}, nil
}

func randomSuffix() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
