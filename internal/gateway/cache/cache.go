// Package cache implements named, versioned partitions of stored HTTP
// responses backing the offline gateway. Each partition is a directory;
// responses are filed under the SHA-256 of their cache key in a two-level
// directory layout.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	apperrors "github.com/telos-app/telos-offline/internal/errors"
)

// Prefix marks a partition directory as owned by this application.
// Activation deletes any prefixed partition whose name is stale.
const Prefix = "telos-"

// StoredResponse is one cached HTTP response.
type StoredResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// Store manages partitions under a base directory.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Partition returns a handle on the named partition. The directory is
// created lazily on first Put.
func (s *Store) Partition(name string) *Partition {
	return &Partition{
		name: name,
		dir:  filepath.Join(s.baseDir, name),
	}
}

// List returns the names of all partition directories.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCacheStore, "failed to list cache partitions", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Delete removes a partition and everything in it.
func (s *Store) Delete(name string) error {
	if err := os.RemoveAll(filepath.Join(s.baseDir, name)); err != nil {
		return apperrors.Wrap(apperrors.ErrCacheStore, "failed to delete cache partition", err)
	}
	return nil
}

// Partition is one named bucket of stored responses.
type Partition struct {
	name string
	dir  string
}

// Name returns the partition name.
func (p *Partition) Name() string {
	return p.name
}

// keyPath files a cache key under dir/{hash[0:2]}/{hash[2:4]}/{hash}.
func (p *Partition) keyPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	return filepath.Join(p.dir, hash[0:2], hash[2:4], hash)
}

// Put stores a response under the cache key, replacing any previous entry.
func (p *Partition) Put(key string, resp *StoredResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCacheStore, "failed to encode cached response", err)
	}

	path := p.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrCacheStore, "failed to create partition directory", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.Wrap(apperrors.ErrCacheStore, "failed to write cached response", err)
	}
	return nil
}

// Match returns the stored response for the cache key, or nil when the
// partition has no entry for it.
func (p *Partition) Match(key string) (*StoredResponse, error) {
	data, err := os.ReadFile(p.keyPath(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCacheStore, "failed to read cached response", err)
	}

	resp := &StoredResponse{}
	if err := json.Unmarshal(data, resp); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCacheStore, "corrupt cached response", err)
	}
	return resp, nil
}
