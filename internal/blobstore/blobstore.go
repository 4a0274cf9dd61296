// Package blobstore implements the object store client (C1): keyed
// storage for snapshot HTML, raw screenshots, and diff images. Keys are
// chosen by the caller; ContentAddress is a helper for callers that want
// a key derived from the bytes.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/moku-wst/internal/interfaces"
)

// FSStore is a filesystem-backed BlobStore. Keys map directly onto paths
// under Root; content type and cache-control are recorded in a sidecar
// ".meta" file next to the blob since the local filesystem has no concept
// of object metadata.
type FSStore struct {
	Root   string
	logger interfaces.Logger
}

// NewFSStore creates an FSStore rooted at root, creating it if necessary.
func NewFSStore(root string, logger interfaces.Logger) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &FSStore{Root: root, logger: logger}, nil
}

type meta struct {
	ContentType  string
	CacheControl string
	StoredAt     time.Time
}

// Put writes data at key, recording contentType and cacheControl alongside
// it. Objects are intended to be served with a long cache (~30 days
// public); this store only records the header value, the actual caching
// policy is applied by whatever serves URLFor. Both the blob and its
// sidecar are written via a temp-file-then-rename so a crash mid-write
// never leaves a half-written blob visible at key.
func (f *FSStore) Put(key string, data []byte, contentType string, cacheControl string) error {
	p := f.pathFor(key)
	m := meta{ContentType: contentType, CacheControl: cacheControl, StoredAt: time.Now().UTC()}
	metaBytes := []byte(fmt.Sprintf("%s\n%s\n%s\n", m.ContentType, m.CacheControl, m.StoredAt.Format(time.RFC3339)))

	if err := atomicWriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := atomicWriteFile(p+".meta", metaBytes, 0o644); err != nil {
		return fmt.Errorf("write blob meta %s: %w", key, err)
	}
	return nil
}

// atomicWriteFile writes data to path via a temp file in the same
// directory followed by an fsync and rename, so the write is either
// fully visible or not visible at all.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Get reads back the blob stored at key.
func (f *FSStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.pathFor(key))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob at key. Per C1's contract, callers treat a
// delete failure during archival as non-fatal and log it rather than
// aborting the archival transaction.
func (f *FSStore) Delete(key string) error {
	p := f.pathFor(key)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	_ = os.Remove(p + ".meta")
	return nil
}

// URLFor returns a file:// URL for the blob's on-disk location. A
// production deployment replaces this with a backend that hosts blobs
// over HTTP; the interface is what callers depend on.
func (f *FSStore) URLFor(key string) string {
	return "file://" + f.pathFor(key)
}

func (f *FSStore) pathFor(key string) string {
	return filepath.Join(f.Root, filepath.FromSlash(key))
}

// ContentAddress returns a stable content-addressed suffix for bytes, used
// when a caller wants a key derived from content rather than from an
// external id/timestamp.
func ContentAddress(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SnapshotImageKey returns the blob key for a Source's raw screenshot
// captured at captureTS, per the key scheme in §4.1.
func SnapshotImageKey(sourceID int64, captureTS time.Time) string {
	return fmt.Sprintf("snapshots/%d/%d.jpeg", sourceID, captureTS.Unix())
}

// DiffSideImageKey returns the blob key for one side ("old"|"new") of a
// rendered diff screenshot, identified by parentID and a capture-unique
// suffix. parentID is normally a diff_content_id per §4.1's key scheme;
// the renderer instead passes the diff_html_id, since no diff_content_id
// exists yet at capture time (it's only created once both sides are
// captured — see DESIGN.md). suffix is usually a capture timestamp
// formatted as Unix seconds, but the renderer passes a uuid instead so a
// retried capture within the same second never collides with the
// attempt it replaces.
func DiffSideImageKey(side string, parentID int64, suffix string) string {
	return fmt.Sprintf("diff/%s/%d/%s.jpeg", side, parentID, suffix)
}
