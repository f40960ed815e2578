// Package server implements the chunk store and its HTTP API: a persistent,
// concurrency-safe, label-indexed blob store addressed by server-assigned
// ids.
package server

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/uplo-tech/bolt"
	"github.com/uplo-tech/errors"

	"github.com/obnam-mirror/obnam2/persist"
)

var (
	// ErrNotFound is returned when a chunk id is unknown to the store.
	ErrNotFound = errors.New("chunk not found")

	bucketByID    = []byte("by-id")
	bucketByLabel = []byte("by-label")
)

// ChunkStore persists chunk bodies as individual files under a content
// directory, and keeps a durable label<->id index in a bolt database
// alongside them. Concurrent requests are safe: index writes are serialised
// by bolt's single-writer transactions, while reads never block on them.
type ChunkStore struct {
	dir string
	db  *bolt.DB

	// blobMu serialises every blob create, delete and index rebuild, for
	// all ids alike; reads never take it, so a GET never waits on a write.
	blobMu sync.Mutex
}

// OpenChunkStore opens (creating if necessary) the content directory and
// index database rooted at dir.
func OpenChunkStore(dir string) (*ChunkStore, error) {
	if err := persist.MkdirAllPrivate(dir); err != nil {
		return nil, errors.AddContext(err, "could not create chunk directory")
	}
	if err := persist.MkdirAllPrivate(filepath.Join(dir, "blobs")); err != nil {
		return nil, errors.AddContext(err, "could not create blob directory")
	}
	db, err := bolt.Open(filepath.Join(dir, "index.db"), 0600, nil)
	if err != nil {
		return nil, errors.AddContext(err, "could not open label index")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketByID); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketByLabel)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.AddContext(err, "could not initialise index buckets")
	}
	return &ChunkStore{dir: dir, db: db}, nil
}

// Close releases the index database's file handle.
func (s *ChunkStore) Close() error {
	return s.db.Close()
}

func (s *ChunkStore) blobPath(id string) string {
	return filepath.Join(s.dir, "blobs", id)
}

func (s *ChunkStore) metaPath(id string) string {
	return filepath.Join(s.dir, "blobs", id+".label")
}

// Put writes a new chunk with the given label and body, returning a fresh,
// server-assigned id. The blob is fsynced before the index entry is
// committed, so a successful Put guarantees both Get and GetByLabel see
// the chunk even across a restart.
func (s *ChunkStore) Put(label string, body []byte) (string, error) {
	id := uuid.NewString()

	s.blobMu.Lock()
	defer s.blobMu.Unlock()

	if err := writeBlobDurably(s.blobPath(id), body); err != nil {
		return "", errors.AddContext(err, "could not write chunk body")
	}
	if err := writeBlobDurably(s.metaPath(id), []byte(label)); err != nil {
		_ = os.Remove(s.blobPath(id))
		return "", errors.AddContext(err, "could not write chunk label sidecar")
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketByID).Put([]byte(id), []byte(label)); err != nil {
			return err
		}
		labelBucket, err := tx.Bucket(bucketByLabel).CreateBucketIfNotExists([]byte(label))
		if err != nil {
			return err
		}
		return labelBucket.Put([]byte(id), nil)
	})
	if err != nil {
		_ = os.Remove(s.blobPath(id))
		return "", errors.AddContext(err, "could not commit index entry")
	}
	return id, nil
}

// writeBlobDurably writes body to path via a temp file that is fsynced, then
// renamed into place, then the containing directory is fsynced too.
func writeBlobDurably(path string, body []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

// Get returns the body and label for id, or ErrNotFound.
func (s *ChunkStore) Get(id string) ([]byte, string, error) {
	var label string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketByID).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		label = string(v)
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(s.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", errors.AddContext(err, "could not open chunk body")
	}
	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		return nil, "", errors.AddContext(err, "could not read chunk body")
	}
	return body, label, nil
}

// GetByLabel returns every id currently carrying the given label, in the
// order bolt's cursor enumerates them (insertion order within the bucket's
// B+tree is not guaranteed, but is stable for a given bucket state).
func (s *ChunkStore) GetByLabel(label string) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		labelBucket := tx.Bucket(bucketByLabel).Bucket([]byte(label))
		if labelBucket == nil {
			return nil
		}
		return labelBucket.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// Delete removes both the blob and its index entries for id. After Delete
// returns, neither Get nor GetByLabel can observe the chunk, even across a
// restart.
func (s *ChunkStore) Delete(id string) error {
	s.blobMu.Lock()
	defer s.blobMu.Unlock()

	var label string
	err := s.db.Update(func(tx *bolt.Tx) error {
		idBucket := tx.Bucket(bucketByID)
		v := idBucket.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		label = string(v)
		if err := idBucket.Delete([]byte(id)); err != nil {
			return err
		}
		if labelBucket := tx.Bucket(bucketByLabel).Bucket([]byte(label)); labelBucket != nil {
			if err := labelBucket.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := os.Remove(s.blobPath(id)); err != nil && !os.IsNotExist(err) {
		return errors.AddContext(err, "could not remove chunk body")
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !os.IsNotExist(err) {
		return errors.AddContext(err, "could not remove chunk label sidecar")
	}
	return nil
}

// Rebuild discards the index and reconstructs the id->label mapping from the
// blobs directory's ".label" sidecar files. This is a repair operation for a
// corrupted index, not a steady-state path.
func (s *ChunkStore) Rebuild() error {
	entries, err := os.ReadDir(filepath.Join(s.dir, "blobs"))
	if err != nil {
		return errors.AddContext(err, "could not list blob directory")
	}

	s.blobMu.Lock()
	defer s.blobMu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketByID); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if err := tx.DeleteBucket(bucketByLabel); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		idBucket, err := tx.CreateBucket(bucketByID)
		if err != nil {
			return err
		}
		labelBuckets, err := tx.CreateBucket(bucketByLabel)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			name := entry.Name()
			if filepath.Ext(name) != ".label" {
				continue
			}
			id := name[:len(name)-len(".label")]
			label, err := os.ReadFile(filepath.Join(s.dir, "blobs", name))
			if err != nil {
				return errors.AddContext(err, "could not read label sidecar for "+id)
			}
			if err := idBucket.Put([]byte(id), label); err != nil {
				return err
			}
			lb, err := labelBuckets.CreateBucketIfNotExists(label)
			if err != nil {
				return err
			}
			if err := lb.Put([]byte(id), nil); err != nil {
				return err
			}
		}
		return nil
	})
}
