package store

import (
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
)

var bucketBlobs = []byte("blobs_by_hash")

// BoltStore is the persistent content-addressed base store, grounded on
// the teacher's bbolt wiring in node/store/db.go — generalized from five
// UTXO-shaped buckets down to a single blob-by-hash bucket, since every
// persistent value in this ledger (data-tree nodes, quorum nodes, main
// blocks, options) is addressed the same way.
type BoltStore struct {
	path string
	db   *bolt.DB
}

// BoltStorePath returns the conventional on-disk path for a chain's content
// store, mirroring node/store.ChainDir's "one directory per chain" layout.
func BoltStorePath(dataDir, chainIDHex string) string {
	return filepath.Join(dataDir, "chains", chainIDHex, "content.db")
}

// OpenBoltStore opens (creating if absent) the bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &BoltStore{path: path, db: db}, nil
}

// Close releases the underlying bbolt handle.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutBytes stores bs under its content hash. Re-putting identical bytes is
// a no-op write (the bucket entry is simply overwritten with the same
// value).
func (s *BoltStore) PutBytes(bs []byte) ([32]byte, error) {
	code := ledgercrypto.HashBytes(bs)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put(code[:], bs)
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("store: put: %w", err)
	}
	return code, nil
}

// LookupBytes resolves code to its stored bytes, or CodeNotFound.
func (s *BoltStore) LookupBytes(code [32]byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get(code[:])
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: lookup: %w", err)
	}
	if out == nil {
		return nil, ledgererr.Newf(ledgererr.CodeNotFound, "no blob for hash %x", code)
	}
	return out, nil
}
