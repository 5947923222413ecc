package store

import (
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
)

// MemStore is an in-memory content-addressed store, used by tests.
type MemStore struct {
	blobs map[[32]byte][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[[32]byte][]byte)}
}

func (m *MemStore) PutBytes(bs []byte) ([32]byte, error) {
	code := ledgercrypto.HashBytes(bs)
	m.blobs[code] = append([]byte(nil), bs...)
	return code, nil
}

func (m *MemStore) LookupBytes(code [32]byte) ([]byte, error) {
	bs, ok := m.blobs[code]
	if !ok {
		return nil, ledgererr.Newf(ledgererr.CodeNotFound, "no blob for hash %x", code)
	}
	return bs, nil
}

// Len reports the number of distinct blobs stored.
func (m *MemStore) Len() int {
	return len(m.blobs)
}
