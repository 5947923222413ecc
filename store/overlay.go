package store

import (
	"mercatoria.dev/core/ledgercrypto"
)

// OverlayStore composes a read-only base with a write-buffered overlay: put
// writes only to the in-memory buffer, lookup tries the buffer first and
// falls back to base. This is the sole justified use of a mutable
// per-construction/per-verification map (spec.md §9): it lets verification
// recompute a subtree against a scratch buffer and compare the resulting
// hash to the proposed one without ever touching the base store.
type OverlayStore struct {
	base   Lookup
	buffer map[[32]byte][]byte
}

// NewOverlayStore wraps base with a fresh, empty write buffer.
func NewOverlayStore(base Lookup) *OverlayStore {
	return &OverlayStore{base: base, buffer: make(map[[32]byte][]byte)}
}

// PutBytes stores bs in the overlay's buffer only; the base store is never
// mutated.
func (o *OverlayStore) PutBytes(bs []byte) ([32]byte, error) {
	code := ledgercrypto.HashBytes(bs)
	o.buffer[code] = bs
	return code, nil
}

// LookupBytes tries the overlay buffer, then falls back to base.
func (o *OverlayStore) LookupBytes(code [32]byte) ([]byte, error) {
	if bs, ok := o.buffer[code]; ok {
		return bs, nil
	}
	return o.base.LookupBytes(code)
}

// Discard drops all staged writes. The base store is untouched either way
// since puts never reached it.
func (o *OverlayStore) Discard() {
	o.buffer = make(map[[32]byte][]byte)
}

// BufferLen reports how many distinct blobs are currently staged, useful
// for the node-count accounting spec.md §4.D calls for.
func (o *OverlayStore) BufferLen() int {
	return len(o.buffer)
}
