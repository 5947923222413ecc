// Package store implements the abstract content-addressed store of
// spec.md §4.C: put/get of serialized values keyed by their digest, plus an
// overlay composition used to stage writes without touching a base store.
package store

import (
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
)

// Lookup resolves a digest to the bytes that hash to it.
type Lookup interface {
	LookupBytes(code [32]byte) ([]byte, error)
}

// Putter stores bytes, returning their digest. Putting the same bytes twice
// is a no-op (idempotent).
type Putter interface {
	PutBytes(bs []byte) ([32]byte, error)
}

// Store is a full content-addressed store: lookup plus put.
type Store interface {
	Lookup
	Putter
}

// Put serializes v canonically, stores it, and returns its typed hash.
func Put[T ledgercrypto.Canonical](s Putter, v T) (ledgercrypto.Hash[T], error) {
	e := ledgercrypto.NewEncoder()
	v.EncodeCanonical(e)
	code, err := s.PutBytes(e.Bytes())
	if err != nil {
		var zero ledgercrypto.Hash[T]
		return zero, err
	}
	return ledgercrypto.HashFromBytes[T](code), nil
}

// Decoder is implemented by every type that typed Lookup can produce: it
// parses its own canonical encoding back out of raw bytes.
type Decoder interface {
	DecodeCanonical(b []byte) error
}

// LookupTyped resolves h to a value of type T, decoding its canonical
// encoding. T's DecodeCanonical has a pointer receiver (it mutates the
// value in place), so the constraint is expressed on *T via PT; callers
// write store.LookupTyped[MyType](s, h).
func LookupTyped[T any, PT interface {
	*T
	Decoder
}](s Lookup, h ledgercrypto.Hash[T]) (T, error) {
	digest := h.Bytes()
	bs, err := s.LookupBytes(digest)
	if err != nil {
		var zero T
		return zero, err
	}
	var v T
	if err := PT(&v).DecodeCanonical(bs); err != nil {
		var zero T
		return zero, ledgererr.Wrap(ledgererr.CodeDecode, "typed lookup decode failed", err)
	}
	return v, nil
}
