package ledgercrypto

import (
	"bytes"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte digest phantom-typed by the schema T it was computed
// over, so a hash produced for one value type cannot be silently looked up
// as another (spec.md §3, "Typed hash"). Equality and ordering compare only
// the digest bytes.
type Hash[T any] struct {
	digest [32]byte
}

// Bytes returns the raw 32-byte digest.
func (h Hash[T]) Bytes() [32]byte {
	return h.digest
}

// IsZero reports whether h is the zero value (used to represent an absent
// optional hash, e.g. a genesis block's "no previous main block").
func (h Hash[T]) IsZero() bool {
	return h.digest == [32]byte{}
}

// Equal reports whether h and o have the same digest.
func (h Hash[T]) Equal(o Hash[T]) bool {
	return h.digest == o.digest
}

// Less orders two hashes lexicographically by digest bytes.
func (h Hash[T]) Less(o Hash[T]) bool {
	return bytes.Compare(h.digest[:], o.digest[:]) < 0
}

// String renders the digest as lower-case hex.
func (h Hash[T]) String() string {
	return hex.EncodeToString(h.digest[:])
}

// HashFromBytes wraps an already-computed digest as a typed Hash, used when
// the caller (e.g. the content store) has computed the hash independently
// of EncodeCanonical.
func HashFromBytes[T any](digest [32]byte) Hash[T] {
	return Hash[T]{digest: digest}
}

// hashBytes is the digest function behind hash(v): SHA3-256, matching the
// teacher's crypto/devstd.go provider.
func hashBytes(b []byte) [32]byte {
	h := sha3.New256()
	_, _ = h.Write(b)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashBytes computes the content-store digest of arbitrary bytes (used by
// store.Lookup/Put, which operate below the typed-Hash layer).
func HashBytes(b []byte) [32]byte {
	return hashBytes(b)
}

// HashOf computes the typed hash of a Canonical value: the digest of its
// canonical serialization. The serialization used here must be bit-identical
// to whatever serialization a peer used to sign or store the same value.
func HashOf[T Canonical](v T) Hash[T] {
	e := NewEncoder()
	v.EncodeCanonical(e)
	return Hash[T]{digest: hashBytes(e.Bytes())}
}
