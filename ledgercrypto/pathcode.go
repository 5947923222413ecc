package ledgercrypto

import (
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgererr"
)

// PathToHashCode packs a 64-nibble account path into its 32-byte account
// identifier, two nibbles per byte. It requires |p| = 64 (spec.md §4.B); any
// other length is a programmer error, not a data error, so it surfaces as
// InvariantViolated.
func PathToHashCode(p hexpath.Path) ([32]byte, error) {
	if len(p) != 64 {
		return [32]byte{}, ledgererr.Newf(ledgererr.CodeInvariantViolated,
			"path_to_hash_code: path length %d != 64", len(p))
	}
	var out [32]byte
	for i := 0; i < 32; i++ {
		hi := p[2*i]
		lo := p[2*i+1]
		out[i] = byte(hi)<<4 | byte(lo)&0x0f
	}
	return out, nil
}

// XorHashCodes XORs two 32-byte codes. It exists only for the external
// DHT-based hash shard router (spec.md §4.B); the core never calls it.
func XorHashCodes(a, b [32]byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}
