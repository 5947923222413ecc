package ledgercrypto

import (
	"crypto/ed25519"

	"mercatoria.dev/core/ledgererr"
)

// Signature binds a public key and a detached signature to the phantom
// message type T it was produced over (spec.md §3, "Signature"). The
// signer's account is the hash of its public key.
type Signature[T any] struct {
	PublicKey []byte
	Sig       []byte
}

// SignerAccount returns hash(public_key) for sig, the account identity of
// whoever produced it.
func SignerAccount[T any](sig Signature[T]) [32]byte {
	return HashBytes(sig.PublicKey)
}

// GenerateKey produces a fresh Ed25519 keypair for tests and tooling.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, ledgererr.Wrap(ledgererr.CodeInvariantViolated, "key generation failed", err)
	}
	return pub, priv, nil
}

// Sign produces a Signature[T] over v's canonical encoding, Ed25519-style
// per spec.md §4.B.
func Sign[T Canonical](sk ed25519.PrivateKey, v T) Signature[T] {
	e := NewEncoder()
	v.EncodeCanonical(e)
	sig := ed25519.Sign(sk, e.Bytes())
	pub := sk.Public().(ed25519.PublicKey)
	return Signature[T]{
		PublicKey: append([]byte(nil), pub...),
		Sig:       append([]byte(nil), sig...),
	}
}

// Verify reports whether sig is a valid Ed25519 signature over v's
// canonical encoding under sig's embedded public key.
func Verify[T Canonical](sig Signature[T], v T) bool {
	e := NewEncoder()
	v.EncodeCanonical(e)
	return verifyEd25519Raw(sig.PublicKey, sig.Sig, e.Bytes())
}

func verifyEd25519Raw(pubkey, sig, message []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), message, sig)
}
