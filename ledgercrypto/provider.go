package ledgercrypto

// SignatureProvider is the narrow interface the rest of the core uses for
// signature verification, mirrored on the teacher's CryptoProvider
// (crypto/provider.go) so that swapping the signature suite — as the
// teacher did for ML-DSA/SLH-DSA — stays a one-file change instead of a
// rewrite of every verification call site.
type SignatureProvider interface {
	VerifyEd25519(pubkey, sig, message []byte) bool
}

// Ed25519Provider is the default, standard-library-backed provider.
type Ed25519Provider struct{}

func (Ed25519Provider) VerifyEd25519(pubkey, sig, message []byte) bool {
	return verifyEd25519Raw(pubkey, sig, message)
}
