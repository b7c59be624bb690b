package crypto

// Provider is the narrow surface consensus-level code needs from this
// package, so validation and mining logic can be exercised against a
// fake in tests without linking the real ML-DSA implementation.
type Provider interface {
	Hash(b []byte) [64]byte
	DoubleHash(b []byte) [64]byte
	Hash160(pubkey []byte) [20]byte
	VerifyMLDSA(pubkey, msg, sig []byte) bool
}

// StdProvider is the production Provider: SHA-512/RIPEMD-160 hashing
// and circl's ML-DSA-87 (Dilithium mode 5) signature verification.
type StdProvider struct{}

func (StdProvider) Hash(b []byte) [64]byte       { return Hash512(b) }
func (StdProvider) DoubleHash(b []byte) [64]byte { return DoubleHash512(b) }
func (StdProvider) Hash160(pubkey []byte) [20]byte {
	return Hash160(pubkey)
}
func (StdProvider) VerifyMLDSA(pubkey, msg, sig []byte) bool {
	return VerifyMLDSA(pubkey, msg, sig)
}
