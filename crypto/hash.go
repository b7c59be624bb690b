package crypto

import (
	"crypto/sha512"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // RIPEMD-160 is a required wire primitive, not a vulnerability
)

// Hash512 returns the single SHA-512 digest of b.
func Hash512(b []byte) [64]byte {
	return sha512.Sum512(b)
}

// DoubleHash512 returns SHA-512(SHA-512(b)).
func DoubleHash512(b []byte) [64]byte {
	first := sha512.Sum512(b)
	return sha512.Sum512(first[:])
}

// Hash160 is SHA-512 followed by RIPEMD-160, yielding the 20-byte
// address commitment used by P2PKH/P2SH locking commitments.
func Hash160(b []byte) [20]byte {
	first := sha512.Sum512(b)
	h := ripemd160.New()
	h.Write(first[:])
	sum := h.Sum(nil)
	var out [20]byte
	copy(out[:], sum)
	return out
}
