package crypto

import (
	"crypto/sha512"
	"encoding/binary"

	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

// Sizes of the ML-DSA-87 (Dilithium mode 5) artifacts this system
// signs with — the whole post-quantum signature family the spec
// names, re-exported under our own names so callers never reach into
// circl directly.
const (
	MLDSAPublicKeySize  = mode5.PublicKeySize
	MLDSAPrivateKeySize = mode5.PrivateKeySize
	MLDSASignatureSize  = mode5.SignatureSize
)

// expandSeed stretches a 32-byte caller seed into exactly n bytes via
// counter-mode SHA-512, so keygen stays deterministic from a 32-byte
// seed (the spec's recovery requirement) regardless of mode5's own
// seed width.
func expandSeed(seed [32]byte, n int) []byte {
	out := make([]byte, 0, n+sha512.Size)
	var counter uint32
	for len(out) < n {
		var ctrBuf [4]byte
		binary.LittleEndian.PutUint32(ctrBuf[:], counter)
		block := sha512.Sum512(append(append([]byte{}, seed[:]...), ctrBuf[:]...))
		out = append(out, block[:]...)
		counter++
	}
	return out[:n]
}

// GenerateMLDSAKey derives an ML-DSA-87 keypair deterministically from
// a 32-byte seed.
func GenerateMLDSAKey(seed [32]byte) (pubkey, privkey []byte, err error) {
	expanded := expandSeed(seed, mode5.SeedSize)
	var seedArr [mode5.SeedSize]byte
	copy(seedArr[:], expanded)

	pk, sk := mode5.NewKeyFromSeed(&seedArr)

	var pkBuf [mode5.PublicKeySize]byte
	var skBuf [mode5.PrivateKeySize]byte
	pk.Pack(&pkBuf)
	sk.Pack(&skBuf)
	return pkBuf[:], skBuf[:], nil
}

// SignMLDSA signs msg under privkey, returning the raw signature
// bytes.
func SignMLDSA(privkey, msg []byte) ([]byte, error) {
	if len(privkey) != mode5.PrivateKeySize {
		return nil, cryptoErr(Malformed, "mldsa: wrong private key length")
	}
	var skBuf [mode5.PrivateKeySize]byte
	copy(skBuf[:], privkey)
	var sk mode5.PrivateKey
	sk.Unpack(skBuf[:])

	sig := make([]byte, mode5.SignatureSize)
	mode5.SignTo(&sk, msg, sig)
	return sig, nil
}

// VerifyMLDSA reports whether sig is a valid ML-DSA-87 signature over
// msg under pubkey. Never panics on malformed input — it returns
// false.
func VerifyMLDSA(pubkey, msg, sig []byte) bool {
	if len(pubkey) != mode5.PublicKeySize || len(sig) != mode5.SignatureSize {
		return false
	}
	var pkBuf [mode5.PublicKeySize]byte
	copy(pkBuf[:], pubkey)
	var pk mode5.PublicKey
	pk.Unpack(pkBuf[:])
	return mode5.Verify(&pk, msg, sig)
}

// SplitUnlock parses a P2PKH unlock blob into its signature and
// public key, the two fixed-width fields it always carries.
func SplitUnlock(unlock []byte) (sig, pubkey []byte, err error) {
	want := mode5.SignatureSize + mode5.PublicKeySize
	if len(unlock) != want {
		return nil, nil, cryptoErr(Malformed, "unlock: wrong length")
	}
	return unlock[:mode5.SignatureSize], unlock[mode5.SignatureSize:], nil
}

// BuildUnlock assembles a P2PKH unlock blob from a signature and
// public key, the inverse of SplitUnlock.
func BuildUnlock(sig, pubkey []byte) []byte {
	out := make([]byte, 0, len(sig)+len(pubkey))
	out = append(out, sig...)
	out = append(out, pubkey...)
	return out
}
