package crypto

import "github.com/btcsuite/btcd/btcutil/base58"

// checksumLen is the number of checksum bytes appended to a
// Base58Check payload: 4 bytes of double-SHA-512, not the Bitcoin
// convention of double-SHA-256. Intentional, and documented here
// since it is the one place an implementer coming from Bitcoin-style
// systems would assume otherwise.
const checksumLen = 4

// Base58CheckEncode encodes version||payload with a trailing 4-byte
// double-SHA-512 checksum.
func Base58CheckEncode(version byte, payload []byte) string {
	body := make([]byte, 0, 1+len(payload)+checksumLen)
	body = append(body, version)
	body = append(body, payload...)
	checksum := DoubleHash512(body)
	body = append(body, checksum[:checksumLen]...)
	return base58.Encode(body)
}

// Base58CheckDecode reverses Base58CheckEncode, returning the version
// byte and payload. Fails with BadChecksum if the trailing checksum
// does not match, or Malformed if the decoded body is too short to
// contain a version byte and checksum. If knownVersions is non-empty,
// a decoded version byte outside that set fails with UnknownVersion —
// this package has no notion of network, so callers that care which
// prefixes are valid (an address decoded for a specific network) pass
// them in rather than Base58CheckDecode hard-coding any.
func Base58CheckDecode(s string, knownVersions ...byte) (version byte, payload []byte, err error) {
	body := base58.Decode(s)
	if len(body) < 1+checksumLen {
		return 0, nil, cryptoErr(Malformed, "base58check: too short")
	}
	data := body[:len(body)-checksumLen]
	wantChecksum := body[len(body)-checksumLen:]

	gotChecksum := DoubleHash512(data)
	for i := 0; i < checksumLen; i++ {
		if gotChecksum[i] != wantChecksum[i] {
			return 0, nil, cryptoErr(BadChecksum, "base58check: checksum mismatch")
		}
	}

	version = data[0]
	if len(knownVersions) > 0 {
		known := false
		for _, v := range knownVersions {
			if v == version {
				known = true
				break
			}
		}
		if !known {
			return 0, nil, cryptoErr(UnknownVersion, "base58check: unrecognized version byte")
		}
	}
	return version, data[1:], nil
}
