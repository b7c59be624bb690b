package consensus

import (
	"bytes"
	"math/big"
)

// two512 is 2^512, the modulus used for both target unpacking bounds
// and the per-header work computation.
var two512 = new(big.Int).Lsh(big.NewInt(1), 512)

// BitsToTarget unpacks the compact "bits" encoding into a full 512-bit
// big-endian target: one exponent byte (total byte-length of the
// target) followed by a 3-byte significand, the remainder zero-padded.
func BitsToTarget(bits uint32) (Hash, error) {
	exponent := int(bits >> 24)
	significand := new(big.Int).SetUint64(uint64(bits & 0x00ffffff))

	var target *big.Int
	switch {
	case exponent <= 3:
		target = new(big.Int).Rsh(significand, uint(8*(3-exponent)))
	case exponent > HashSize:
		return Hash{}, powErr(PoWInvalidProof, "pow: bits exponent overflows 512-bit target")
	default:
		target = new(big.Int).Lsh(significand, uint(8*(exponent-3)))
	}
	return bigIntToHash(target)
}

// TargetToBits packs a full 512-bit target back into the compact
// "bits" form, choosing the minimal exponent/significand pair that
// round-trips through BitsToTarget.
func TargetToBits(target Hash) uint32 {
	x := new(big.Int).SetBytes(target[:])
	if x.Sign() == 0 {
		return 0
	}
	raw := x.Bytes() // big-endian, no leading zeros
	exponent := len(raw)

	var significandBytes [3]byte
	switch {
	case exponent <= 3:
		// left-pad raw into the low-order bytes of the significand
		copy(significandBytes[3-exponent:], raw)
	default:
		copy(significandBytes[:], raw[:3])
	}
	significand := uint32(significandBytes[0])<<16 | uint32(significandBytes[1])<<8 | uint32(significandBytes[2])

	// Bitcoin-style sign-bit avoidance: if the top bit of the
	// significand is set, bump the exponent and shift right one byte
	// so the value is never misread as negative by implementations
	// that treat bits 0x00800000 as a sign flag.
	if significand&0x00800000 != 0 {
		significand >>= 8
		exponent++
	}
	return uint32(exponent)<<24 | significand
}

func bigIntToHash(x *big.Int) (Hash, error) {
	var out Hash
	if x.Sign() < 0 {
		return out, powErr(PoWInvalidProof, "pow: negative target")
	}
	b := x.Bytes()
	if len(b) > HashSize {
		return out, powErr(PoWInvalidProof, "pow: target overflows 512 bits")
	}
	copy(out[HashSize-len(b):], b)
	return out, nil
}

// HashMeetsTarget is the big-endian unsigned compare h <= target.
func HashMeetsTarget(h, target Hash) bool {
	return bytes.Compare(h[:], target[:]) <= 0
}

// Work returns floor(2^512 / (target+1)), the scalar measure of
// expected hashes needed to meet target. Deliberately a big.Int
// accumulator, not float64 — the source's use of f64 for
// calculate_chain_work loses precision at depth.
func Work(target Hash) *big.Int {
	t := new(big.Int).SetBytes(target[:])
	denom := new(big.Int).Add(t, big.NewInt(1))
	return new(big.Int).Div(two512, denom)
}

// CheckPoW reports whether header's hash meets the target encoded by
// its own bits field.
func CheckPoW(header *BlockHeader) error {
	target, err := BitsToTarget(header.Bits)
	if err != nil {
		return err
	}
	if !HashMeetsTarget(header.Hash(), target) {
		return valErr(ValBadPoW, "pow: hash exceeds target")
	}
	return nil
}

// Retarget computes the next "bits" value from the previous target and
// the observed timespan of the last DifficultyAdjustmentPeriod blocks,
// clamping actualTimespan to [TargetTimespan/4, TargetTimespan*4]
// before applying next_target = prev_target * actual / expected, and
// floors the result at minDifficulty (the network's easiest target).
func Retarget(prevBits uint32, actualTimespan uint64, minDifficulty uint32) (uint32, error) {
	prevTarget, err := BitsToTarget(prevBits)
	if err != nil {
		return 0, err
	}

	lowerSpan := TargetTimespan / 4
	upperSpan := TargetTimespan * 4
	clamped := actualTimespan
	if clamped < lowerSpan {
		clamped = lowerSpan
	}
	if clamped > upperSpan {
		clamped = upperSpan
	}

	pt := new(big.Int).SetBytes(prevTarget[:])
	num := new(big.Int).Mul(pt, new(big.Int).SetUint64(clamped))
	den := new(big.Int).SetUint64(TargetTimespan)
	next := new(big.Int).Div(num, den)

	minTarget, err := BitsToTarget(minDifficulty)
	if err != nil {
		return 0, err
	}
	mt := new(big.Int).SetBytes(minTarget[:])
	if next.Cmp(mt) > 0 {
		next = mt
	}

	h, err := bigIntToHash(next)
	if err != nil {
		return 0, err
	}
	return TargetToBits(h), nil
}
