package consensus

import "math/big"

// decreasePerBlock is DECREASE_PER_BLOCK: integer (truncating)
// division, not a closed-form rational. The truncation is
// intentional — see the boundary note on BlockSubsidy.
func decreasePerBlock() uint64 {
	return (InitialReward - TailEmission) / DecayEndHeight
}

// boundaryHeight is the last block of the decay, required to equal
// TailEmission exactly so the schedule is continuous across the
// DecayEndHeight boundary. decreasePerBlock's truncation means the
// linear formula alone lands above TailEmission at this height for
// these constants, so it is clamped explicitly rather than relying on
// the decay to reach it unaided.
const boundaryHeight = DecayEndHeight - 1

// BlockSubsidy returns the block reward at height, linearly decaying
// from InitialReward at height 0 to TailEmission at boundaryHeight,
// constant thereafter.
func BlockSubsidy(height uint64) uint64 {
	if height >= DecayEndHeight {
		return TailEmission
	}
	if height == boundaryHeight {
		return TailEmission
	}
	d := decreasePerBlock()
	decayed := height * d
	diff := InitialReward - TailEmission
	if decayed >= diff {
		return TailEmission
	}
	return InitialReward - decayed
}

// clampHeight is the first height at which the unclamped decay
// formula would fall to or below TailEmission.
func clampHeight() uint64 {
	d := decreasePerBlock()
	if d == 0 {
		return DecayEndHeight
	}
	diff := InitialReward - TailEmission
	h := diff / d
	if diff%d != 0 {
		h++
	}
	if h > DecayEndHeight {
		h = DecayEndHeight
	}
	return h
}

// CumulativeSupply returns the total credits emitted by blocks
// [0, height), as a closed-form arithmetic sum over the decaying
// prefix plus tail_blocks * TailEmission for the flat remainder —
// not a per-block loop.
func CumulativeSupply(height uint64) *big.Int {
	hc := clampHeight()
	unclampedEnd := height
	if unclampedEnd > hc {
		unclampedEnd = hc
	}

	n := new(big.Int).SetUint64(unclampedEnd)
	initial := new(big.Int).SetUint64(InitialReward)
	d := new(big.Int).SetUint64(decreasePerBlock())

	sum := new(big.Int).Mul(n, initial)
	if unclampedEnd > 0 {
		nMinus1 := new(big.Int).SetUint64(unclampedEnd - 1)
		triangular := new(big.Int).Mul(n, nMinus1)
		triangular.Div(triangular, big.NewInt(2))
		triangular.Mul(triangular, d)
		sum.Sub(sum, triangular)
	}

	// BlockSubsidy forces an exact TailEmission at boundaryHeight,
	// overriding what the linear formula above would otherwise have
	// summed for that single block; correct for it once it falls
	// within the summed range.
	if unclampedEnd > boundaryHeight {
		unclamped := InitialReward - boundaryHeight*decreasePerBlock()
		excess := new(big.Int).SetUint64(unclamped - TailEmission)
		sum.Sub(sum, excess)
	}

	var flatBlocks uint64
	if height > unclampedEnd {
		flatBlocks = height - unclampedEnd
	}
	flat := new(big.Int).Mul(new(big.Int).SetUint64(flatBlocks), new(big.Int).SetUint64(TailEmission))
	return sum.Add(sum, flat)
}
