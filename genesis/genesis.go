// Package genesis deterministically constructs each network's genesis
// block: a single coinbase paying InitialReward, a network-identifying
// payload in its unlock bytes (what keeps distinct networks' genesis
// hashes from colliding), a fixed timestamp, and a nonce mined once to
// the network's starting difficulty.
package genesis

import (
	"btpc.dev/node/consensus"
)

// Params bundles a network's immutable, process-wide constants:
// magic bytes, default ports, starting difficulty and genesis
// timestamp — recovered from the original source's NetworkConstants,
// which the distilled spec only sketches.
type Params struct {
	Network          consensus.Network
	Magic            [4]byte
	DefaultP2PPort   uint16
	DefaultRPCPort   uint16
	MinDifficulty    uint32
	GenesisTimestamp uint64
}

// NetworkParams returns the fixed parameter set for a network.
func NetworkParams(n consensus.Network) Params {
	switch n {
	case consensus.Mainnet:
		return Params{
			Network:          n,
			Magic:            [4]byte{0xb7, 0x70, 0xc0, 0x01},
			DefaultP2PPort:   8733,
			DefaultRPCPort:   8732,
			MinDifficulty:    consensus.MinDifficultyBits(n),
			GenesisTimestamp: 1704067200, // 2024-01-01T00:00:00Z
		}
	case consensus.Testnet:
		return Params{
			Network:          n,
			Magic:            [4]byte{0xb7, 0x70, 0x7e, 0x57},
			DefaultP2PPort:   18733,
			DefaultRPCPort:   18732,
			MinDifficulty:    consensus.MinDifficultyBits(n),
			GenesisTimestamp: 1704067200,
		}
	default: // Regtest
		return Params{
			Network:          n,
			Magic:            [4]byte{0xb7, 0x70, 0xfe, 0xed},
			DefaultP2PPort:   28733,
			DefaultRPCPort:   28732,
			MinDifficulty:    consensus.MinDifficultyBits(n),
			GenesisTimestamp: 1704067200,
		}
	}
}

// coinbasePayload is the unlock blob carried by genesis's coinbase
// input; it exists only to make each network's genesis block hash
// distinct, since otherwise mainnet/testnet/regtest would share an
// identical genesis encoding.
func coinbasePayload(n consensus.Network) []byte {
	return []byte("btpc-genesis-" + n.String())
}

// unspendableCommitment is an all-zero hash160-sized commitment;
// genesis's coinbase output is conventionally unspendable.
var unspendableCommitment = make([]byte, 20)

// Build constructs and mines network's genesis block. Regtest's
// MinDifficulty is trivially easy so this returns almost immediately;
// mainnet/testnet genesis mining is expected to run once at protocol
// definition time and the resulting nonce hard-coded thereafter, but
// this function always re-derives it from the same deterministic
// inputs so the result is reproducible.
func Build(n consensus.Network) (*consensus.Block, error) {
	p := NetworkParams(n)

	coinbase := consensus.Transaction{
		Version: 1,
		Inputs: []consensus.TxInput{{
			PrevOut:  consensus.OutPoint{TxID: consensus.ZeroHash, Vout: consensus.CoinbaseVout},
			Unlock:   coinbasePayload(n),
			Sequence: 0,
		}},
		Outputs: []consensus.TxOutput{{
			Value:          consensus.InitialReward,
			LockCommitment: unspendableCommitment,
		}},
		LockTime: 0,
	}

	merkleRoot, err := consensus.MerkleRootOfTxs([]consensus.Transaction{coinbase})
	if err != nil {
		return nil, err
	}

	header := consensus.BlockHeader{
		Version:    1,
		PrevHash:   consensus.ZeroHash,
		MerkleRoot: merkleRoot,
		Timestamp:  p.GenesisTimestamp,
		Bits:       p.MinDifficulty,
		Nonce:      0,
	}

	target, err := consensus.BitsToTarget(header.Bits)
	if err != nil {
		return nil, err
	}
	for nonce := uint32(0); ; nonce++ {
		header.Nonce = nonce
		if consensus.HashMeetsTarget(header.Hash(), target) {
			break
		}
		if nonce == ^uint32(0) {
			return nil, consensus.NewError(consensus.PoWNonceExhausted, "genesis: nonce space exhausted")
		}
	}

	return &consensus.Block{Header: header, Transactions: []consensus.Transaction{coinbase}}, nil
}
