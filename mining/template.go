// Package mining assembles block templates from the current tip and
// mempool, and runs the proof-of-work search loop.
package mining

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/big"

	"btpc.dev/node/chainindex"
	"btpc.dev/node/consensus"
	"btpc.dev/node/internal/log"
	"btpc.dev/node/mempool"
)

// Template is a candidate block awaiting a winning nonce.
type Template struct {
	Block  consensus.Block
	Height uint64
	Target consensus.Hash
}

// BuildTemplate assembles a template extending the engine's current
// tip: a coinbase paying the block subsidy plus collected fees to
// payoutCommitment, followed by the highest fee-rate mempool entries
// that fit within MaxBlockSize.
func BuildTemplate(chain *chainindex.Engine, pool *mempool.Pool, payoutCommitment []byte, now uint64) (*Template, error) {
	tipHash := chain.TipHash()
	tipRec, ok := chain.HeaderByHash(tipHash)
	if !ok {
		return nil, consensus.NewError(consensus.ValUnknownParent, "mining: no tip available")
	}
	height := tipRec.Height + 1

	bits := tipRec.Header.Bits
	target, err := consensus.BitsToTarget(bits)
	if err != nil {
		return nil, err
	}

	candidates := pool.GetByFee(-1)

	var fees uint64
	txs := make([]consensus.Transaction, 0, len(candidates)+1)
	txs = append(txs, consensus.Transaction{}) // placeholder for coinbase, replaced below

	const headerSize = 4 + consensus.HashSize + consensus.HashSize + 8 + 4 + 4
	size := headerSize + 16 // header + tx count compactsize slack
	for _, entry := range candidates {
		if uint64(size)+entry.Size > consensus.MaxBlockSize {
			continue
		}
		txs = append(txs, entry.Transaction)
		size += int(entry.Size)
		fees += entry.Fee
	}

	subsidy := consensus.BlockSubsidy(height)
	coinbase := buildCoinbase(height, subsidy+fees, payoutCommitment)
	txs[0] = coinbase

	txids := make([]consensus.Hash, len(txs))
	for i := range txs {
		txids[i] = txs[i].TxID()
	}
	merkleRoot, err := consensus.MerkleRoot(txids)
	if err != nil {
		return nil, err
	}

	header := consensus.BlockHeader{
		Version:    1,
		PrevHash:   tipHash,
		MerkleRoot: merkleRoot,
		Timestamp:  now,
		Bits:       bits,
		Nonce:      0,
	}

	block := consensus.Block{Header: header, Transactions: txs}
	log.Mining.Debug().Uint64("height", height).Int("tx_count", len(txs)).Uint64("fees", fees).Msg("mining: template assembled")
	return &Template{Block: block, Height: height, Target: target}, nil
}

func buildCoinbase(height uint64, reward uint64, payoutCommitment []byte) consensus.Transaction {
	in := consensus.TxInput{
		PrevOut:  consensus.OutPoint{TxID: consensus.ZeroHash, Vout: consensus.CoinbaseVout},
		Unlock:   heightPayload(height),
		Sequence: 0,
	}
	out := consensus.TxOutput{Value: reward, LockCommitment: payoutCommitment}
	return consensus.Transaction{Version: 1, Inputs: []consensus.TxInput{in}, Outputs: []consensus.TxOutput{out}}
}

// heightPayload commits the block height into the coinbase's unlock
// field so that two coinbases at different heights never collide on
// txid even when reward and payout address happen to match.
func heightPayload(height uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(height >> (8 * i))
	}
	return b
}

// Result is a successfully mined block, ready for submission.
type Result struct {
	Block consensus.Block
	Nonce uint32
}

// pollInterval is how many nonces are tried between context
// cancellation checks.
const pollInterval = 100000

// randomStartNonce returns a uniformly random u32 so that parallel
// miners searching the same template desynchronize instead of racing
// through the space in lockstep from zero.
func randomStartNonce() uint32 {
	var b [4]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b[:])
}

// Mine searches the nonce space for tmpl starting at a random nonce,
// polling ctx for cancellation every pollInterval attempts. It returns
// nil, nil if ctx is cancelled before a winning nonce is found, and
// PoWNonceExhausted once the search wraps back around to its start
// nonce without finding one.
func Mine(ctx context.Context, tmpl *Template) (*Result, error) {
	header := tmpl.Block.Header
	startNonce := randomStartNonce()
	nonce := startNonce
	for {
		for i := 0; i < pollInterval; i++ {
			header.Nonce = nonce
			if consensus.HashMeetsTarget(header.Hash(), tmpl.Target) {
				block := tmpl.Block
				block.Header.Nonce = nonce
				return &Result{Block: block, Nonce: nonce}, nil
			}
			nonce++
			if nonce == startNonce {
				return nil, consensus.NewError(consensus.PoWNonceExhausted, "mining: nonce space exhausted")
			}
		}
		select {
		case <-ctx.Done():
			return nil, nil
		default:
		}
	}
}

// EstimateHashrate reports an approximate attempts-per-second figure
// given elapsedSeconds spent trying nonces attempts times; used for
// status reporting only, never for consensus decisions.
func EstimateHashrate(attempts uint64, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return float64(attempts) / elapsedSeconds
}

// difficultyFromTarget converts a target back to an approximate
// human-readable difficulty multiple of the network minimum, for
// logging/status surfaces only.
func difficultyFromTarget(target, minTarget consensus.Hash) float64 {
	t := new(big.Int).SetBytes(target[:])
	m := new(big.Int).SetBytes(minTarget[:])
	if t.Sign() == 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(m, t)
	f, _ := ratio.Float64()
	return f
}
