package mining

import (
	"context"
	"time"

	"btpc.dev/node/chainindex"
	"btpc.dev/node/internal/log"
	"btpc.dev/node/mempool"
)

// Miner drives a continuous build-template/search/submit loop against
// a chain engine. It is a convenience wrapper for single-process test
// networks and local mining; production mining pools drive Mine and
// BuildTemplate directly against their own work-distribution logic.
type Miner struct {
	chain            *chainindex.Engine
	pool             *mempool.Pool
	payoutCommitment []byte
	nowFn            func() uint64
}

// NewMiner constructs a Miner paying block rewards to payoutCommitment.
func NewMiner(chain *chainindex.Engine, pool *mempool.Pool, payoutCommitment []byte, nowFn func() uint64) *Miner {
	return &Miner{chain: chain, pool: pool, payoutCommitment: payoutCommitment, nowFn: nowFn}
}

// Run mines blocks until ctx is cancelled, submitting each winning
// block to the chain engine and rebuilding the template on top of the
// resulting tip (picking up new mempool entries and any tip change
// from a competing block arriving concurrently).
func (m *Miner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tmpl, err := BuildTemplate(m.chain, m.pool, m.payoutCommitment, m.nowFn())
		if err != nil {
			log.Mining.Error().Err(err).Msg("mining: template build failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		result, err := Mine(ctx, tmpl)
		if err != nil {
			log.Mining.Error().Err(err).Msg("mining: search failed")
			continue
		}
		if result == nil {
			// ctx cancelled mid-search
			continue
		}

		if err := m.chain.SubmitHeader(result.Block.Header); err != nil {
			log.Mining.Warn().Err(err).Msg("mining: mined header rejected, likely raced by a competing tip")
			continue
		}
		if err := m.chain.SubmitBlock(&result.Block, m.nowFn()); err != nil {
			log.Mining.Warn().Err(err).Msg("mining: mined block rejected, likely raced by a competing tip")
			continue
		}
		log.Mining.Info().
			Str("hash", result.Block.Header.Hash().String()).
			Uint64("height", tmpl.Height).
			Uint32("nonce", result.Nonce).
			Msg("mining: block found")
	}
}
