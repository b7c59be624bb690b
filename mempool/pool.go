// Package mempool implements the unconfirmed-transaction store: fee-
// rate admission, double-spend rejection against both the active
// UTXO set and other mempool members, size/count caps with no
// built-in low-fee eviction (over-capacity is rejected, not made room
// for by evicting), and TTL expiry.
package mempool

import (
	"sort"
	"sync"

	"btpc.dev/node/consensus"
	"btpc.dev/node/internal/log"
)

// Entry is a single admitted transaction plus the bookkeeping the
// mempool needs to order and expire it.
type Entry struct {
	Transaction consensus.Transaction
	TxID        consensus.Hash
	Size        uint64
	Fee         uint64
	FeePerByte  float64
	AddedTime   uint64
}

// Pool is the mempool. MaxTx, MaxBytes and MinFeePerByte default to
// the protocol parameters but are overridable for testing.
type Pool struct {
	mu sync.Mutex

	utxos consensus.UTXOSource
	nowFn func() uint64

	maxTx         int
	maxBytes      uint64
	minFeePerByte uint64

	entries    map[consensus.Hash]*Entry
	spentBy    map[consensus.OutPoint]consensus.Hash
	totalBytes uint64
}

// New constructs a mempool admitting against utxos, using nowFn as the
// clock for AddedTime and Expire.
func New(utxos consensus.UTXOSource, nowFn func() uint64) *Pool {
	return &Pool{
		utxos:         utxos,
		nowFn:         nowFn,
		maxTx:         consensus.MempoolMaxTx,
		maxBytes:      consensus.MempoolMaxBytes,
		minFeePerByte: consensus.MinFeePerByte,
		entries:       make(map[consensus.Hash]*Entry),
		spentBy:       make(map[consensus.OutPoint]consensus.Hash),
	}
}

// AddTransaction validates and admits tx, or returns a typed Error.
func (p *Pool) AddTransaction(tx consensus.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	txid := tx.TxID()
	if _, exists := p.entries[txid]; exists {
		return mempoolErr(Duplicate, "transaction already in mempool")
	}
	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return mempoolErr(Invalid, "transaction has empty input or output list")
	}

	size := uint64(len(tx.Encode()))
	if size > consensus.MaxTxSize {
		return mempoolErr(TxTooLarge, "transaction exceeds max tx size")
	}

	var inputSum, outputSum uint64
	for _, in := range tx.Inputs {
		if owner, conflict := p.spentBy[in.PrevOut]; conflict && owner != txid {
			return mempoolErr(DoubleSpend, "input conflicts with an existing mempool entry")
		}
		utxo, ok := p.utxos.Get(in.PrevOut)
		if !ok {
			return mempoolErr(Invalid, "referenced utxo does not exist")
		}
		inputSum += utxo.Value
	}
	for _, out := range tx.Outputs {
		outputSum += out.Value
	}
	if outputSum > inputSum {
		return mempoolErr(Invalid, "transaction spends more than its inputs")
	}
	fee := inputSum - outputSum
	feePerByte := float64(fee) / float64(size)
	if feePerByte < float64(p.minFeePerByte) {
		return mempoolErr(FeeTooLow, "fee rate below minimum")
	}

	if len(p.entries)+1 > p.maxTx {
		return mempoolErr(MempoolFull, "mempool transaction count limit reached")
	}
	if p.totalBytes+size > p.maxBytes {
		return mempoolErr(MempoolSizeLimitExceeded, "mempool byte size limit reached")
	}

	entry := &Entry{
		Transaction: tx,
		TxID:        txid,
		Size:        size,
		Fee:         fee,
		FeePerByte:  feePerByte,
		AddedTime:   p.nowFn(),
	}
	p.entries[txid] = entry
	for _, in := range tx.Inputs {
		p.spentBy[in.PrevOut] = txid
	}
	p.totalBytes += size
	log.Mempool.Debug().Str("txid", txid.String()).Uint64("fee", fee).Msg("mempool: admitted transaction")
	return nil
}

// Remove drops txid from the pool, e.g. on block inclusion.
func (p *Pool) Remove(txid consensus.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txid)
}

func (p *Pool) removeLocked(txid consensus.Hash) {
	entry, ok := p.entries[txid]
	if !ok {
		return
	}
	for _, in := range entry.Transaction.Inputs {
		if owner := p.spentBy[in.PrevOut]; owner == txid {
			delete(p.spentBy, in.PrevOut)
		}
	}
	p.totalBytes -= entry.Size
	delete(p.entries, txid)
}

// RemoveConflicting drops any entry no longer consistent with the
// current UTXO set — called after a block applies or a reorg lands,
// before re-admitting disconnected transactions.
func (p *Pool) RemoveConflicting() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for txid, entry := range p.entries {
		for _, in := range entry.Transaction.Inputs {
			if _, ok := p.utxos.Get(in.PrevOut); !ok {
				p.removeLocked(txid)
				break
			}
		}
	}
}

// GetByFee returns up to limit entries ordered by fee_per_byte
// descending, with stable tie-breaking by txid ascending.
func (p *Pool) GetByFee(limit int) []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].FeePerByte != all[j].FeePerByte {
			return all[i].FeePerByte > all[j].FeePerByte
		}
		return all[i].TxID.Less(all[j].TxID)
	})
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// Expire removes entries older than maxAge seconds, measured against
// nowFn.
func (p *Pool) Expire(maxAge uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.nowFn()
	for txid, entry := range p.entries {
		if now-entry.AddedTime > maxAge {
			p.removeLocked(txid)
		}
	}
}

// Stats summarizes the pool's current contents.
type Stats struct {
	Count      int
	TotalBytes uint64
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Count: len(p.entries), TotalBytes: p.totalBytes}
}
