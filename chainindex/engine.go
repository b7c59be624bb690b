// Package chainindex implements the header index and chain engine:
// submit_header/submit_block, tip selection by strictly maximal
// accumulated work, fork detection and reorganization.
package chainindex

import (
	"math/big"
	"sync"

	"btpc.dev/node/consensus"
	"btpc.dev/node/crypto"
	"btpc.dev/node/internal/log"
	"btpc.dev/node/mempool"
	"btpc.dev/node/store"
	"btpc.dev/node/utxoset"
)

// Engine is the single writer for header index, UTXO set and tip
// state. Readers may call its read-only methods concurrently; State
// mutation (SubmitHeader/SubmitBlock) is serialized by mu.
type Engine struct {
	mu sync.RWMutex

	engine   *store.Engine
	utxos    *utxoset.Set
	pool     *mempool.Pool
	provider crypto.Provider

	network       consensus.Network
	minDifficulty uint32

	headers   map[consensus.Hash]*HeaderRecord
	tipHash   consensus.Hash
	tipHeight uint64
}

// New wires an Engine over its storage and collaborators. genesisBlock
// seeds the header index and UTXO set if the store is empty.
func New(eng *store.Engine, utxos *utxoset.Set, pool *mempool.Pool, provider crypto.Provider, network consensus.Network, genesisBlock *consensus.Block) (*Engine, error) {
	e := &Engine{
		engine:        eng,
		utxos:         utxos,
		pool:          pool,
		provider:      provider,
		network:       network,
		minDifficulty: consensus.MinDifficultyBits(network),
		headers:       make(map[consensus.Hash]*HeaderRecord),
	}

	if err := e.loadFromStore(); err != nil {
		return nil, err
	}
	if len(e.headers) == 0 {
		if err := e.initGenesis(genesisBlock); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) loadFromStore() error {
	return e.engine.IterPrefix([]byte(store.PrefixHeader), func(key, value []byte) bool {
		rec, err := decodeHeaderRecord(value)
		if err != nil {
			return true
		}
		hash := rec.Header.Hash()
		e.headers[hash] = rec
		if rec.Status == StatusValid && (e.tipHash.IsZero() || rec.CumWork.Cmp(e.tipRecordLocked().CumWork) > 0) {
			e.tipHash = hash
			e.tipHeight = rec.Height
		}
		return true
	})
}

func (e *Engine) tipRecordLocked() *HeaderRecord {
	if rec, ok := e.headers[e.tipHash]; ok {
		return rec
	}
	return &HeaderRecord{CumWork: big.NewInt(-1)}
}

func (e *Engine) initGenesis(genesisBlock *consensus.Block) error {
	if err := consensus.ValidateStateless(genesisBlock, genesisBlock.Header.Timestamp); err != nil {
		return err
	}
	target, err := consensus.BitsToTarget(genesisBlock.Header.Bits)
	if err != nil {
		return err
	}
	work := consensus.Work(target)
	hash := genesisBlock.Header.Hash()
	rec := &HeaderRecord{Header: genesisBlock.Header, Height: 0, CumWork: work, Status: StatusValid}
	e.headers[hash] = rec

	undo, err := e.utxos.ApplyBlock(genesisBlock, 0)
	if err != nil {
		return err
	}

	if err := e.engine.Put(store.BlockKey(hash[:]), genesisBlock.Encode()); err != nil {
		return err
	}
	if err := e.persistConnectedBlock(genesisBlock, rec, undo); err != nil {
		return err
	}
	e.tipHash = hash
	e.tipHeight = 0
	log.Chain.Info().Str("hash", hash.String()).Msg("chain engine: genesis initialized")
	return nil
}

// TipHash and TipHeight report the active tip.
func (e *Engine) TipHash() consensus.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tipHash
}

func (e *Engine) TipHeight() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tipHeight
}

// HeaderByHash returns the indexed record for hash, if known.
func (e *Engine) HeaderByHash(hash consensus.Hash) (*HeaderRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.headers[hash]
	return rec, ok
}

// HasBlock reports whether a block body for hash is already stored,
// regardless of whether it has been connected to the active chain.
func (e *Engine) HasBlock(hash consensus.Hash) bool {
	_, ok, err := e.engine.Get(store.BlockKey(hash[:]))
	return err == nil && ok
}

// Locator returns a block locator for the active tip: recent hashes
// densely, older ones with exponentially increasing gaps, terminating
// at genesis. Used to describe local chain state to a sync peer.
func (e *Engine) Locator() []consensus.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []consensus.Hash
	cur, ok := e.headers[e.tipHash]
	if !ok {
		return out
	}
	step := 1
	for {
		out = append(out, cur.Header.Hash())
		if cur.Height == 0 {
			return out
		}
		var next *HeaderRecord
		for i := 0; i < step; i++ {
			parent, ok := e.headers[cur.Header.PrevHash]
			if !ok {
				return out
			}
			next = parent
			cur = parent
			if cur.Height == 0 {
				break
			}
		}
		_ = next
		if len(out) >= 10 {
			step *= 2
		}
	}
}

// FindFirstKnown returns the first hash in locator (in order) that
// this engine already has a header for, or false if none match.
func (e *Engine) FindFirstKnown(locator []consensus.Hash) (consensus.Hash, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, h := range locator {
		if _, ok := e.headers[h]; ok {
			return h, true
		}
	}
	return consensus.Hash{}, false
}

// HeadersAfter returns up to limit headers descending from (but
// excluding) known, walking forward along the active chain only.
func (e *Engine) HeadersAfter(known consensus.Hash, limit int) []consensus.BlockHeader {
	e.mu.RLock()
	defer e.mu.RUnlock()

	knownRec, ok := e.headers[known]
	if !ok {
		return nil
	}
	var out []consensus.BlockHeader
	height := knownRec.Height + 1
	for len(out) < limit {
		hash, ok, err := e.engine.Get(store.HeightKey(height))
		if err != nil || !ok {
			break
		}
		var h consensus.Hash
		copy(h[:], hash)
		rec, ok := e.headers[h]
		if !ok {
			break
		}
		out = append(out, rec.Header)
		height++
	}
	return out
}

// SubmitHeader validates and records a single header against the
// index, without requiring its block body.
func (e *Engine) SubmitHeader(header consensus.BlockHeader) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	hash := header.Hash()
	if _, exists := e.headers[hash]; exists {
		return nil
	}
	parent, ok := e.headers[header.PrevHash]
	if !ok {
		return consensus.NewError(consensus.ValUnknownParent, "header: unknown parent")
	}
	height := parent.Height + 1

	expectedBits, err := e.expectedBitsLocked(parent)
	if err != nil {
		return err
	}
	if header.Bits != expectedBits {
		return consensus.NewError(consensus.ValBadDifficulty, "header: bits mismatch")
	}
	if err := consensus.CheckPoW(&header); err != nil {
		return err
	}

	target, err := consensus.BitsToTarget(header.Bits)
	if err != nil {
		return err
	}
	cumWork := new(big.Int).Add(parent.CumWork, consensus.Work(target))

	rec := &HeaderRecord{Header: header, Height: height, CumWork: cumWork, Status: StatusHeaderOnly}
	e.headers[hash] = rec
	return e.engine.Put(store.HeaderKey(hash[:]), rec.encode())
}

// expectedBitsLocked computes the bits the block at parent.Height+1
// must carry: unchanged within a retarget period, recomputed from the
// period's observed timespan otherwise.
func (e *Engine) expectedBitsLocked(parent *HeaderRecord) (uint32, error) {
	height := parent.Height + 1
	if height%consensus.DifficultyAdjustmentPeriod != 0 {
		return parent.Header.Bits, nil
	}
	first := e.ancestorAtLocked(parent, height-consensus.DifficultyAdjustmentPeriod)
	if first == nil {
		return parent.Header.Bits, nil
	}
	var actual uint64
	if parent.Header.Timestamp > first.Header.Timestamp {
		actual = parent.Header.Timestamp - first.Header.Timestamp
	} else {
		actual = 1
	}
	return consensus.Retarget(parent.Header.Bits, actual, e.minDifficulty)
}

func (e *Engine) ancestorAtLocked(from *HeaderRecord, height uint64) *HeaderRecord {
	cur := from
	for cur != nil && cur.Height > height {
		parent, ok := e.headers[cur.Header.PrevHash]
		if !ok {
			return nil
		}
		cur = parent
	}
	return cur
}

func (e *Engine) medianTimePastLocked(parent *HeaderRecord) uint64 {
	var times []uint64
	cur := parent
	for i := 0; i < consensus.MedianTimeSpan && cur != nil; i++ {
		times = append(times, cur.Header.Timestamp)
		next, ok := e.headers[cur.Header.PrevHash]
		if !ok {
			break
		}
		cur = next
	}
	// insertion sort; MedianTimeSpan is 11, not worth importing sort for
	for i := 1; i < len(times); i++ {
		for j := i; j > 0 && times[j-1] > times[j]; j-- {
			times[j-1], times[j] = times[j], times[j-1]
		}
	}
	return times[len(times)/2]
}

// SubmitBlock validates and, depending on its relationship to the
// current tip, extends the tip in place or triggers a reorg. Side
// branches with less work than the tip are persisted but not
// connected.
func (e *Engine) SubmitBlock(block *consensus.Block, now uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := consensus.ValidateStateless(block, now); err != nil {
		return err
	}
	hash := block.Header.Hash()
	rec, ok := e.headers[hash]
	if !ok {
		return consensus.NewError(consensus.ValUnknownParent, "block: header not indexed")
	}

	if err := e.engine.Put(store.BlockKey(hash[:]), block.Encode()); err != nil {
		return err
	}

	if block.Header.PrevHash == e.tipHash {
		return e.extendTipLocked(block, rec)
	}

	tip := e.headers[e.tipHash]
	if tip == nil || rec.CumWork.Cmp(tip.CumWork) > 0 {
		return e.reorgToLocked(hash)
	}
	// Side branch with no more work than the tip: stored, not connected.
	return nil
}

func (e *Engine) extendTipLocked(block *consensus.Block, rec *HeaderRecord) error {
	parent := e.headers[block.Header.PrevHash]
	cc := consensus.ChainContext{
		Height:         rec.Height,
		PrevHeader:     &parent.Header,
		MedianTimePast: e.medianTimePastLocked(parent),
		ExpectedBits:   rec.Header.Bits,
	}
	if err := consensus.ValidateContextAware(block, cc, e.utxos, e.provider); err != nil {
		return err
	}

	undo, err := e.utxos.ApplyBlock(block, rec.Height)
	if err != nil {
		return err
	}
	rec.Status = StatusValid
	if err := e.persistConnectedBlock(block, rec, undo); err != nil {
		return err
	}

	e.tipHash = block.Header.Hash()
	e.tipHeight = rec.Height
	e.purgeMempoolLocked(block)
	log.Chain.Info().Str("hash", e.tipHash.String()).Uint64("height", e.tipHeight).Msg("chain engine: extended tip")
	return nil
}

func (e *Engine) purgeMempoolLocked(block *consensus.Block) {
	if e.pool == nil {
		return
	}
	for i := range block.Transactions {
		e.pool.Remove(block.Transactions[i].TxID())
	}
	e.pool.RemoveConflicting()
}

func (e *Engine) persistConnectedBlock(block *consensus.Block, rec *HeaderRecord, undo *utxoset.Undo) error {
	hash := block.Header.Hash()
	var puts []store.KV
	puts = append(puts, store.KV{Key: store.HeaderKey(hash[:]), Value: rec.encode()})
	puts = append(puts, store.KV{Key: store.HeightKey(rec.Height), Value: hash[:]})
	if undo != nil {
		puts = append(puts, store.KV{Key: []byte("undo:" + hash.String()), Value: utxoset.EncodeUndo(undo)})
	}
	for i := range block.Transactions {
		txid := block.Transactions[i].TxID()
		puts = append(puts, store.KV{Key: store.TxKey(txid[:]), Value: hash[:]})
	}
	puts = append(puts, store.KV{Key: store.MetaChainTipKey, Value: hash[:]})

	var tipHeightBuf [4]byte
	putU32LE(tipHeightBuf[:], uint32(rec.Height))
	puts = append(puts, store.KV{Key: store.MetaTipHeightKey, Value: tipHeightBuf[:]})

	return e.engine.WriteBatch(nil, puts)
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// reorgToLocked performs a full disconnect/connect reorg to newTipHash,
// atomically: every UTXO mutation lands in a single overlay that is
// either committed in full or discarded in full.
func (e *Engine) reorgToLocked(newTipHash consensus.Hash) error {
	oldTip := e.headers[e.tipHash]
	newTip := e.headers[newTipHash]

	fork := e.findForkLocked(oldTip, newTip)

	disconnect := e.pathToAncestorLocked(oldTip, fork) // tip -> fork+1, in that order
	connect := reverseRecords(e.pathToAncestorLocked(newTip, fork)) // fork+1 -> newTip

	token, err := e.utxos.Checkpoint()
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			e.utxos.RollbackTo(token)
		}
	}()

	var disconnectedTxs []consensus.Transaction
	for _, rec := range disconnect {
		hash := rec.Header.Hash()
		raw, ok, err := e.engine.Get([]byte("undo:" + hash.String()))
		if err != nil || !ok {
			return chainErr(ReorgRollbackFailed, "reorg: missing undo record")
		}
		undo, err := utxoset.DecodeUndo(raw)
		if err != nil {
			return chainErr(ReorgRollbackFailed, "reorg: corrupt undo record")
		}
		if err := e.utxos.UndoBlock(undo); err != nil {
			return chainErr(ReorgRollbackFailed, "reorg: undo failed")
		}
		blockRaw, ok, err := e.engine.Get(store.BlockKey(hash[:]))
		if err == nil && ok {
			if block, err := consensus.DecodeBlock(blockRaw); err == nil {
				disconnectedTxs = append(disconnectedTxs, block.Transactions[1:]...)
			}
		}
	}

	var connectedBlocks []*consensus.Block
	var connectedUndos []*utxoset.Undo
	prevRec := fork
	for _, rec := range connect {
		hash := rec.Header.Hash()
		blockRaw, ok, err := e.engine.Get(store.BlockKey(hash[:]))
		if err != nil || !ok {
			return chainErr(ReorgRollbackFailed, "reorg: missing block body to connect")
		}
		block, err := consensus.DecodeBlock(blockRaw)
		if err != nil {
			return chainErr(ReorgRollbackFailed, "reorg: corrupt block body")
		}
		cc := consensus.ChainContext{
			Height:         rec.Height,
			PrevHeader:     &prevRec.Header,
			MedianTimePast: e.medianTimePastLocked(prevRec),
			ExpectedBits:   rec.Header.Bits,
		}
		if err := consensus.ValidateContextAware(block, cc, e.utxos, e.provider); err != nil {
			return err
		}
		undo, err := e.utxos.ApplyBlock(block, rec.Height)
		if err != nil {
			return err
		}
		rec.Status = StatusValid
		connectedBlocks = append(connectedBlocks, block)
		connectedUndos = append(connectedUndos, undo)
		prevRec = rec
	}

	if err := e.utxos.Commit(token); err != nil {
		return chainErr(ReorgRollbackFailed, "reorg: commit failed")
	}
	committed = true

	for i, block := range connectedBlocks {
		if err := e.persistConnectedBlock(block, connect[i], connectedUndos[i]); err != nil {
			log.Chain.Error().Err(err).Msg("chain engine: post-reorg persist failed")
		}
	}

	e.tipHash = newTipHash
	e.tipHeight = newTip.Height
	if e.pool != nil {
		for _, block := range connectedBlocks {
			e.purgeMempoolLocked(block)
		}
		for _, tx := range disconnectedTxs {
			_ = e.pool.AddTransaction(tx) // best effort; rejections dropped silently
		}
	}
	log.Chain.Warn().Str("new_tip", newTipHash.String()).Int("disconnected", len(disconnect)).Int("connected", len(connect)).Msg("chain engine: reorganized")
	return nil
}

func (e *Engine) findForkLocked(a, b *HeaderRecord) *HeaderRecord {
	for a.Height > b.Height {
		a = e.headers[a.Header.PrevHash]
	}
	for b.Height > a.Height {
		b = e.headers[b.Header.PrevHash]
	}
	for a.Header.Hash() != b.Header.Hash() {
		a = e.headers[a.Header.PrevHash]
		b = e.headers[b.Header.PrevHash]
	}
	return a
}

// pathToAncestorLocked walks from tip back to (but excluding) ancestor,
// returning records in tip-to-ancestor order.
func (e *Engine) pathToAncestorLocked(tip, ancestor *HeaderRecord) []*HeaderRecord {
	var path []*HeaderRecord
	cur := tip
	for cur.Header.Hash() != ancestor.Header.Hash() {
		path = append(path, cur)
		cur = e.headers[cur.Header.PrevHash]
	}
	return path
}

func reverseRecords(in []*HeaderRecord) []*HeaderRecord {
	out := make([]*HeaderRecord, len(in))
	for i, r := range in {
		out[len(in)-1-i] = r
	}
	return out
}
