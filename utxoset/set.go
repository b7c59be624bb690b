// Package utxoset implements the UTXO set: a keyed map of
// outpoint->UTXO backed by the storage engine, with atomic batch
// apply/undo, coinbase maturity bookkeeping, and a checkpoint/rollback
// overlay used by the chain engine's reorg path, which must never touch
// durable storage until it decides to commit.
package utxoset

import (
	"sync"

	"btpc.dev/node/consensus"
	"btpc.dev/node/internal/log"
	"btpc.dev/node/store"
)

// Token identifies an open checkpoint. The zero Token is never valid.
type Token uint64

type overlayFrame struct {
	puts map[consensus.OutPoint]consensus.UTXO
	dels map[consensus.OutPoint]struct{}
}

func newOverlayFrame() *overlayFrame {
	return &overlayFrame{
		puts: make(map[consensus.OutPoint]consensus.UTXO),
		dels: make(map[consensus.OutPoint]struct{}),
	}
}

// Set is the UTXO set. It implements consensus.UTXOSource.
type Set struct {
	mu      sync.RWMutex
	engine  *store.Engine
	active  *overlayFrame
	tokenCt uint64
}

// New wraps engine as a UTXO set.
func New(engine *store.Engine) *Set {
	return &Set{engine: engine}
}

// Get implements consensus.UTXOSource, checking any open checkpoint
// overlay before falling back to durable storage.
func (s *Set) Get(op consensus.OutPoint) (consensus.UTXO, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(op)
}

func (s *Set) getLocked(op consensus.OutPoint) (consensus.UTXO, bool) {
	if s.active != nil {
		if _, deleted := s.active.dels[op]; deleted {
			return consensus.UTXO{}, false
		}
		if u, ok := s.active.puts[op]; ok {
			return u, true
		}
	}
	key := store.UTXOKey(EncodeOutPoint(op))
	raw, ok, err := s.engine.Get(key)
	if err != nil || !ok {
		return consensus.UTXO{}, false
	}
	u, err := decodeEntry(op, raw)
	if err != nil {
		return consensus.UTXO{}, false
	}
	return u, true
}

// Contains reports whether op is currently unspent.
func (s *Set) Contains(op consensus.OutPoint) bool {
	_, ok := s.Get(op)
	return ok
}

// UndoSpent restores a single destroyed output during undo_block.
type UndoSpent struct {
	OutPoint consensus.OutPoint
	Restored consensus.UTXO
}

// Undo captures everything apply_block needs reversed to return the
// set to its pre-block state.
type Undo struct {
	Spent   []UndoSpent
	Created []consensus.OutPoint
}

// ApplyBlock applies a block's UTXO delta: every non-coinbase input is
// deleted, every output of every transaction is inserted (annotated
// with height and whether it came from the coinbase). If a checkpoint
// is open, the delta lands only in the overlay; otherwise it commits
// to durable storage as one atomic write_batch.
func (s *Set) ApplyBlock(block *consensus.Block, height uint64) (*Undo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	undo := &Undo{}
	spentInBlock := make(map[consensus.OutPoint]struct{})

	var deletes []consensus.OutPoint
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.IsCoinbase() {
			continue
		}
		for _, in := range tx.Inputs {
			if _, dup := spentInBlock[in.PrevOut]; dup {
				return nil, utxoErr(DoubleSpendBlock, "outpoint spent twice within block")
			}
			spentInBlock[in.PrevOut] = struct{}{}

			prior, ok := s.getLocked(in.PrevOut)
			if !ok {
				return nil, utxoErr(NotFound, "referenced outpoint is not a utxo")
			}
			undo.Spent = append(undo.Spent, UndoSpent{OutPoint: in.PrevOut, Restored: prior})
			deletes = append(deletes, in.PrevOut)
		}
	}

	var inserts []consensus.UTXO
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		txid := tx.TxID()
		isCoinbase := i == 0
		for vout, out := range tx.Outputs {
			op := consensus.OutPoint{TxID: txid, Vout: uint32(vout)}
			u := consensus.UTXO{
				OutPoint:       op,
				Value:          out.Value,
				LockCommitment: out.LockCommitment,
				HeightCreated:  height,
				IsCoinbase:     isCoinbase,
			}
			inserts = append(inserts, u)
			undo.Created = append(undo.Created, op)
		}
	}

	if err := s.commitDelta(deletes, inserts); err != nil {
		return nil, err
	}
	log.Storage.Debug().Uint64("height", height).Int("deletes", len(deletes)).Int("inserts", len(inserts)).Msg("utxo set: applied block")
	return undo, nil
}

// UndoBlock reverses an Undo record: restores every spent outpoint to
// its prior value and removes every output the block created.
func (s *Set) UndoBlock(undo *Undo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var restores []consensus.UTXO
	for _, sp := range undo.Spent {
		restores = append(restores, sp.Restored)
	}
	return s.commitDelta(undo.Created, restores)
}

// commitDelta removes `deletes` and inserts `inserts`, either into the
// open overlay or directly into the storage engine as one atomic
// batch.
func (s *Set) commitDelta(deletes []consensus.OutPoint, inserts []consensus.UTXO) error {
	if s.active != nil {
		for _, op := range deletes {
			delete(s.active.puts, op)
			s.active.dels[op] = struct{}{}
		}
		for _, u := range inserts {
			delete(s.active.dels, u.OutPoint)
			s.active.puts[u.OutPoint] = u
		}
		return nil
	}

	deleteKeys := make([][]byte, len(deletes))
	for i, op := range deletes {
		deleteKeys[i] = store.UTXOKey(EncodeOutPoint(op))
	}
	puts := make([]store.KV, len(inserts))
	for i, u := range inserts {
		puts[i] = store.KV{Key: store.UTXOKey(EncodeOutPoint(u.OutPoint)), Value: encodeEntry(u)}
	}
	return s.engine.WriteBatch(deleteKeys, puts)
}

// Checkpoint opens a speculative overlay; subsequent ApplyBlock/
// UndoBlock calls land only in memory until Commit or RollbackTo.
// Only one checkpoint may be open at a time.
func (s *Set) Checkpoint() (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return 0, utxoErr(BadCheckpoint, "checkpoint already open")
	}
	s.active = newOverlayFrame()
	s.tokenCt++
	return Token(s.tokenCt), nil
}

// RollbackTo discards the open checkpoint's overlay without touching
// durable storage.
func (s *Set) RollbackTo(tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || Token(s.tokenCt) != tok {
		return utxoErr(BadCheckpoint, "no matching open checkpoint")
	}
	s.active = nil
	return nil
}

// Commit flattens the open checkpoint's overlay into durable storage
// as one atomic write_batch.
func (s *Set) Commit(tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || Token(s.tokenCt) != tok {
		return utxoErr(BadCheckpoint, "no matching open checkpoint")
	}
	frame := s.active
	s.active = nil

	var deleteKeys [][]byte
	for op := range frame.dels {
		deleteKeys = append(deleteKeys, store.UTXOKey(EncodeOutPoint(op)))
	}
	var puts []store.KV
	for op, u := range frame.puts {
		puts = append(puts, store.KV{Key: store.UTXOKey(EncodeOutPoint(op)), Value: encodeEntry(u)})
	}
	return s.engine.WriteBatch(deleteKeys, puts)
}

// Stats summarizes the durable UTXO set (the open overlay, if any, is
// not reflected — callers needing overlay-aware stats should Commit
// first).
type Stats struct {
	Count         uint64
	TotalValue    uint64
	CoinbaseCount uint64
}

func (s *Set) Stats() (Stats, error) {
	var st Stats
	err := s.engine.IterPrefix([]byte(store.PrefixUTXO), func(key, value []byte) bool {
		op, err := DecodeOutPoint(key[len(store.PrefixUTXO):])
		if err != nil {
			return true
		}
		u, err := decodeEntry(op, value)
		if err != nil {
			return true
		}
		st.Count++
		st.TotalValue += u.Value
		if u.IsCoinbase {
			st.CoinbaseCount++
		}
		return true
	})
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// IteratePrefix exposes a raw prefix scan over the utxo: namespace,
// for wallet/explorer-style external callers.
func (s *Set) IteratePrefix(fn func(consensus.UTXO) bool) error {
	return s.engine.IterPrefix([]byte(store.PrefixUTXO), func(key, value []byte) bool {
		op, err := DecodeOutPoint(key[len(store.PrefixUTXO):])
		if err != nil {
			return true
		}
		u, err := decodeEntry(op, value)
		if err != nil {
			return true
		}
		return fn(u)
	})
}
