package sync

import (
	"testing"

	"btpc.dev/node/chainindex"
	"btpc.dev/node/consensus"
	"btpc.dev/node/crypto"
	"btpc.dev/node/mempool"
	"btpc.dev/node/store"
	"btpc.dev/node/utxoset"
)

const easyBits = uint32(0x40ffffff)

func mineBlock(t *testing.T, txs []consensus.Transaction, prevHash consensus.Hash, timestamp uint64) *consensus.Block {
	t.Helper()
	root, err := consensus.MerkleRootOfTxs(txs)
	if err != nil {
		t.Fatalf("merkle root: %v", err)
	}
	header := consensus.BlockHeader{Version: 1, PrevHash: prevHash, MerkleRoot: root, Timestamp: timestamp, Bits: easyBits}
	target, _ := consensus.BitsToTarget(easyBits)
	for nonce := uint32(0); ; nonce++ {
		header.Nonce = nonce
		if consensus.HashMeetsTarget(header.Hash(), target) {
			break
		}
	}
	return &consensus.Block{Header: header, Transactions: txs}
}

func coinbaseAt(height uint64) consensus.Transaction {
	return consensus.Transaction{
		Version: 1,
		Inputs:  []consensus.TxInput{{PrevOut: consensus.OutPoint{TxID: consensus.ZeroHash, Vout: consensus.CoinbaseVout}, Unlock: []byte{byte(height)}}},
		Outputs: []consensus.TxOutput{{Value: consensus.BlockSubsidy(height), LockCommitment: []byte("miner")}},
	}
}

func newTestChain(t *testing.T) *chainindex.Engine {
	t.Helper()
	eng, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	utxos := utxoset.New(eng)
	pool := mempool.New(utxos, func() uint64 { return 1700000000 })
	genesis := mineBlock(t, []consensus.Transaction{coinbaseAt(0)}, consensus.ZeroHash, 1700000000)
	chain, err := chainindex.New(eng, utxos, pool, crypto.StdProvider{}, consensus.Regtest, genesis)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	return chain
}

func clockAt(t uint64) func() uint64 {
	return func() uint64 { return t }
}

func TestBuildLocatorDelegatesToChain(t *testing.T) {
	chain := newTestChain(t)
	mgr := NewManager(chain, clockAt(1700000100))
	locator := mgr.BuildLocator()
	if len(locator) == 0 {
		t.Fatalf("expected a non-empty locator")
	}
	if locator[0] != chain.TipHash() {
		t.Fatalf("expected locator to start at the current tip")
	}
}

func TestProcessHeadersReturnsMissingBodies(t *testing.T) {
	chain := newTestChain(t)
	mgr := NewManager(chain, clockAt(1700000100))

	genesisRec, _ := chain.HeaderByHash(chain.TipHash())
	block1 := mineBlock(t, []consensus.Transaction{coinbaseAt(1)}, genesisRec.Header.Hash(), 1700000100)

	missing := mgr.ProcessHeaders([]consensus.BlockHeader{block1.Header})
	if len(missing) != 1 || missing[0] != block1.Header.Hash() {
		t.Fatalf("expected the new header's block body to be reported missing, got %v", missing)
	}
	if mgr.Pending() != 1 {
		t.Fatalf("expected one queued hash, got %d", mgr.Pending())
	}
}

func TestProcessHeadersSkipsAlreadyStoredBlocks(t *testing.T) {
	chain := newTestChain(t)
	mgr := NewManager(chain, clockAt(1700000100))

	// Genesis's own header is already indexed and its body already
	// stored; re-processing it should surface no missing bodies.
	genesisRec, _ := chain.HeaderByHash(chain.TipHash())
	missing := mgr.ProcessHeaders([]consensus.BlockHeader{genesisRec.Header})
	if len(missing) != 0 {
		t.Fatalf("expected no missing bodies for an already-stored block, got %v", missing)
	}
}

func TestNextRequestsRespectsMaxInFlight(t *testing.T) {
	chain := newTestChain(t)
	mgr := NewManager(chain, clockAt(1000))
	for i := 0; i < MaxInFlight+5; i++ {
		mgr.queued = append(mgr.queued, consensus.HashBytes([]byte{byte(i), byte(i >> 8)}))
	}
	batch := mgr.NextRequests()
	if len(batch) != MaxInFlight {
		t.Fatalf("expected exactly MaxInFlight requests, got %d", len(batch))
	}
	if mgr.Pending() != MaxInFlight+5 {
		t.Fatalf("expected pending count to be unchanged (still queued+inflight), got %d", mgr.Pending())
	}
}

func TestNextRequestsRequeuesExpiredInFlight(t *testing.T) {
	chain := newTestChain(t)
	now := uint64(1000)
	mgr := NewManager(chain, func() uint64 { return now })

	h := consensus.HashBytes([]byte("stuck"))
	mgr.queued = append(mgr.queued, h)
	mgr.NextRequests() // moves h into in-flight

	if _, inFlight := mgr.inFlight[h]; !inFlight {
		t.Fatalf("expected hash to be tracked in flight")
	}

	now += RequestTimeoutSeconds + 1
	mgr.NextRequests() // should requeue the expired entry and hand it out again

	if _, stillInFlight := mgr.inFlight[h]; !stillInFlight {
		t.Fatalf("expected the requeued hash to be back in flight after a fresh request")
	}
}

func TestProcessBlockMarksCompletedOnSuccess(t *testing.T) {
	chain := newTestChain(t)
	mgr := NewManager(chain, clockAt(1700000100))

	genesisRec, _ := chain.HeaderByHash(chain.TipHash())
	block1 := mineBlock(t, []consensus.Transaction{coinbaseAt(1)}, genesisRec.Header.Hash(), 1700000100)

	mgr.ProcessHeaders([]consensus.BlockHeader{block1.Header})
	mgr.NextRequests()

	if err := mgr.ProcessBlock(block1, 1700000200); err != nil {
		t.Fatalf("process block: %v", err)
	}
	if _, done := mgr.completed[block1.Header.Hash()]; !done {
		t.Fatalf("expected block to be marked completed")
	}
	if mgr.Pending() != 0 {
		t.Fatalf("expected no pending work after successful processing, got %d", mgr.Pending())
	}
}

func TestProcessBlockRequeuesOnRejection(t *testing.T) {
	chain := newTestChain(t)
	mgr := NewManager(chain, clockAt(1700000100))

	// A block whose header was never submitted is rejected by the
	// chain engine ("header not indexed"), exercising the requeue path.
	orphanCoinbase := coinbaseAt(99)
	orphan := mineBlock(t, []consensus.Transaction{orphanCoinbase}, consensus.HashBytes([]byte("nowhere")), 1700000100)

	if err := mgr.ProcessBlock(orphan, 1700000200); err == nil {
		t.Fatalf("expected rejection for an unindexed orphan block")
	}
	if mgr.Pending() != 1 {
		t.Fatalf("expected the rejected block to be requeued, pending=%d", mgr.Pending())
	}
}
