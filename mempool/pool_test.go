package mempool

import (
	"testing"

	"btpc.dev/node/consensus"
)

type fakeUTXOSource map[consensus.OutPoint]consensus.UTXO

func (f fakeUTXOSource) Get(op consensus.OutPoint) (consensus.UTXO, bool) {
	u, ok := f[op]
	return u, ok
}

func clockAt(t uint64) func() uint64 {
	return func() uint64 { return t }
}

func spendTx(prevout consensus.OutPoint, outValue uint64) consensus.Transaction {
	return consensus.Transaction{
		Version: 1,
		Inputs:  []consensus.TxInput{{PrevOut: prevout, Unlock: []byte("sig|pub")}},
		Outputs: []consensus.TxOutput{{Value: outValue, LockCommitment: []byte("dest")}},
	}
}

func TestAddTransactionAdmitsFundedSpend(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("funding")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 10000}}
	pool := New(utxos, clockAt(1000))

	tx := spendTx(prevout, 5000)
	if err := pool.AddTransaction(tx); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	if pool.Stats().Count != 1 {
		t.Fatalf("expected one entry in pool")
	}
}

func TestAddTransactionRejectsDuplicateTxid(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("f")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 10000}}
	pool := New(utxos, clockAt(1))
	tx := spendTx(prevout, 5000)
	pool.AddTransaction(tx)
	if err := pool.AddTransaction(tx); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
}

func TestAddTransactionRejectsUnknownInput(t *testing.T) {
	pool := New(fakeUTXOSource{}, clockAt(1))
	tx := spendTx(consensus.OutPoint{TxID: consensus.HashBytes([]byte("ghost")), Vout: 0}, 1)
	if err := pool.AddTransaction(tx); err == nil {
		t.Fatalf("expected error for a transaction spending an unknown utxo")
	}
}

func TestAddTransactionRejectsOverspend(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("f")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 100}}
	pool := New(utxos, clockAt(1))
	tx := spendTx(prevout, 1000)
	if err := pool.AddTransaction(tx); err == nil {
		t.Fatalf("expected error spending more than the input value")
	}
}

func TestAddTransactionRejectsFeeBelowMinimum(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("f")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 1000}}
	pool := New(utxos, clockAt(1))
	// Output value equals input value exactly: zero fee.
	tx := spendTx(prevout, 1000)
	if err := pool.AddTransaction(tx); err == nil {
		t.Fatalf("expected fee-too-low rejection for a zero-fee transaction")
	}
}

func TestAddTransactionRejectsConflictingInput(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("f")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 10000}}
	pool := New(utxos, clockAt(1))

	first := spendTx(prevout, 5000)
	if err := pool.AddTransaction(first); err != nil {
		t.Fatalf("first admission: %v", err)
	}
	second := spendTx(prevout, 4000)
	if err := pool.AddTransaction(second); err == nil {
		t.Fatalf("expected double-spend rejection for a conflicting input")
	}
}

func TestAddTransactionRejectsOverCapacity(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("f")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 10000}}
	pool := New(utxos, clockAt(1))
	pool.maxTx = 1

	first := spendTx(prevout, 5000)
	if err := pool.AddTransaction(first); err != nil {
		t.Fatalf("first admission: %v", err)
	}
	other := consensus.OutPoint{TxID: consensus.HashBytes([]byte("g")), Vout: 0}
	utxos[other] = consensus.UTXO{Value: 10000}
	second := spendTx(other, 5000)
	if err := pool.AddTransaction(second); err == nil {
		t.Fatalf("expected mempool-full rejection once maxTx is reached")
	}
}

func TestRemoveDropsEntryAndFreesSpentTracking(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("f")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 10000}}
	pool := New(utxos, clockAt(1))
	tx := spendTx(prevout, 5000)
	pool.AddTransaction(tx)
	pool.Remove(tx.TxID())
	if pool.Stats().Count != 0 {
		t.Fatalf("expected pool to be empty after remove")
	}
	// Same outpoint should now be spendable again by a new transaction.
	if err := pool.AddTransaction(spendTx(prevout, 4000)); err != nil {
		t.Fatalf("expected re-admission after remove, got %v", err)
	}
}

func TestRemoveConflictingEvictsEntriesWithVanishedInputs(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("f")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 10000}}
	pool := New(utxos, clockAt(1))
	tx := spendTx(prevout, 5000)
	pool.AddTransaction(tx)

	delete(utxos, prevout)
	pool.RemoveConflicting()
	if pool.Stats().Count != 0 {
		t.Fatalf("expected conflicting entry to be evicted")
	}
}

func TestGetByFeeOrdersDescendingWithTxidTieBreak(t *testing.T) {
	utxos := fakeUTXOSource{}
	pool := New(utxos, clockAt(1))

	// Low fee-rate transaction: big output relative to input.
	lowOp := consensus.OutPoint{TxID: consensus.HashBytes([]byte("low")), Vout: 0}
	utxos[lowOp] = consensus.UTXO{Value: 10100}
	low := spendTx(lowOp, 10000)

	// High fee-rate transaction: small output relative to input.
	highOp := consensus.OutPoint{TxID: consensus.HashBytes([]byte("high")), Vout: 0}
	utxos[highOp] = consensus.UTXO{Value: 20000}
	high := spendTx(highOp, 1000)

	pool.AddTransaction(low)
	pool.AddTransaction(high)

	ordered := pool.GetByFee(-1)
	if len(ordered) != 2 {
		t.Fatalf("expected two entries, got %d", len(ordered))
	}
	if ordered[0].TxID != high.TxID() {
		t.Fatalf("expected the higher fee-rate transaction first")
	}
}

func TestGetByFeeRespectsLimit(t *testing.T) {
	utxos := fakeUTXOSource{}
	pool := New(utxos, clockAt(1))
	for i := 0; i < 3; i++ {
		op := consensus.OutPoint{TxID: consensus.HashBytes([]byte{byte(i)}), Vout: 0}
		utxos[op] = consensus.UTXO{Value: 10000}
		pool.AddTransaction(spendTx(op, 5000))
	}
	if got := pool.GetByFee(2); len(got) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(got))
	}
}

func TestExpireRemovesOldEntries(t *testing.T) {
	prevout := consensus.OutPoint{TxID: consensus.HashBytes([]byte("f")), Vout: 0}
	utxos := fakeUTXOSource{prevout: {Value: 10000}}
	now := uint64(1000)
	pool := New(utxos, func() uint64 { return now })
	tx := spendTx(prevout, 5000)
	pool.AddTransaction(tx)

	now = 1000 + 7200
	pool.Expire(3600)
	if pool.Stats().Count != 0 {
		t.Fatalf("expected entry older than maxAge to be expired")
	}
}
