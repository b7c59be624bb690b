package consensus

// SigHash returns the digest an ML-DSA signature over a transaction
// commits to: the double-SHA-512 of the transaction's deterministic
// encoding with every input's Unlock blob cleared, since the
// signature itself lives inside Unlock and cannot sign over its own
// bytes. There is no SegWit-style discount or per-input sighash
// flag — one whole-transaction commitment, matching the P2PKH-only
// scope of this system.
func SigHash(tx *Transaction) Hash {
	clone := &Transaction{
		Version:  tx.Version,
		Inputs:   make([]TxInput, len(tx.Inputs)),
		Outputs:  tx.Outputs,
		LockTime: tx.LockTime,
		ForkID:   tx.ForkID,
	}
	for i, in := range tx.Inputs {
		clone.Inputs[i] = TxInput{PrevOut: in.PrevOut, Unlock: nil, Sequence: in.Sequence}
	}
	return DoubleHashBytes(clone.Encode())
}
