package consensus

// MerkleRoot computes the pairwise double-SHA-512 root over a list of
// transaction ids. If an interior level has an odd count, the last
// element is duplicated before pairing (unlike tagged-hash schemes
// that carry an unpaired node forward unchanged). A single-element
// input's root is simply DoubleHashBytes of that element.
func MerkleRoot(txids []Hash) (Hash, error) {
	if len(txids) == 0 {
		return Hash{}, merkleErr(MerkleEmptyTree, "merkle: empty transaction list")
	}
	if len(txids) == 1 {
		return DoubleHashBytes(txids[0][:]), nil
	}

	level := make([]Hash, len(txids))
	copy(level, txids)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			pair := make([]byte, 0, 2*HashSize)
			pair = append(pair, level[2*i][:]...)
			pair = append(pair, level[2*i+1][:]...)
			next[i] = DoubleHashBytes(pair)
		}
		level = next
	}
	return level[0], nil
}

// MerkleRootOfTxs is a convenience wrapper computing txids from full
// transactions before delegating to MerkleRoot.
func MerkleRootOfTxs(txs []Transaction) (Hash, error) {
	ids := make([]Hash, len(txs))
	for i := range txs {
		ids[i] = txs[i].TxID()
	}
	return MerkleRoot(ids)
}
