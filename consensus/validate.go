package consensus

import "btpc.dev/node/crypto"

// UTXOSource is the minimal read surface the validator needs from a
// UTXO set. utxoset.Set satisfies this without either package
// importing the other's concrete types.
type UTXOSource interface {
	Get(OutPoint) (UTXO, bool)
}

// ValidateStateless runs the structural checks that require no
// database access: size, coinbase placement, per-tx structure, the
// merkle commitment, timestamp drift and PoW.
func ValidateStateless(block *Block, now uint64) error {
	if block.Size() > MaxBlockSize {
		return valErr(ValBlockTooLarge, "block exceeds max size")
	}
	if len(block.Transactions) == 0 {
		return valErr(ValBadBlock, "block has no transactions")
	}
	if !block.Transactions[0].IsCoinbase() {
		return valErr(ValBadStructure, "first transaction is not coinbase")
	}
	for i := 1; i < len(block.Transactions); i++ {
		if block.Transactions[i].IsCoinbase() {
			return valErr(ValBadStructure, "non-first transaction is coinbase")
		}
	}
	for i := range block.Transactions {
		if err := validateTxStructure(&block.Transactions[i]); err != nil {
			return err
		}
	}

	root, err := MerkleRootOfTxs(block.Transactions)
	if err != nil {
		return err
	}
	if root != block.Header.MerkleRoot {
		return valErr(ValBadMerkleRoot, "merkle root mismatch")
	}

	if block.Header.Timestamp > now+MaxFutureDrift {
		return valErr(ValTimestampTooNew, "header timestamp too far in the future")
	}

	if err := CheckPoW(&block.Header); err != nil {
		return err
	}
	return nil
}

func validateTxStructure(tx *Transaction) error {
	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return valErr(ValBadStructure, "transaction has empty input or output list")
	}
	if len(tx.Inputs) > MaxTxInputs || len(tx.Outputs) > MaxTxOutputs {
		return valErr(ValBadStructure, "transaction exceeds input/output caps")
	}
	if len(tx.Encode()) > MaxTxSize {
		return valErr(ValBadStructure, "transaction exceeds max size")
	}
	var total uint64
	for _, out := range tx.Outputs {
		if out.Value > MaxOutputValue {
			return valErr(ValOverSpend, "output exceeds max output value")
		}
		total += out.Value
	}
	if total > MaxOutputValue {
		return valErr(ValOverSpend, "transaction total output exceeds max money")
	}
	return nil
}

// ChainContext supplies the header-chain and height facts the
// context-aware validator needs, without binding it to a concrete
// chainindex implementation.
type ChainContext struct {
	Height         uint64
	PrevHeader     *BlockHeader
	MedianTimePast uint64
	ExpectedBits   uint32
}

// ValidateContextAware runs the checks that require the header chain
// and UTXO set: parent linkage, monotonic timestamp, retarget
// agreement, per-input maturity/ownership/signature, and the
// coinbase/fee balance.
func ValidateContextAware(block *Block, cc ChainContext, utxos UTXOSource, provider crypto.Provider) error {
	if cc.PrevHeader == nil {
		return valErr(ValUnknownParent, "parent header not found")
	}
	if block.Header.PrevHash != cc.PrevHeader.Hash() {
		return valErr(ValUnknownParent, "header does not chain to parent")
	}
	if block.Header.Timestamp <= cc.MedianTimePast {
		return valErr(ValTimestampNotMonotonic, "timestamp not greater than median-past-11")
	}
	if block.Header.Bits != cc.ExpectedBits {
		return valErr(ValBadDifficulty, "bits does not match expected retarget")
	}

	spentInBlock := make(map[OutPoint]struct{})
	var totalFees uint64

	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.IsCoinbase() {
			continue
		}
		var inputSum uint64
		sigHash := SigHash(tx)
		for _, in := range tx.Inputs {
			if _, dup := spentInBlock[in.PrevOut]; dup {
				return valErr(ValDoubleSpendInBlock, "outpoint spent twice within block")
			}
			spentInBlock[in.PrevOut] = struct{}{}

			utxo, ok := utxos.Get(in.PrevOut)
			if !ok {
				return valErr(ValBadStructure, "referenced utxo does not exist")
			}
			if !utxo.MatureAt(cc.Height) {
				return valErr(ValImmatureCoinbaseSpend, "coinbase utxo not yet mature")
			}
			if err := verifyOwnership(in.Unlock, utxo.LockCommitment, sigHash, provider); err != nil {
				return err
			}
			inputSum += utxo.Value
		}
		var outputSum uint64
		for _, out := range tx.Outputs {
			outputSum += out.Value
		}
		if inputSum < outputSum {
			return valErr(ValOverSpend, "transaction spends more than its inputs")
		}
		totalFees += inputSum - outputSum
	}

	var coinbaseOut uint64
	for _, out := range block.Transactions[0].Outputs {
		coinbaseOut += out.Value
	}
	if coinbaseOut > BlockSubsidy(cc.Height)+totalFees {
		return valErr(ValOverCoinbase, "coinbase pays out more than subsidy plus fees")
	}
	return nil
}

// verifyOwnership checks that Unlock decodes into a signature and
// public key whose hash160 matches lockCommitment, and that the
// signature verifies over sigHash.
func verifyOwnership(unlock, lockCommitment []byte, sigHash Hash, provider crypto.Provider) error {
	sig, pubkey, err := crypto.SplitUnlock(unlock)
	if err != nil {
		return valErr(ValBadSignature, "malformed unlock bytes")
	}
	if h160 := provider.Hash160(pubkey); string(h160[:]) != string(lockCommitment) {
		return valErr(ValBadSignature, "hash160(pubkey) does not match lock commitment")
	}
	if !provider.VerifyMLDSA(pubkey, sigHash[:], sig) {
		return valErr(ValBadSignature, "signature verification failed")
	}
	return nil
}
