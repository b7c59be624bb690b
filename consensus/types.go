package consensus

// OutPoint identifies a transaction output by the id of the
// transaction that created it and its index within that transaction's
// output list. The coinbase marker is (ZeroHash, CoinbaseVout).
type OutPoint struct {
	TxID Hash
	Vout uint32
}

// IsCoinbaseMarker reports whether this outpoint is the synthetic
// "no prior output" marker carried by a coinbase transaction's sole
// input.
func (o OutPoint) IsCoinbaseMarker() bool {
	return o.TxID.IsZero() && o.Vout == CoinbaseVout
}

func (o OutPoint) encode(w *writer) {
	w.writeHash(o.TxID)
	w.writeU32LE(o.Vout)
}

func decodeOutPoint(c *cursor) (OutPoint, error) {
	var o OutPoint
	txid, err := c.readHash()
	if err != nil {
		return o, err
	}
	vout, err := c.readU32LE()
	if err != nil {
		return o, err
	}
	o.TxID, o.Vout = txid, vout
	return o, nil
}

// TxInput spends a prior output. Unlock carries an opaque blob that,
// for P2PKH, is an ML-DSA signature followed by the spender's public
// key.
type TxInput struct {
	PrevOut  OutPoint
	Unlock   []byte
	Sequence uint32
}

func (in TxInput) encode(w *writer) {
	in.PrevOut.encode(w)
	w.writeBytesCompact(in.Unlock)
	w.writeU32LE(in.Sequence)
}

func decodeTxInput(c *cursor) (TxInput, error) {
	var in TxInput
	prev, err := decodeOutPoint(c)
	if err != nil {
		return in, err
	}
	unlock, err := c.readBytesCompact()
	if err != nil {
		return in, err
	}
	seq, err := c.readU32LE()
	if err != nil {
		return in, err
	}
	in.PrevOut, in.Unlock, in.Sequence = prev, unlock, seq
	return in, nil
}

// TxOutput pays Value credits to an opaque locking commitment (for
// P2PKH, the bare 20-byte hash160 of the owner's public key, which the
// validator compares byte-for-byte).
type TxOutput struct {
	Value          uint64
	LockCommitment []byte
}

func (out TxOutput) encode(w *writer) {
	w.writeU64LE(out.Value)
	w.writeBytesCompact(out.LockCommitment)
}

func decodeTxOutput(c *cursor) (TxOutput, error) {
	var out TxOutput
	v, err := c.readU64LE()
	if err != nil {
		return out, err
	}
	lc, err := c.readBytesCompact()
	if err != nil {
		return out, err
	}
	out.Value, out.LockCommitment = v, lc
	return out, nil
}

// Transaction is version, inputs, outputs, lock_time and an optional
// replay-protection fork tag. Identity is the SHA-512 of the
// deterministic encoding.
type Transaction struct {
	Version  uint32
	Inputs   []TxInput
	Outputs  []TxOutput
	LockTime uint32
	ForkID   uint32
}

// IsCoinbase reports whether tx has exactly one input whose outpoint
// is the coinbase marker.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.IsCoinbaseMarker()
}

// Encode returns the deterministic binary encoding of tx.
func (tx *Transaction) Encode() []byte {
	w := newWriter()
	w.writeU32LE(tx.Version)
	w.writeCompactSize(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		in.encode(w)
	}
	w.writeCompactSize(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		out.encode(w)
	}
	w.writeU32LE(tx.LockTime)
	w.writeU32LE(tx.ForkID)
	return w.bytes()
}

// TxID returns the transaction's identity hash: SHA-512 of its
// deterministic encoding.
func (tx *Transaction) TxID() Hash {
	return HashBytes(tx.Encode())
}

// DecodeTransaction parses a transaction from its deterministic
// encoding, enforcing the input/output count caps as it goes.
func DecodeTransaction(b []byte) (*Transaction, error) {
	c := newCursor(b)
	tx := &Transaction{}

	v, err := c.readU32LE()
	if err != nil {
		return nil, err
	}
	tx.Version = v

	nIn, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	if nIn > MaxTxInputs {
		return nil, serializationErr(SerializationOverflow, "tx: too many inputs")
	}
	tx.Inputs = make([]TxInput, nIn)
	for i := range tx.Inputs {
		in, err := decodeTxInput(c)
		if err != nil {
			return nil, err
		}
		tx.Inputs[i] = in
	}

	nOut, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	if nOut > MaxTxOutputs {
		return nil, serializationErr(SerializationOverflow, "tx: too many outputs")
	}
	tx.Outputs = make([]TxOutput, nOut)
	for i := range tx.Outputs {
		out, err := decodeTxOutput(c)
		if err != nil {
			return nil, err
		}
		tx.Outputs[i] = out
	}

	lt, err := c.readU32LE()
	if err != nil {
		return nil, err
	}
	tx.LockTime = lt

	forkID, err := c.readU32LE()
	if err != nil {
		return nil, err
	}
	tx.ForkID = forkID

	return tx, nil
}

// BlockHeader is the fixed-width commitment mined over: version,
// prev_hash, merkle_root, timestamp, bits, nonce.
type BlockHeader struct {
	Version    uint32
	PrevHash   Hash
	MerkleRoot Hash
	Timestamp  uint64
	Bits       uint32
	Nonce      uint32
}

// Encode returns the exact byte layout that is hashed to produce the
// block hash: version || prev_hash || merkle_root || timestamp ||
// bits || nonce, all little-endian multi-byte fields.
func (h *BlockHeader) Encode() []byte {
	w := newWriter()
	w.writeU32LE(h.Version)
	w.writeHash(h.PrevHash)
	w.writeHash(h.MerkleRoot)
	w.writeU64LE(h.Timestamp)
	w.writeU32LE(h.Bits)
	w.writeU32LE(h.Nonce)
	return w.bytes()
}

// Hash returns the header's identity: SHA-512 of its encoding.
func (h *BlockHeader) Hash() Hash {
	return HashBytes(h.Encode())
}

const headerEncodedSize = 4 + HashSize + HashSize + 8 + 4 + 4

// DecodeBlockHeader parses a fixed-width header encoding.
func DecodeBlockHeader(b []byte) (*BlockHeader, error) {
	if len(b) != headerEncodedSize {
		return nil, serializationErr(SerializationMalformed, "header: wrong length")
	}
	c := newCursor(b)
	h := &BlockHeader{}
	var err error
	if h.Version, err = c.readU32LE(); err != nil {
		return nil, err
	}
	if h.PrevHash, err = c.readHash(); err != nil {
		return nil, err
	}
	if h.MerkleRoot, err = c.readHash(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = c.readU64LE(); err != nil {
		return nil, err
	}
	if h.Bits, err = c.readU32LE(); err != nil {
		return nil, err
	}
	if h.Nonce, err = c.readU32LE(); err != nil {
		return nil, err
	}
	return h, nil
}

// Block is a header plus its ordered transaction list. The first
// transaction must be the coinbase.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}

// Encode returns the deterministic binary encoding of the whole block.
func (b *Block) Encode() []byte {
	w := newWriter()
	w.buf = append(w.buf, b.Header.Encode()...)
	w.writeCompactSize(uint64(len(b.Transactions)))
	for i := range b.Transactions {
		w.writeBytesCompact(b.Transactions[i].Encode())
	}
	return w.bytes()
}

// DecodeBlock parses a block from its deterministic encoding.
func DecodeBlock(b []byte) (*Block, error) {
	if len(b) < headerEncodedSize {
		return nil, serializationErr(SerializationTruncated, "block: truncated header")
	}
	hdr, err := DecodeBlockHeader(b[:headerEncodedSize])
	if err != nil {
		return nil, err
	}
	c := newCursor(b[headerEncodedSize:])
	nTx, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	txs := make([]Transaction, nTx)
	for i := range txs {
		raw, err := c.readBytesCompact()
		if err != nil {
			return nil, err
		}
		tx, err := DecodeTransaction(raw)
		if err != nil {
			return nil, err
		}
		txs[i] = *tx
	}
	return &Block{Header: *hdr, Transactions: txs}, nil
}

// Size returns the block's deterministic encoded size in bytes, the
// quantity checked against MaxBlockSize.
func (b *Block) Size() int {
	return len(b.Encode())
}

// UTXO is a single unspent output as tracked by the UTXO set.
type UTXO struct {
	OutPoint      OutPoint
	Value         uint64
	LockCommitment []byte
	HeightCreated  uint64
	IsCoinbase     bool
}

// MatureAt reports whether a coinbase UTXO created at HeightCreated is
// spendable at spendHeight, i.e. HeightCreated+100 <= spendHeight.
// Non-coinbase UTXOs are always mature.
func (u UTXO) MatureAt(spendHeight uint64) bool {
	if !u.IsCoinbase {
		return true
	}
	return u.HeightCreated+CoinbaseMaturity <= spendHeight
}
