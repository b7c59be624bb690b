package store

import "encoding/binary"

// Key builders for the engine's namespaced ASCII-prefix layout. Kept
// as free functions rather than methods so utxoset/chainindex can
// build keys without holding an *Engine.

func BlockKey(hash []byte) []byte  { return append([]byte("block:"), hash...) }
func HeaderKey(hash []byte) []byte { return append([]byte("header:"), hash...) }
func TxKey(txid []byte) []byte     { return append([]byte("tx:"), txid...) }
func UTXOKey(outpointKey []byte) []byte {
	return append([]byte("utxo:"), outpointKey...)
}

// HeightKey maps a height to its canonical block hash.
func HeightKey(height uint64) []byte {
	k := make([]byte, 0, 7+8)
	k = append(k, []byte("height:")...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height) // big-endian so IterPrefix walks in height order
	return append(k, b[:]...)
}

var (
	MetaChainTipKey  = []byte("meta:chain_tip")
	MetaTipHeightKey = []byte("meta:tip_height")
)

const (
	PrefixBlock  = "block:"
	PrefixHeader = "header:"
	PrefixTx     = "tx:"
	PrefixUTXO   = "utxo:"
	PrefixHeight = "height:"
)
