package utxoset

import (
	"encoding/binary"

	"btpc.dev/node/consensus"
)

// EncodeOutPoint returns the 68-byte key body (64-byte txid + 4-byte
// little-endian vout) used under the utxo: prefix.
func EncodeOutPoint(op consensus.OutPoint) []byte {
	b := make([]byte, consensus.HashSize+4)
	copy(b, op.TxID[:])
	binary.LittleEndian.PutUint32(b[consensus.HashSize:], op.Vout)
	return b
}

// DecodeOutPoint reverses EncodeOutPoint.
func DecodeOutPoint(b []byte) (consensus.OutPoint, error) {
	var op consensus.OutPoint
	if len(b) != consensus.HashSize+4 {
		return op, utxoErr(BadCheckpoint, "outpoint: wrong length")
	}
	copy(op.TxID[:], b[:consensus.HashSize])
	op.Vout = binary.LittleEndian.Uint32(b[consensus.HashSize:])
	return op, nil
}

// encodeEntry serializes everything about a UTXO except its outpoint
// (which lives in the key): value | height_created | is_coinbase |
// lock_commitment (length-prefixed).
func encodeEntry(u consensus.UTXO) []byte {
	out := make([]byte, 0, 8+8+1+2+len(u.LockCommitment))
	var buf8 [8]byte

	binary.LittleEndian.PutUint64(buf8[:], u.Value)
	out = append(out, buf8[:]...)

	binary.LittleEndian.PutUint64(buf8[:], u.HeightCreated)
	out = append(out, buf8[:]...)

	if u.IsCoinbase {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}

	var buf2 [2]byte
	binary.LittleEndian.PutUint16(buf2[:], uint16(len(u.LockCommitment)))
	out = append(out, buf2[:]...)
	out = append(out, u.LockCommitment...)
	return out
}

func decodeEntry(op consensus.OutPoint, b []byte) (consensus.UTXO, error) {
	var u consensus.UTXO
	if len(b) < 8+8+1+2 {
		return u, utxoErr(BadCheckpoint, "utxo entry: truncated")
	}
	u.OutPoint = op
	u.Value = binary.LittleEndian.Uint64(b[0:8])
	u.HeightCreated = binary.LittleEndian.Uint64(b[8:16])
	u.IsCoinbase = b[16] != 0
	lcLen := binary.LittleEndian.Uint16(b[17:19])
	if len(b) < 19+int(lcLen) {
		return u, utxoErr(BadCheckpoint, "utxo entry: truncated lock commitment")
	}
	u.LockCommitment = append([]byte(nil), b[19:19+int(lcLen)]...)
	return u, nil
}
