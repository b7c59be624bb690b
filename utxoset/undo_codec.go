package utxoset

import "encoding/binary"

// EncodeUndo serializes an Undo record for durable storage under the
// reorg disconnect path's undo: key.
func EncodeUndo(u *Undo) []byte {
	out := make([]byte, 0, 64)
	var b4 [4]byte

	binary.LittleEndian.PutUint32(b4[:], uint32(len(u.Spent)))
	out = append(out, b4[:]...)
	for _, sp := range u.Spent {
		out = append(out, EncodeOutPoint(sp.OutPoint)...)
		entry := encodeEntry(sp.Restored)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(entry)))
		out = append(out, lenBuf[:]...)
		out = append(out, entry...)
	}

	binary.LittleEndian.PutUint32(b4[:], uint32(len(u.Created)))
	out = append(out, b4[:]...)
	for _, op := range u.Created {
		out = append(out, EncodeOutPoint(op)...)
	}
	return out
}

// DecodeUndo reverses EncodeUndo.
func DecodeUndo(b []byte) (*Undo, error) {
	u := &Undo{}
	pos := 0
	readU32 := func() (uint32, error) {
		if pos+4 > len(b) {
			return 0, utxoErr(BadCheckpoint, "undo: truncated")
		}
		v := binary.LittleEndian.Uint32(b[pos : pos+4])
		pos += 4
		return v, nil
	}

	nSpent, err := readU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nSpent; i++ {
		if pos+68 > len(b) {
			return nil, utxoErr(BadCheckpoint, "undo: truncated outpoint")
		}
		op, err := DecodeOutPoint(b[pos : pos+68])
		if err != nil {
			return nil, err
		}
		pos += 68
		entryLen, err := readU32()
		if err != nil {
			return nil, err
		}
		if pos+int(entryLen) > len(b) {
			return nil, utxoErr(BadCheckpoint, "undo: truncated entry")
		}
		restored, err := decodeEntry(op, b[pos:pos+int(entryLen)])
		if err != nil {
			return nil, err
		}
		pos += int(entryLen)
		u.Spent = append(u.Spent, UndoSpent{OutPoint: op, Restored: restored})
	}

	nCreated, err := readU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nCreated; i++ {
		if pos+68 > len(b) {
			return nil, utxoErr(BadCheckpoint, "undo: truncated created outpoint")
		}
		op, err := DecodeOutPoint(b[pos : pos+68])
		if err != nil {
			return nil, err
		}
		pos += 68
		u.Created = append(u.Created, op)
	}
	return u, nil
}
