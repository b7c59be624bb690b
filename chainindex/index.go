package chainindex

import (
	"encoding/binary"
	"math/big"

	"btpc.dev/node/consensus"
)

// BlockStatus tracks how much of a known header's block content has
// been validated.
type BlockStatus uint8

const (
	StatusHeaderOnly BlockStatus = iota
	StatusValid
	StatusInvalid
)

// HeaderRecord is the header index's value type: a header plus its
// height and accumulated work, keyed externally by header hash.
type HeaderRecord struct {
	Header   consensus.BlockHeader
	Height   uint64
	CumWork  *big.Int
	Status   BlockStatus
}

// encode serializes a HeaderRecord for the header: storage key.
func (r *HeaderRecord) encode() []byte {
	out := make([]byte, 0, 160)
	out = append(out, r.Header.Encode()...)

	var b8 [8]byte
	binary.LittleEndian.PutUint64(b8[:], r.Height)
	out = append(out, b8[:]...)

	work := r.CumWork.Bytes()
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(work)))
	out = append(out, lenBuf[:]...)
	out = append(out, work...)

	out = append(out, byte(r.Status))
	return out
}

func decodeHeaderRecord(b []byte) (*HeaderRecord, error) {
	const headerLen = 4 + consensus.HashSize + consensus.HashSize + 8 + 4 + 4
	if len(b) < headerLen+8+2 {
		return nil, chainErr(UnknownParent, "header record: truncated")
	}
	hdr, err := consensus.DecodeBlockHeader(b[:headerLen])
	if err != nil {
		return nil, err
	}
	pos := headerLen
	height := binary.LittleEndian.Uint64(b[pos : pos+8])
	pos += 8
	workLen := int(binary.LittleEndian.Uint16(b[pos : pos+2]))
	pos += 2
	if pos+workLen+1 > len(b) {
		return nil, chainErr(UnknownParent, "header record: truncated work")
	}
	work := new(big.Int).SetBytes(b[pos : pos+workLen])
	pos += workLen
	status := BlockStatus(b[pos])

	return &HeaderRecord{Header: *hdr, Height: height, CumWork: work, Status: status}, nil
}
