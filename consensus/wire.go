package consensus

import "encoding/binary"

// cursor reads fixed-width little-endian fields out of a byte slice,
// the same linear-scan shape used across this codebase's decoders.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b, pos: 0}
}

func (c *cursor) remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, serializationErr(SerializationTruncated, "truncated read")
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *cursor) readU8() (byte, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readU32LE() (uint32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readU64LE() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) readHash() (Hash, error) {
	var h Hash
	b, err := c.readExact(HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

func (c *cursor) readCompactSize() (uint64, error) {
	n, used, err := DecodeCompactSize(c.b[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += used
	return n, nil
}

func (c *cursor) readBytesCompact() ([]byte, error) {
	n, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	return c.readExact(int(n))
}

// writer appends little-endian fields, the mirror of cursor, so a
// single file owns both directions of the wire format.
type writer struct {
	buf []byte
}

func newWriter() *writer {
	return &writer{}
}

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) writeU8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *writer) writeU32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) writeU64LE(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) writeHash(h Hash) {
	w.buf = append(w.buf, h[:]...)
}

func (w *writer) writeCompactSize(n uint64) {
	w.buf = append(w.buf, EncodeCompactSize(n)...)
}

func (w *writer) writeBytesCompact(b []byte) {
	w.writeCompactSize(uint64(len(b)))
	w.buf = append(w.buf, b...)
}
