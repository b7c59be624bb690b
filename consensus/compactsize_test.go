package consensus

import "testing"

func TestCompactSizeRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xfc, 0xfd, 0xfe, 0xffff, 0x10000, 0xffffffff, 0x100000000, ^uint64(0)}
	for _, n := range cases {
		encoded := EncodeCompactSize(n)
		got, consumed, err := DecodeCompactSize(encoded)
		if err != nil {
			t.Fatalf("decode(%d): %v", n, err)
		}
		if got != n {
			t.Fatalf("round trip mismatch: encoded %d, decoded %d", n, got)
		}
		if consumed != len(encoded) {
			t.Fatalf("consumed %d bytes, expected %d", consumed, len(encoded))
		}
	}
}

func TestCompactSizeMarkerWidths(t *testing.T) {
	if len(EncodeCompactSize(0xfc)) != 1 {
		t.Fatalf("0xfc should encode as a single byte")
	}
	if len(EncodeCompactSize(0xfd)) != 3 {
		t.Fatalf("0xfd should encode with the 3-byte marker form")
	}
	if len(EncodeCompactSize(0x10000)) != 5 {
		t.Fatalf("values above 0xffff should encode with the 5-byte marker form")
	}
	if len(EncodeCompactSize(0x100000000)) != 9 {
		t.Fatalf("values above 0xffffffff should encode with the 9-byte marker form")
	}
}

func TestDecodeCompactSizeTruncated(t *testing.T) {
	if _, _, err := DecodeCompactSize(nil); err == nil {
		t.Fatalf("expected error decoding an empty buffer")
	}
	if _, _, err := DecodeCompactSize([]byte{0xfd, 0x01}); err == nil {
		t.Fatalf("expected error decoding a truncated u16 marker")
	}
}
