package main

import "encoding/binary"

// Internet checksum (RFC 1071) built on a 64-bit running sum so the
// end-around carry of one's-complement addition can be folded in a
// single register instead of growing past it on every add.

func addWord(sum uint64, value uint64) uint64 {
	newSum := sum + value
	if newSum < sum {
		newSum++
	}
	return newSum
}

func add8Bytes(sum uint64, b []byte) uint64 {
	return addWord(sum, uint64(binary.LittleEndian.Uint64(b)))
}

func add4Bytes(sum uint64, b []byte) uint64 {
	return addWord(sum, uint64(binary.LittleEndian.Uint32(b)))
}

func add2Bytes(sum uint64, b []byte) uint64 {
	return addWord(sum, uint64(binary.LittleEndian.Uint16(b)))
}

// addSlice folds an arbitrary byte slice into the running sum, 8 bytes
// at a stride, then 4, then 2, then a final byte padded with 0.
func addSlice(sum uint64, data []byte) uint64 {
	n := len(data)
	end8 := n - n%8
	for i := 0; i < end8; i += 8 {
		sum = add8Bytes(sum, data[i:i+8])
	}

	rest := data[end8:]
	end4 := 0
	if len(rest) >= 4 {
		sum = add4Bytes(sum, rest[0:4])
		end4 = 4
	}

	rest = rest[end4:]
	end2 := 0
	if len(rest) >= 2 {
		sum = add2Bytes(sum, rest[0:2])
		end2 = 2
	}

	rest = rest[end2:]
	if len(rest) == 1 {
		sum = add2Bytes(sum, []byte{rest[0], 0})
	}

	return sum
}

// onesComplement folds the 64-bit sum to 16 bits (three folds, the
// first of which may itself carry) and returns the bitwise complement.
func onesComplement(sum uint64) uint16 {
	first := (sum >> 48 & 0xffff) + (sum >> 32 & 0xffff) + (sum >> 16 & 0xffff) + (sum & 0xffff)
	second := (first >> 16 & 0xffff) + (first & 0xffff)
	folded := uint16((second >> 16 & 0xffff) + (second & 0xffff))
	return ^folded
}

// onesComplementNoZero is the UDP variant: a checksum of zero is
// reserved to mean "no checksum supplied", so it is remapped to
// 0xFFFF on the wire.
func onesComplementNoZero(sum uint64) uint16 {
	v := onesComplement(sum)
	if v == 0 {
		return 0xffff
	}
	return v
}

// checksumSlice is the common case: fold an internet checksum over a
// single contiguous byte slice with no pseudo-header.
func checksumSlice(data []byte) uint16 {
	return onesComplement(addSlice(0, data))
}
