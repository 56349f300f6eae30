// Package block implements the two pure block primitives the scan pipeline
// calls once per block: a zero-aware hash and a clamped compressed-size
// estimate.
package block

import (
	"github.com/zeebo/xxh3"
)

// Hash returns the 60-bit reduced hash of buf, packed into the low 60 bits
// of a uint64. It returns 0 if and only if buf is entirely zero bytes —
// this is the sentinel the store schema uses to identify free blocks, so
// the zero test runs first and short-circuits the hash computation.
//
// The digest itself (xxh3's 64-bit output) is folded down to 60 bits: the
// store's key column is a signed 64-bit integer, and reserving 4 bits keeps
// every stored hash representable while keeping collision probability low
// well past any realistic scan size.
func Hash(buf []byte) uint64 {
	if isZero(buf) {
		return 0
	}
	return fold60(xxh3.Hash(buf))
}

func isZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// fold60 reduces a 64-bit digest to 60 bits: the digest's low nibble
// becomes the top 4 bits of the result, and the remaining 7 bytes become
// the low 56 bits. This mirrors the byte-level fold used by the reference
// implementation's MD5-based hash (low nibble of one byte promoted to the
// top nibble, the following 7 bytes kept verbatim) reapplied to a single
// 8-byte digest rather than a 16-byte one.
func fold60(digest uint64) uint64 {
	lowNibble := digest & 0x0F
	rest := digest >> 4
	return (lowNibble << 56) | (rest & 0x00FFFFFFFFFFFFFF)
}
