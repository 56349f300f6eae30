package compression

import (
	"testing"
)

// TestMethodStringAllValues tests String() for every method value.
func TestMethodStringAllValues(t *testing.T) {
	testCases := []struct {
		m    Method
		want string
	}{
		{None, "none"},
		{LZ4, "lz4"},
		{Deflate, "deflate"},
		{Method(255), "unknown(255)"},
	}

	for _, tc := range testCases {
		got := tc.m.String()
		if got != tc.want {
			t.Errorf("Method(%d).String() = %q, want %q", tc.m, got, tc.want)
		}
	}
}

// TestCompressUnsupportedMethods tests Compress with an out-of-range method.
func TestCompressUnsupportedMethods(t *testing.T) {
	data := []byte("test data to compress")

	if _, err := Compress(Method(200), data); err == nil {
		t.Error("Compress with unsupported method should return error")
	}
}

// TestDecompressUnsupportedMethods tests Decompress with an out-of-range method.
func TestDecompressUnsupportedMethods(t *testing.T) {
	data := []byte("some compressed data placeholder")

	if _, err := Decompress(Method(200), data, len(data)); err == nil {
		t.Error("Decompress with unsupported method should return error")
	}
}

// TestCompressNonZeroSizeEveryMethod tests that every method reports a
// non-zero compressed size for non-empty input.
func TestCompressNonZeroSizeEveryMethod(t *testing.T) {
	data := []byte("The quick brown fox jumps over the lazy dog. " +
		"This sentence is repeated to increase compressibility. " +
		"The quick brown fox jumps over the lazy dog.")

	for _, m := range []Method{None, LZ4, Deflate} {
		size, err := Compress(m, data)
		if err != nil {
			t.Errorf("Compress(%v) failed: %v", m, err)
			continue
		}
		if size == 0 {
			t.Errorf("Compress(%v) returned 0 for non-empty input", m)
		}
	}
}

// TestDecompressInvalidData tests decompression with corrupted data.
func TestDecompressInvalidData(t *testing.T) {
	invalidData := []byte{0xFF, 0xFE, 0xFD, 0xFC, 0xFB}

	if _, err := Decompress(Deflate, invalidData, 1024); err == nil {
		t.Error("Decompress(Deflate) with invalid data should fail")
	}
}

func TestZeroLengthMethodValue(t *testing.T) {
	if None != 0 {
		t.Error("None must be the zero value so an unset Method defaults to no compression")
	}
}
