// compression_adversarial_test.go exercises edge cases and malformed input
// for the deflate and LZ4 decompress paths.
package compression

import (
	"bytes"
	"compress/flate"
	"testing"
)

// TestAdversarial_DeflateRawVariousSizes tests raw deflate with various data sizes.
func TestAdversarial_DeflateRawVariousSizes(t *testing.T) {
	sizes := []int{0, 1, 10, 100, 1000, 10000, 100000}

	for _, size := range sizes {
		t.Run(sizeTestName(size), func(t *testing.T) {
			data := make([]byte, size)
			for i := range data {
				data[i] = byte(i % 256)
			}

			var buf bytes.Buffer
			w, err := flate.NewWriter(&buf, flate.DefaultCompression)
			if err != nil {
				t.Fatalf("NewWriter error: %v", err)
			}
			if _, err := w.Write(data); err != nil {
				t.Fatalf("Write error: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close error: %v", err)
			}

			result, err := Decompress(Deflate, buf.Bytes(), size)
			if err != nil {
				t.Fatalf("Decompress error: %v", err)
			}
			if !bytes.Equal(result, data) {
				t.Errorf("Decompressed data mismatch: got %d bytes, want %d", len(result), len(data))
			}
		})
	}
}

// TestAdversarial_DeflateTruncatedData tests behavior with truncated compressed data.
func TestAdversarial_DeflateTruncatedData(t *testing.T) {
	data := bytes.Repeat([]byte("test data for compression "), 100)

	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	_, _ = w.Write(data)
	_ = w.Close()

	compressed := buf.Bytes()
	truncPoints := []int{1, 5, 10, len(compressed) / 2, len(compressed) - 1}

	for _, truncAt := range truncPoints {
		if truncAt >= len(compressed) {
			continue
		}
		t.Run(sizeTestName(truncAt)+"_truncated", func(t *testing.T) {
			truncated := compressed[:truncAt]
			_, err := Decompress(Deflate, truncated, len(data))
			if err != nil {
				t.Logf("Truncation at %d bytes: error = %v (expected)", truncAt, err)
			}
		})
	}
}

// TestAdversarial_DeflateGarbageData tests behavior with random garbage.
func TestAdversarial_DeflateGarbageData(t *testing.T) {
	garbage := [][]byte{
		{0x00},
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0x78, 0x9C},
		bytes.Repeat([]byte{0xAB}, 100),
	}

	for i, data := range garbage {
		t.Run(sizeTestName(i), func(t *testing.T) {
			_, err := Decompress(Deflate, data, 1024)
			if err != nil {
				t.Logf("Garbage test %d: error = %v (expected)", i, err)
			}
		})
	}
}

// TestAdversarial_DeflateRoundTrip confirms our own Compress+Decompress round-trips.
func TestAdversarial_DeflateRoundTrip(t *testing.T) {
	data := []byte("test data that needs compression for proper testing")

	size, err := Compress(Deflate, data)
	if err != nil {
		t.Fatalf("Compress error: %v", err)
	}
	if int(size) == 0 {
		t.Fatal("Compress returned 0 for non-empty input")
	}

	compressed, err := compressDeflate(data)
	if err != nil {
		t.Fatalf("compressDeflate error: %v", err)
	}
	result, err := Decompress(Deflate, compressed, len(data))
	if err != nil {
		t.Fatalf("Decompress error: %v", err)
	}
	if !bytes.Equal(result, data) {
		t.Error("round trip failed")
	}
}

// TestAdversarial_LZ4WithCorruptedInput confirms LZ4 decompress fails
// gracefully (no panic) on garbage input.
func TestAdversarial_LZ4WithCorruptedInput(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 100)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("panic with corrupted LZ4 input: %v", r)
		}
	}()

	_, err := Decompress(LZ4, garbage, 4096)
	if err != nil {
		t.Logf("LZ4 with garbage: error = %v (expected)", err)
	}
}

func sizeTestName(size int) string {
	return "size_" + itoa(size)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	s := ""
	for n > 0 {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	return s
}
