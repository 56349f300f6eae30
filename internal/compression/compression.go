// Package compression implements the block compressor: a pure function
// compress(buf) -> compressed size, dispatched through a small selectable
// method enum instead of a function pointer.
//
// Only three methods are supported, matching the method column's allowed
// values in the store schema: none, lz4 and deflate.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"

	"github.com/bsjerps/qdda-go/internal/mempool"
)

// Method selects the block compressor.
type Method uint8

const (
	// None disables compression; Compress reports the input size unchanged.
	None Method = iota
	// LZ4 compresses with the LZ4 raw block format.
	LZ4
	// Deflate compresses with raw DEFLATE (no zlib or gzip header).
	Deflate
)

// String returns the method's name as stored in store metadata.
func (m Method) String() string {
	switch m {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Deflate:
		return "deflate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseMethod parses a method name as accepted by the --compress flag.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "deflate":
		return Deflate, nil
	default:
		return 0, fmt.Errorf("unknown compression method %q", name)
	}
}

// Compress returns the compressed size of buf under method m, clamped to
// len(buf): a block that would not shrink is recorded at its original size
// rather than expanded.
func Compress(m Method, buf []byte) (uint32, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	switch m {
	case None:
		return uint32(len(buf)), nil
	case LZ4:
		n, err := compressLZ4(buf)
		if err != nil {
			return 0, err
		}
		return clamp(n, len(buf)), nil
	case Deflate:
		out, err := compressDeflate(buf)
		if err != nil {
			return 0, err
		}
		return clamp(len(out), len(buf)), nil
	default:
		return 0, fmt.Errorf("unsupported compression method: %s", m)
	}
}

func clamp(compressed, raw int) uint32 {
	if compressed <= 0 || compressed >= raw {
		return uint32(raw)
	}
	return uint32(compressed)
}

// compressLZ4 compresses buf using the LZ4 raw block format, matching
// LZ4_compress_fast(): no frame magic, no headers. The destination buffer
// is drawn from mempool.GlobalPool rather than allocated fresh, since this
// runs once per sampled block on every worker goroutine.
func compressLZ4(buf []byte) (int, error) {
	bound := lz4.CompressBlockBound(len(buf))
	dst := mempool.GlobalPool.Get(bound)
	dst = dst[:cap(dst)]
	defer mempool.GlobalPool.Put(dst)

	var ht [1 << 16]int
	n, err := lz4.CompressBlock(buf, dst, ht[:])
	if err != nil {
		return 0, fmt.Errorf("lz4 compress block: %w", err)
	}
	if n == 0 {
		// CompressBlock returns 0 when the data is incompressible.
		return len(buf), nil
	}
	return n, nil
}

// compressDeflate compresses buf using raw DEFLATE at the fastest level,
// matching the reference implementation's default compression effort, and
// returns the compressed bytes.
func compressDeflate(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.BestSpeed)
	if err != nil {
		return nil, fmt.Errorf("deflate writer: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return nil, fmt.Errorf("deflate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}
	return out.Bytes(), nil
}

// Decompress reverses Compress for testing and tooling. Since Compress only
// reports a size, Decompress operates on data the tests compress themselves
// (with the lz4 or flate packages, or compressDeflate); it is not used by
// the scan pipeline, which never persists block content.
func Decompress(m Method, data []byte, expectedSize int) ([]byte, error) {
	switch m {
	case None:
		return data, nil
	case LZ4:
		dst := make([]byte, expectedSize)
		n, err := lz4.UncompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 uncompress block: %w", err)
		}
		return dst[:n], nil
	case Deflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported compression method: %s", m)
	}
}
