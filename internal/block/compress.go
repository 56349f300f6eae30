package block

import "github.com/bsjerps/qdda-go/internal/compression"

// Method selects the block compressor. It is the compression package's
// Method type under a domain-facing name, since block primitives are the
// only place the pipeline needs to think about compression methods.
type Method = compression.Method

const (
	MethodNone    = compression.None
	MethodLZ4     = compression.LZ4
	MethodDeflate = compression.Deflate
)

// Compress returns the compressed size of buf under method m, clamped to
// len(buf). Zero blocks are never compressed by the caller (the pipeline
// records bytes=0 for a zero hash without calling Compress), matching the
// reference implementation's "don't compress the zero block" shortcut.
func Compress(m Method, buf []byte) (uint32, error) {
	return compression.Compress(m, buf)
}

// ParseMethod parses a method name as accepted by the --compress flag and
// stored in the metadata.compression column.
func ParseMethod(name string) (Method, error) {
	return compression.ParseMethod(name)
}
