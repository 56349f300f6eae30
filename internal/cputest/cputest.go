// Package cputest runs the synthetic single-thread hashing, compression
// and staging-insert benchmark qdda.cpp's cputest() prints before a real
// scan, so an operator can judge what throughput to expect from a given
// machine and compression method.
package cputest

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/cpuid/v2"

	"github.com/bsjerps/qdda-go/internal/block"
	"github.com/bsjerps/qdda-go/internal/store"
)

// defaultBufMiB matches cputest()'s fixed 1024 MiB test set.
const defaultBufMiB = 1024

// MethodResult is one compressor's throughput over the test buffer.
type MethodResult struct {
	Method     string
	Bytes      int64
	Duration   time.Duration
	MBps       float64
	RowsPerSec float64
}

// CPUInfo reports the hardware features relevant to the hashing and
// compression algorithms under test, an enrichment cputest() does not
// print (it has no equivalent of a feature-detection library available).
type CPUInfo struct {
	BrandName     string
	PhysicalCores int
	LogicalCores  int
	HasAVX2       bool
	HasSSE42      bool
	HasAES        bool
}

// Report holds every measurement cputest() prints, plus the CPU feature
// enrichment above.
type Report struct {
	Rows         int64
	BlockSizeKiB int64
	BufSizeMiB   int64

	HashDuration   time.Duration
	HashMBps       float64
	HashRowsPerSec float64

	Compress []MethodResult

	InsertDuration   time.Duration
	InsertMBps       float64
	InsertRowsPerSec float64

	CPU CPUInfo
}

// detectCPU reads the running machine's feature bits, matching the spirit
// of cputest()'s informational banner but sourced from cpuid instead of a
// fixed string.
func detectCPU() CPUInfo {
	return CPUInfo{
		BrandName:     cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		HasAVX2:       cpuid.CPU.Supports(cpuid.AVX2),
		HasSSE42:      cpuid.CPU.Supports(cpuid.SSE42),
		HasAES:        cpuid.CPU.Supports(cpuid.AESNI),
	}
}

// fillTestBuffer reproduces testdata's "random(ish) but compressible"
// shape: every byte is one of 8 low values, deterministic across runs so
// repeated benchmarks are comparable, matching cputest()'s srand(1).
func fillTestBuffer(buf []byte) {
	rnd := rand.New(rand.NewPCG(1, 1))
	for i := range buf {
		buf[i] = byte(rnd.IntN(8))
	}
}

func mbps(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) / 1048576.0 / d.Seconds()
}

func rowsPerSec(rows int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(rows) / d.Seconds()
}

// Run benchmarks hashing, compression (every method block supports, plus
// snappy as a reference-only comparison point) and staging-database
// insert throughput over a synthetic buffer, matching cputest()'s three
// timed phases. stagingPath must not already exist; it is deleted before
// Run returns.
func Run(stagingPath string, blockSizeKiB int64) (*Report, error) {
	return runWithBufSize(stagingPath, blockSizeKiB, defaultBufMiB)
}

// runWithBufSize is Run with the test-set size as a parameter, so tests
// can exercise the full benchmark path without allocating a gigabyte.
func runWithBufSize(stagingPath string, blockSizeKiB, bufMiB int64) (*Report, error) {
	if blockSizeKiB <= 0 {
		blockSizeKiB = 8
	}
	if bufMiB <= 0 {
		bufMiB = defaultBufMiB
	}
	blockBytes := int(blockSizeKiB * 1024)
	bufSize := int(bufMiB) * 1024 * 1024
	if bufSize < blockBytes {
		bufSize = blockBytes
	}
	rows := int64(bufSize / blockBytes)

	testdata := make([]byte, bufSize)
	fillTestBuffer(testdata)

	r := &Report{
		Rows:         rows,
		BlockSizeKiB: blockSizeKiB,
		BufSizeMiB:   bufMiB,
		CPU:          detectCPU(),
	}

	hashes := make([]uint64, rows)
	start := time.Now()
	for i := int64(0); i < rows; i++ {
		buf := testdata[int(i)*blockBytes : int(i+1)*blockBytes]
		hashes[i] = block.Hash(buf)
	}
	r.HashDuration = time.Since(start)
	r.HashMBps = mbps(int64(bufSize), r.HashDuration)
	r.HashRowsPerSec = rowsPerSec(rows, r.HashDuration)

	methods := []struct {
		name string
		fn   func([]byte) (uint32, error)
	}{
		{"none", func(b []byte) (uint32, error) { return block.Compress(block.MethodNone, b) }},
		{"lz4", func(b []byte) (uint32, error) { return block.Compress(block.MethodLZ4, b) }},
		{"deflate", func(b []byte) (uint32, error) { return block.Compress(block.MethodDeflate, b) }},
		{"snappy", func(b []byte) (uint32, error) { return uint32(len(snappy.Encode(nil, b))), nil }},
	}
	bytesOut := make([]uint32, rows)
	for _, m := range methods {
		start = time.Now()
		var total int64
		for i := int64(0); i < rows; i++ {
			buf := testdata[int(i)*blockBytes : int(i+1)*blockBytes]
			n, err := m.fn(buf)
			if err != nil {
				return nil, fmt.Errorf("cputest: compress (%s): %w", m.name, err)
			}
			total += int64(n)
			if m.name == "none" {
				bytesOut[i] = n
			}
		}
		d := time.Since(start)
		r.Compress = append(r.Compress, MethodResult{
			Method:     m.name,
			Bytes:      total,
			Duration:   d,
			MBps:       mbps(int64(bufSize), d),
			RowsPerSec: rowsPerSec(rows, d),
		})
	}

	s, err := store.CreateStaging(stagingPath, blockSizeKiB, "none")
	if err != nil {
		return nil, fmt.Errorf("cputest: create staging: %w", err)
	}
	defer s.Delete()
	defer s.Close()

	tx, err := s.Begin()
	if err != nil {
		return nil, fmt.Errorf("cputest: begin: %w", err)
	}
	start = time.Now()
	for i := int64(0); i < rows; i++ {
		nb := bytesOut[i]
		if err := s.InsertBlock(tx, hashes[i], &nb); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("cputest: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cputest: commit: %w", err)
	}
	r.InsertDuration = time.Since(start)
	r.InsertMBps = mbps(int64(bufSize), r.InsertDuration)
	r.InsertRowsPerSec = rowsPerSec(rows, r.InsertDuration)

	return r, nil
}

// String renders the report in cputest()'s own three-line-per-phase
// layout, with the CPU feature banner prepended.
func (r *Report) String() string {
	out := "*** Synthetic performance test, 1 thread ***\n"
	out += fmt.Sprintf("CPU: %s (%d physical, %d logical cores) AVX2=%v SSE4.2=%v AES-NI=%v\n",
		r.CPU.BrandName, r.CPU.PhysicalCores, r.CPU.LogicalCores, r.CPU.HasAVX2, r.CPU.HasSSE42, r.CPU.HasAES)
	out += fmt.Sprintf("Initializing: %15d blocks, %dk (%d MiB)\n", r.Rows, r.BlockSizeKiB, r.BufSizeMiB)
	out += fmt.Sprintf("Hashing:      %15s, %10.2f MB/s, %11.2f rows/s\n", r.HashDuration, r.HashMBps, r.HashRowsPerSec)
	for _, m := range r.Compress {
		out += fmt.Sprintf("Compress(%-7s): %15s, %10.2f MB/s, %11.2f rows/s, %d bytes out\n",
			m.Method, m.Duration, m.MBps, m.RowsPerSec, m.Bytes)
	}
	out += fmt.Sprintf("DB insert:    %15s, %10.2f MB/s, %11.2f rows/s\n", r.InsertDuration, r.InsertMBps, r.InsertRowsPerSec)
	return out
}
