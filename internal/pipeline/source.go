// Package pipeline implements the concurrent reader/worker/updater scan
// engine that turns raw files or block devices into staged block records.
package pipeline

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/bsjerps/qdda-go/internal/vfs"
)

// defaultSyntheticLimitMiB is the default read ceiling for the zero/
// random/compress synthetic sources, matching readstream's
// `limit_mb = 1024` default for these pseudo-paths.
const defaultSyntheticLimitMiB = 1024

// sourceSeed is the starting xorshift state for the random/compress
// generators. Fixed so repeated scans of "random:1" produce the same
// stream and accumulate linearly in the primary store.
const sourceSeed = 0x2545F4914F6CDD1D

// Source describes one scan target, parsed from the `name[:limit][,repeat]`
// CLI syntax. Name "zero", "random" and "compress" are synthetic sources
// backed by a deterministic generator instead of a real file.
type Source struct {
	Name      string // original argument, used for display and file metadata
	Path      string // resolved path to open, or "" for a synthetic source
	Synthetic string // "" , "zero", "random" or "compress"
	LimitMiB  int64  // 0 means read to EOF
	Repeat    int    // number of times each read cycle is processed; 0 means 1

	mu       sync.Mutex
	file     vfs.SequentialFile
	produced int64  // bytes handed out so far, for limit enforcement
	rng      uint64 // xorshift state for the random/compress generators
}

// ParseSource parses one CLI scan-target argument, matching
// `FileData::FileData`'s colon/comma split: `name[:limit][,repeat]`.
func ParseSource(arg string) (*Source, error) {
	name, rest, hasColon := strings.Cut(arg, ":")
	var limitStr, repeatStr string
	if hasColon {
		limitStr, repeatStr, _ = strings.Cut(rest, ",")
	}

	src := &Source{Name: name, Path: name, rng: sourceSeed}
	switch name {
	case "compress":
		src.Synthetic = "compress"
		src.Path = ""
		src.LimitMiB = defaultSyntheticLimitMiB
	case "random":
		src.Synthetic = "random"
		src.Path = ""
		src.LimitMiB = defaultSyntheticLimitMiB
	case "zero":
		src.Synthetic = "zero"
		src.Path = ""
		src.LimitMiB = defaultSyntheticLimitMiB
	}

	if limitStr != "" {
		v, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid limit in %q: %w", arg, err)
		}
		src.LimitMiB = v
	}
	if repeatStr != "" {
		v, err := strconv.Atoi(repeatStr)
		if err != nil {
			return nil, fmt.Errorf("invalid repeat in %q: %w", arg, err)
		}
		src.Repeat = v
	}
	return src, nil
}

// repeatCount returns how many times a read cycle's buffer is processed,
// matching readstream's `fd.repeat ? fd.repeat : 1`.
func (s *Source) repeatCount() int {
	if s.Repeat == 0 {
		return 1
	}
	return s.Repeat
}

// Open opens the underlying file for a real source through vfs.Default(),
// the OS-backed filesystem. Synthetic sources generate data in Read and
// need no file handle.
func (s *Source) Open() error {
	if s.Synthetic != "" {
		return nil
	}
	f, err := vfs.Default().Open(s.Path)
	if err != nil {
		return fmt.Errorf("open %q: %w", s.Path, err)
	}
	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
	return nil
}

// Close releases the underlying file handle, if any.
func (s *Source) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// Read fills buf from the source, returning io.EOF once the underlying
// stream ends or the configured byte limit is reached. A source is read
// by exactly one reader goroutine at a time (the per-file trylock in
// runReaders), so generator state needs no further locking.
func (s *Source) Read(buf []byte) (int, error) {
	if s.LimitMiB > 0 {
		remaining := s.LimitMiB*1024*1024 - s.produced
		if remaining <= 0 {
			return 0, io.EOF
		}
		if int64(len(buf)) > remaining {
			buf = buf[:remaining]
		}
	}

	var n int
	var err error
	switch s.Synthetic {
	case "zero":
		for i := range buf {
			buf[i] = 0
		}
		n = len(buf)
	case "random", "compress":
		s.rng = fillRandom(buf, s.rng)
		n = len(buf)
	default:
		n, err = s.file.Read(buf)
	}
	s.produced += int64(n)
	return n, err
}

// fillRandom fills buf with xorshift64 output starting from state and
// returns the advanced state, so successive reads continue the stream
// instead of repeating it. The "compress" source later overwrites part of
// each block with zeroes (shapeCompressRatio); the raw stream itself is
// incompressible noise either way.
func fillRandom(buf []byte, state uint64) uint64 {
	for i := range buf {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		buf[i] = byte(state)
	}
	return state
}

// shapeCompressRatio overwrites the head of each blocksize-sized slab in
// buf with zero bytes up to a random length, matching readstream's
// fd.ratio handling for the "compress" synthetic source: this is what
// makes that source's output reduce under compression instead of being
// incompressible noise.
func shapeCompressRatio(buf []byte, blockBytes int, seed uint64) {
	if blockBytes <= 0 {
		return
	}
	state := seed
	for off := 0; off+blockBytes <= len(buf); off += blockBytes {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		n := int(state % uint64(blockBytes))
		for i := 0; i < n; i++ {
			buf[off+i] = 0
		}
	}
}

var _ io.Reader = (*Source)(nil)
