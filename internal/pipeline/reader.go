package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bsjerps/qdda-go/internal/logging"
	"github.com/bsjerps/qdda-go/internal/ring"
)

// runReaders is one reader goroutine's body: it claims unclaimed sources
// one at a time via per-file trylock, reads each end-to-end, and records
// the stream's block and byte totals on EOF. A source that cannot be
// opened aborts the pipeline rather than being silently skipped.
func runReaders(ctx context.Context, id int, sh *Shared, sources []*Source, log logging.Logger) error {
	for i := range sources {
		if !sh.fileLocks[i].TryLock() {
			continue // another reader already claimed this source
		}
		if err := sources[i].Open(); err != nil {
			sh.fileLocks[i].Unlock()
			return fmt.Errorf("reader %d: %w (check read access, e.g. sudo setfacl -m u:%s:r <device>)", id, err, username())
		}

		bytesRead, err := readStream(ctx, id, sh, sources[i])
		closeErr := sources[i].Close()

		if err == nil && ctx.Err() == nil {
			blocks := bytesRead / int64(sh.BlockBytes)
			if bytesRead%int64(sh.BlockBytes) != 0 {
				blocks++
			}
			if mErr := sh.insertFileMeta(sources[i].Name, hostname(), blocks, bytesRead); mErr != nil {
				sh.fileLocks[i].Unlock()
				return fmt.Errorf("reader %d on %q: %w", id, sources[i].Name, mErr)
			}
		}
		sh.fileLocks[i].Unlock()

		if err != nil {
			return fmt.Errorf("reader %d on %q: %w", id, sources[i].Name, err)
		}
		if closeErr != nil && !logging.IsNil(log) {
			log.Warnf(logging.NSReader+"reader %d: close %q: %v", id, sources[i].Name, closeErr)
		}
	}
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func username() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "<user>"
}

// readStream reads one source's entire content (up to its configured
// limit) in ring-slot-sized cycles, zero-padding a short final read and
// honoring Source.Repeat, matching threads.cpp's readstream.
func readStream(ctx context.Context, thread int, sh *Shared, src *Source) (int64, error) {
	ioSize := sh.BlocksPerCycle * sh.BlockBytes
	readBuf := make([]byte, ioSize)
	var totalBytes int64
	var seed uint64 = uint64(thread)*0x9E3779B97F4A7C15 + 1

	for {
		if err := ctx.Err(); err != nil {
			return totalBytes, nil
		}
		sh.Throttle.Request(int64(sh.BlocksPerCycle) * sh.BlockSizeKiB)

		n, readErr := io.ReadFull(src, readBuf)
		if n > 0 && src.Synthetic == "compress" {
			shapeCompressRatio(readBuf[:n], sh.BlockBytes, seed)
			seed = seed*6364136223846793005 + 1442695040888963407
		}

		bytesRead := int64(n)
		totalBytes += bytesRead
		blocks := bytesRead / int64(sh.BlockBytes)
		if bytesRead%int64(sh.BlockBytes) != 0 {
			blocks++
		}

		if n < ioSize {
			for i := n; i < ioSize; i++ {
				readBuf[i] = 0
			}
		}

		if blocks > 0 {
			for j := 0; j < src.repeatCount(); j++ {
				ix, status := sh.Ring.AcquireFree(ctx)
				if status != ring.OK {
					return totalBytes, nil
				}
				slot := sh.Ring.Slot(ix)
				copy(slot.Data, readBuf)
				slot.Used = int(blocks)
				sh.Ring.Release(ix)
			}
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return totalBytes, nil
		}
		if readErr != nil {
			return totalBytes, readErr
		}
	}
}
