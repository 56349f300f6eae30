package pipeline

import (
	"context"
	"math/rand/v2"

	"github.com/bsjerps/qdda-go/internal/block"
	"github.com/bsjerps/qdda-go/internal/logging"
	"github.com/bsjerps/qdda-go/internal/ring"
)

// ProgressFunc is called periodically with running totals so a caller can
// render a progress line, matching worker()'s `progress(sd.blocks, ...)`
// call.
type ProgressFunc func(blocks, bytes int64)

// runWorker drains filled ring slots, hashing and selectively compressing
// every block, until the ring reports done or ctx is cancelled. Matches
// threads.cpp's worker().
func runWorker(ctx context.Context, id int, sh *Shared, progress ProgressFunc, log logging.Logger) error {
	rnd := rand.New(rand.NewPCG(uint64(id)+1, 0xD1B54A32D192ED03))

	for {
		ix, status := sh.Ring.AcquireFull(ctx)
		if status != ring.OK {
			if status == ring.Aborted && !logging.IsNil(log) {
				log.Debugf(logging.NSWorker + "worker stopped: context cancelled")
			}
			return nil
		}

		slot := sh.Ring.Slot(ix)
		var cycleBlocks, cycleBytes int64
		for j := 0; j < slot.Used; j++ {
			buf := slot.Data[j*sh.BlockBytes : (j+1)*sh.BlockBytes]
			hash := block.Hash(buf)

			// Sample every block with probability 1/Interval, matching
			// `rand()%sd.interval==0`; a sampled zero-hash block records a
			// 0 compressed size without running the compressor, matching
			// `hash ? compress(...) : 0`. An unsampled block is left nil,
			// the Go equivalent of the C++ `bytes=-1` sentinel.
			var size *uint32
			if sh.Interval == 1 || rnd.IntN(sh.Interval) == 0 {
				if hash == 0 {
					zero := uint32(0)
					size = &zero
				} else {
					compressed, err := block.Compress(sh.Method, buf)
					if err != nil {
						return err
					}
					size = &compressed
				}
			}

			slot.Hashes[j] = hash
			slot.Sizes[j] = size
			cycleBlocks++
			cycleBytes += int64(sh.BlockBytes)
		}

		total, totalBytes := sh.addProgress(cycleBlocks, cycleBytes)
		prev := total - cycleBlocks
		if progress != nil && (total/10000 > prev/10000 || (prev < 10 && total >= 10)) {
			progress(total, totalBytes)
		}

		sh.Ring.Release(ix)
	}
}
