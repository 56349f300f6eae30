package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/bsjerps/qdda-go/internal/block"
	"github.com/bsjerps/qdda-go/internal/logging"
	"github.com/bsjerps/qdda-go/internal/store"
)

// extraBuffers is the slack the ring keeps beyond reader+worker count,
// matching threads.cpp's `kextra_buffers = 32`.
const extraBuffers = 32

// Options configures one scan run, matching analyze()'s Parameters plus
// the per-array metadata it reads from the primary database.
type Options struct {
	Sources        []*Source
	BlockSizeKiB   int64
	Method         block.Method
	Interval       int
	Readers        int
	Workers        int
	Buffers        int // 0 means workers+readers+extraBuffers
	BandwidthMiBps int64
	DryRun         bool
	Quiet          bool
	StagingPath    string
	Progress       ProgressFunc
	Log            logging.Logger
}

// Result summarizes one completed scan.
type Result struct {
	Blocks  int64
	Bytes   int64
	Staging *store.StagingStore
}

// Scan runs the reader/worker/updater pipeline to completion, returning
// the populated staging store for the caller to merge into a primary
// store. Matches analyze()'s setup, thread fan-out and join order:
// readers join first, then the ring is marked done, then workers join,
// then the updater.
func Scan(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Sources) == 0 {
		return nil, fmt.Errorf("scan: no sources given")
	}
	readers := opts.Readers
	if readers > len(opts.Sources) {
		readers = len(opts.Sources)
	}
	if readers < 1 {
		readers = 1
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	buffers := opts.Buffers
	if buffers == 0 {
		buffers = workers + readers + extraBuffers
	}

	staging, err := store.CreateStaging(opts.StagingPath, opts.BlockSizeKiB, opts.Method.String())
	if err != nil {
		return nil, fmt.Errorf("scan: create staging store: %w", err)
	}

	sh := NewShared(buffers, opts.Sources, opts.BlockSizeKiB, opts.Method, opts.Interval, opts.BandwidthMiBps, staging)
	sh.Quiet = opts.Quiet
	sh.DryRun = opts.DryRun

	// The one transaction every staged row goes through; held open for
	// the whole scan so the updater commits once instead of per row.
	sh.tx, err = staging.Begin()
	if err != nil {
		staging.Close()
		return nil, fmt.Errorf("scan: begin staging transaction: %w", err)
	}

	if !logging.IsNil(opts.Log) {
		opts.Log.Infof(logging.NSScan+"scanning %d sources, %d readers, %d workers, %d buffers, %d MiB/s max",
			len(opts.Sources), readers, workers, buffers, opts.BandwidthMiBps)
	}

	// Any goroutine failure cancels the others: a dead updater or worker
	// would otherwise stall the ring and leave the rest blocked forever.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var updaterErr error
	updaterDone := make(chan struct{})
	go func() {
		defer close(updaterDone)
		updaterErr = runUpdater(runCtx, sh)
		if updaterErr != nil {
			cancel()
		}
	}()

	var workerWG sync.WaitGroup
	workerErrs := make([]error, workers)
	for i := 0; i < workers; i++ {
		workerWG.Add(1)
		go func(id int) {
			defer workerWG.Done()
			workerErrs[id] = runWorker(runCtx, id, sh, opts.Progress, opts.Log)
			if workerErrs[id] != nil {
				cancel()
			}
		}(i)
	}

	var readerWG sync.WaitGroup
	readerErrs := make([]error, readers)
	for i := 0; i < readers; i++ {
		readerWG.Add(1)
		go func(id int) {
			defer readerWG.Done()
			readerErrs[id] = runReaders(runCtx, id, sh, opts.Sources, opts.Log)
			if readerErrs[id] != nil {
				cancel()
			}
		}(i)
	}

	readerWG.Wait()
	sh.Ring.Done() // signal workers that reading is complete, matching `sd.rb.done = true`
	workerWG.Wait()
	<-updaterDone

	fail := func(err error) (*Result, error) {
		staging.Close()
		_ = staging.Delete() // an incomplete staging store is never merged, matching analyze()'s cleanup
		return nil, fmt.Errorf("scan: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("aborted: %w", err))
	}
	for _, e := range readerErrs {
		if e != nil {
			return fail(e)
		}
	}
	for _, e := range workerErrs {
		if e != nil {
			return fail(e)
		}
	}
	if updaterErr != nil {
		return fail(updaterErr)
	}

	blocks, bytes := sh.Totals()
	return &Result{Blocks: blocks, Bytes: bytes, Staging: staging}, nil
}
