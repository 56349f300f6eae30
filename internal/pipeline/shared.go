package pipeline

import (
	"database/sql"
	"sync"

	"github.com/bsjerps/qdda-go/internal/block"
	"github.com/bsjerps/qdda-go/internal/ring"
	"github.com/bsjerps/qdda-go/internal/store"
	"github.com/bsjerps/qdda-go/internal/throttle"
)

// Shared holds everything the reader, worker and updater goroutines need,
// mirroring threads.cpp's SharedData struct: one instance is built per
// scan and passed to every goroutine.
type Shared struct {
	BlockSizeKiB   int64
	BlockBytes     int
	BlocksPerCycle int
	Method         block.Method
	Interval       int // compress each block with probability 1/Interval; 1 means every block
	Quiet          bool
	DryRun         bool

	Ring      *ring.Ring
	Throttle  *throttle.Throttle
	Staging   *store.StagingStore
	fileLocks []sync.Mutex

	mu     sync.Mutex
	blocks int64
	bytes  int64

	// dbMu serializes every write on tx, the one transaction held open
	// for the whole scan: the updater's block inserts and the readers'
	// end-of-stream metadata inserts, matching mx_database.
	dbMu sync.Mutex
	tx   *sql.Tx
}

// insertFileMeta records a finished stream's name and size into the scan
// transaction, serialized against the updater's block inserts.
func (sh *Shared) insertFileMeta(name, hostname string, blocks, bytes int64) error {
	sh.dbMu.Lock()
	defer sh.dbMu.Unlock()
	return sh.Staging.InsertFileMeta(sh.tx, name, hostname, blocks, bytes)
}

// NewShared builds a Shared for the given sources, array blocksize,
// compression method and sampling interval, matching SharedData's
// constructor: blockspercycle is fixed at 1 MiB worth of blocks per I/O
// cycle (kbufsize == 1024 KiB in the reference).
func NewShared(buffers int, sources []*Source, blockSizeKiB int64, method block.Method, interval int, bandwidthMiBps int64, staging *store.StagingStore) *Shared {
	const ioCycleKiB = 1024
	blocksPerCycle := int(ioCycleKiB / blockSizeKiB)
	if blocksPerCycle < 1 {
		blocksPerCycle = 1
	}
	blockBytes := int(blockSizeKiB * 1024)

	sh := &Shared{
		BlockSizeKiB:   blockSizeKiB,
		BlockBytes:     blockBytes,
		BlocksPerCycle: blocksPerCycle,
		Method:         method,
		Interval:       interval,
		Ring:           ring.New(buffers, blocksPerCycle, blockBytes),
		Throttle:       throttle.New(bandwidthMiBps),
		Staging:        staging,
		fileLocks:      make([]sync.Mutex, len(sources)),
	}
	if sh.Interval < 1 {
		sh.Interval = 1
	}
	return sh
}

// addProgress accumulates processed block/byte counts under the shared
// counter lock, matching worker()'s `Lockguard lock(sd.mx_shared)` block.
func (sh *Shared) addProgress(blocks, bytes int64) (totalBlocks, totalBytes int64) {
	sh.mu.Lock()
	sh.blocks += blocks
	sh.bytes += bytes
	totalBlocks, totalBytes = sh.blocks, sh.bytes
	sh.mu.Unlock()
	return
}

// Totals returns the accumulated block and byte counts processed so far.
func (sh *Shared) Totals() (blocks, bytes int64) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.blocks, sh.bytes
}
