package qdda

import (
	"github.com/bsjerps/qdda-go/internal/block"
	"github.com/bsjerps/qdda-go/internal/logging"
	"github.com/bsjerps/qdda-go/internal/pipeline"
	"github.com/bsjerps/qdda-go/internal/report"
	"github.com/bsjerps/qdda-go/internal/store"
)

// Logger is an alias for the logging.Logger interface, letting callers
// pass their own implementation without importing the internal package
// directly.
type Logger = logging.Logger

// Method is an alias for the block compressor method enum.
type Method = block.Method

// Summary is an alias for the standard reduction report.
type Summary = report.Summary

// Detail is an alias for the extended histogram report.
type Detail = report.Detail

// PrimaryStore is an alias for the persistent key-value index handle
// returned by Open.
type PrimaryStore = store.PrimaryStore

// Compression method constants, matching the three values the store
// schema allows.
const (
	MethodNone    = block.MethodNone
	MethodLZ4     = block.MethodLZ4
	MethodDeflate = block.MethodDeflate
)

// Options configures how a primary store is opened or created, matching
// qdda.cpp's Parameters struct fields that govern database lifetime
// (dbname, append, do_delete).
type Options struct {
	// Path is the primary store file path. Empty means $HOME/qdda.db,
	// matching ParseFileName's default.
	Path string
	// Recreate, when true, deletes any existing primary store before
	// opening. Only a scan invocation sets this (and Append overrides
	// it); import, purge, diagnostics and report-only runs open the
	// existing store unchanged.
	Recreate bool
	// Append, when true, scans into the existing primary store instead
	// of deleting and recreating it first.
	Append bool
	// Array selects the bucket/blocksize layout on a freshly created
	// primary store; ignored when the store already exists, matching
	// "ignored on existing" in spec.md §6.
	Array string
	// Compress selects the compression method recorded on a freshly
	// created primary store, matching the three-value CHECK constraint
	// on metadata.compression.
	Compress Method
	// Log receives diagnostic output; defaults to a warn-level logger
	// writing to stderr.
	Log Logger
}

// ScanOptions configures one scan run's pipeline shape, matching
// qdda.cpp's bandwidth/workers/readers/buffers/interval/quiet/debug/
// dryrun fields.
type ScanOptions struct {
	// BandwidthMiBps caps aggregate reader throughput. 0 means the
	// default (200 MiB/s); a negative value disables throttling.
	BandwidthMiBps int64
	Workers        int
	Readers        int
	Buffers        int
	Interval       int
	DryRun         bool
	Quiet          bool
	NoMerge        bool
	Progress       pipeline.ProgressFunc
	// Log receives diagnostic output during the scan; defaults to a
	// warn-level logger, or logging.Discard when Quiet is set.
	Log Logger
}

// withDefaults fills in zero-valued fields the way the CLI's flag
// defaults do, matching kdefault_bandwidth=200, cpuCount() workers and
// kmax_reader_threads readers.
func (o ScanOptions) withDefaults(sourceCount int) ScanOptions {
	if o.Workers < 1 {
		o.Workers = defaultWorkers()
	}
	if o.Readers < 1 {
		o.Readers = defaultReaders(sourceCount)
	}
	if o.Interval < 1 {
		o.Interval = 1
	}
	if o.BandwidthMiBps == 0 {
		o.BandwidthMiBps = defaultBandwidthMiBps
	}
	return o
}

// defaultBandwidthMiBps matches qdda.cpp's kdefault_bandwidth.
const defaultBandwidthMiBps = 200

// maxReaderThreads matches qdda.cpp's kmax_reader_threads.
const maxReaderThreads = 32
