// Package qdda implements a dedupe and compression analyzer: it scans one
// or more byte streams (files, block devices, pipes) and estimates the
// storage reduction a deduplicating, compressing, bucket-packing storage
// array would achieve on that data.
//
// A scan runs a concurrent reader/worker/updater pipeline (package
// pipeline) that hashes and optionally compresses every fixed-size block
// into a per-scan staging store (package store), then merges the staging
// store into a persistent primary key-value index keyed by block hash.
// The report engine (package report) derives dedupe, compression and
// bucket-packing metrics from the primary store's aggregated histograms.
//
// # Usage
//
// The qdda package itself exposes the high-level operations the CLI in
// cmd/qdda drives: opening or creating a primary store, running a scan,
// merging or importing, and generating a report. Each operation returns a
// plain error; cmd/qdda is the only place that converts an error into a
// process exit code.
//
// # Concurrency
//
// Scan is safe to call once per primary store at a time: the store layer
// documents primary-store access as exclusive during merge, matching the
// "no concurrent scanners" rule in the store's own design.
package qdda
