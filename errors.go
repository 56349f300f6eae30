package qdda

import (
	"errors"

	"github.com/bsjerps/qdda-go/internal/store"
)

// Sentinel errors that top-level operations wrap for specific failures,
// testable with errors.Is. cmd/qdda does not map them to exit codes: it
// exits 1 when the scan's context was cancelled and 10 on any other error.
var (
	// ErrBlocksizeMismatch is returned by Merge/Import when the staging
	// or peer primary store's blocksize does not match the target
	// primary, matching invariant 1 in spec.md §3.
	ErrBlocksizeMismatch = store.ErrBlocksizeMismatch

	// ErrNotAStoreFile is returned when --delete or an internal safety
	// check is asked to remove a file that is not a recognized store,
	// matching fileIsSqlite3's magic-string guard.
	ErrNotAStoreFile = store.ErrNotAStoreFile

	// ErrRefusedPath is returned when a store path resolves to a system
	// directory (/dev, /proc, /sys, /), matching the CLI's path safety
	// rail in spec.md §6.
	ErrRefusedPath = store.ErrRefusedPath

	// ErrAborted is returned when a scan is cancelled via context before
	// it completes; the caller must exit with code 1, not 10.
	ErrAborted = errors.New("qdda: scan aborted")

	// ErrSingleRowViolation names the single-row metadata invariant in
	// spec.md §3. No operation in this module returns it: metadata is
	// written once, when a store is created.
	ErrSingleRowViolation = errors.New("qdda: metadata is already set on this store")

	// ErrNoSources is returned when a scan is requested with no stream
	// arguments and stdin is not redirected.
	ErrNoSources = errors.New("qdda: no input streams given")
)
