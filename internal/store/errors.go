package store

import "errors"

// Sentinel errors the store layer wraps into its returned errors, so
// callers can map them to exit codes with errors.Is instead of string
// matching.
var (
	// ErrBlocksizeMismatch is returned by Merge and Import when the
	// incoming store was created with a different blocksize.
	ErrBlocksizeMismatch = errors.New("blocksize mismatch")

	// ErrNotAStoreFile is returned when a delete is requested on a file
	// that does not carry the SQLite format magic.
	ErrNotAStoreFile = errors.New("not a recognized store file")

	// ErrRefusedPath is returned when a store path resolves to a system
	// location (/, /dev, /proc, /sys).
	ErrRefusedPath = errors.New("refusing to use path as a store")
)
