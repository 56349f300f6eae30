package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bsjerps/qdda-go/internal/vfs"
)

// sqliteMagic is the 16-byte header every SQLite database file starts
// with, matching fileIsSqlite3's magic string comparison.
const sqliteMagic = "SQLite format 3\x00"

// refusedPrefixes are store locations that would be destructive to open
// or delete as a scan target, matching the CLI's refusal to treat system
// directories as scan output.
var refusedPrefixes = []string{"/dev", "/proc", "/sys"}

// checkSafePath refuses to create or open a store at "/" or anywhere
// under a system directory.
func checkSafePath(path string) error {
	clean := filepath.Clean(path)
	if clean == "/" {
		return fmt.Errorf("%w: %q", ErrRefusedPath, path)
	}
	for _, prefix := range refusedPrefixes {
		if clean == prefix || strings.HasPrefix(clean, prefix+"/") {
			return fmt.Errorf("%w: %q", ErrRefusedPath, path)
		}
	}
	return nil
}

// isSqliteFile reports whether path exists and begins with the SQLite
// file format magic string, matching fileIsSqlite3.
func isSqliteFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, len(sqliteMagic))
	n, err := f.Read(buf)
	if err != nil || n < len(sqliteMagic) {
		return false
	}
	return bytes.Equal(buf, []byte(sqliteMagic))
}

// deleteSqliteFile removes path only if it is actually a SQLite database,
// matching fileDeleteSqlite3's safety check before unlinking a staging or
// primary store file.
func deleteSqliteFile(path string) error {
	if err := checkSafePath(path); err != nil {
		return err
	}
	if !isSqliteFile(path) {
		return fmt.Errorf("%w: %q", ErrNotAStoreFile, path)
	}
	if err := vfs.Default().Remove(path); err != nil {
		return fmt.Errorf("delete store %q: %w", path, err)
	}
	return nil
}
