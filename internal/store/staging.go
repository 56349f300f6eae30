package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bsjerps/qdda-go/internal/vfs"
)

// StagingStore is the append-only database an updater goroutine writes
// scan results into during one scan session.
type StagingStore struct {
	db   *sql.DB
	path string
}

// CreateStaging creates a new staging database file at path, refusing to
// overwrite an existing file (matching Database::createdb's "File already
// exists" guard).
func CreateStaging(path string, blocksizeKiB int64, compression string) (*StagingStore, error) {
	if err := checkSafePath(path); err != nil {
		return nil, err
	}
	if vfs.Default().Exists(path) {
		return nil, fmt.Errorf("staging store %q already exists", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("create staging store %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(stagingSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create staging schema %q: %w", path, err)
	}
	if _, err := db.Exec("INSERT INTO metadata (blksz, compression) VALUES (?, ?)", blocksizeKiB, compression); err != nil {
		db.Close()
		return nil, fmt.Errorf("set staging metadata %q: %w", path, err)
	}
	return &StagingStore{db: db, path: path}, nil
}

// OpenStaging opens an existing staging database for merging into a
// primary store.
func OpenStaging(path string) (*StagingStore, error) {
	if err := checkSafePath(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open staging store %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA schema_version"); err != nil {
		db.Close()
		return nil, fmt.Errorf("staging store %q is not a valid database: %w", path, err)
	}
	return &StagingStore{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *StagingStore) Close() error { return s.db.Close() }

// Path returns the staging file's path.
func (s *StagingStore) Path() string { return s.path }

// Blocksize returns the blocksize in KiB recorded at creation time.
func (s *StagingStore) Blocksize() (int64, error) {
	var kib int64
	err := s.db.QueryRow("SELECT blksz FROM metadata").Scan(&kib)
	if err != nil {
		return 0, fmt.Errorf("read staging blocksize: %w", err)
	}
	return kib, nil
}

// InsertBlock records one block's hash and optional compressed size.
// bytes == nil means the block was not sampled for compression.
func (s *StagingStore) InsertBlock(tx *sql.Tx, hash uint64, bytes *uint32) error {
	_, err := tx.Exec("INSERT INTO staging (hash, bytes) VALUES (?, ?)", int64(hash), nullableUint32(bytes))
	if err != nil {
		return fmt.Errorf("insert staging block: %w", err)
	}
	return nil
}

// InsertFileMeta records one scanned file's name, block count and byte
// count, matching StagingDB::insertmeta.
func (s *StagingStore) InsertFileMeta(tx *sql.Tx, name, hostname string, blocks, bytes int64) error {
	_, err := tx.Exec(
		"INSERT INTO files (name, hostname, timestamp, blocks, bytes) VALUES (?, ?, ?, ?, ?)",
		name, hostname, time.Now().Unix(), blocks, bytes,
	)
	if err != nil {
		return fmt.Errorf("insert staging file metadata: %w", err)
	}
	return nil
}

// Begin starts the single transaction the updater goroutine holds open
// for the whole scan session, matching StagingDB's begin()/end() pair
// bracketing the updater loop in the reference implementation.
func (s *StagingStore) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}

// RowCount returns the number of staged block rows.
func (s *StagingStore) RowCount() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT count(*) FROM staging").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count staging rows: %w", err)
	}
	return n, nil
}

// Delete closes and removes the staging file, refusing to remove
// anything that is not actually a SQLite database (matching
// fileDeleteSqlite3's magic-string check).
func (s *StagingStore) Delete() error {
	path := s.path
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close staging store before delete: %w", err)
	}
	return deleteSqliteFile(path)
}

// OffsetRow is one row of the offsets view: the block index and byte
// offset within the scanned stream that produced a given staged hash
// observation.
type OffsetRow struct {
	BlockIndex int64
	ByteOffset int64
	Hash       uint64
	HexHash    string
}

// FindHash returns every staged block observation matching hash, matching
// --findhash's "find blocks with hash=<hash> in staging db" query over
// the offsets view.
func (s *StagingStore) FindHash(hash uint64) ([]OffsetRow, error) {
	rows, err := s.db.Query(
		"SELECT offset, bytes, hash, hexhash FROM offsets WHERE hash = ? ORDER BY offset",
		int64(hash),
	)
	if err != nil {
		return nil, fmt.Errorf("find hash: %w", err)
	}
	defer rows.Close()

	var out []OffsetRow
	for rows.Next() {
		var r OffsetRow
		var h int64
		if err := rows.Scan(&r.BlockIndex, &r.ByteOffset, &h, &r.HexHash); err != nil {
			return nil, fmt.Errorf("find hash: %w", err)
		}
		r.Hash = uint64(h)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableUint32(v *uint32) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
