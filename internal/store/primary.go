package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bsjerps/qdda-go/internal/vfs"
)

// PrimaryStore is the durable key-value index: one row per distinct block
// hash, plus file history and the materialized summary tables the report
// engine reads. The store is held exclusively: an advisory lock taken at
// open time keeps a second scanner or merge off the same file.
type PrimaryStore struct {
	db   *sql.DB
	path string
	lock io.Closer
}

// ArrayPreset names one of the predefined bucket layouts.
type ArrayPreset struct {
	Name         string
	BlocksizeKiB int64
	Buckets      []int64
}

// Predefined array presets, matching QddaDB::setmetadata's comment block
// (X1/X2/VMAX1 bucket layouts for XtremIO and VMAX All Flash arrays).
var (
	ArrayX1    = ArrayPreset{Name: "x1", BlocksizeKiB: 8, Buckets: []int64{2, 4, 8}}
	ArrayX2    = ArrayPreset{Name: "x2", BlocksizeKiB: 16, Buckets: append(rangeBuckets(1, 14, 1), 16)}
	ArrayVmax1 = ArrayPreset{Name: "vmax1", BlocksizeKiB: 128, Buckets: rangeBuckets(8, 128, 8)}
)

func rangeBuckets(start, end, step int64) []int64 {
	var out []int64
	for v := start; v <= end; v += step {
		out = append(out, v)
	}
	return out
}

// CreatePrimary creates a new primary store file with the given array
// layout, refusing to overwrite an existing file.
func CreatePrimary(path string, preset ArrayPreset, compression string) (*PrimaryStore, error) {
	if err := checkSafePath(path); err != nil {
		return nil, err
	}
	if vfs.Default().Exists(path) {
		return nil, fmt.Errorf("primary store %q already exists", path)
	}
	if preset.BlocksizeKiB > 128 {
		return nil, fmt.Errorf("blocksize too large: %d KiB", preset.BlocksizeKiB)
	}

	lock, err := vfs.Default().Lock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("lock primary store %q: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		lock.Close()
		return nil, fmt.Errorf("create primary store %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(primarySchema); err != nil {
		db.Close()
		lock.Close()
		return nil, fmt.Errorf("create primary schema %q: %w", path, err)
	}

	_, err = db.Exec(
		"INSERT INTO metadata (version, blksz, compression, arrayid, created) VALUES (?, ?, ?, ?, ?)",
		schemaVersion, preset.BlocksizeKiB, compression, preset.Name, time.Now().Unix(),
	)
	if err != nil {
		db.Close()
		lock.Close()
		return nil, fmt.Errorf("set primary metadata %q: %w", path, err)
	}

	ps := &PrimaryStore{db: db, path: path, lock: lock}
	if err := ps.loadBuckets(preset.Buckets, preset.BlocksizeKiB); err != nil {
		db.Close()
		lock.Close()
		return nil, err
	}
	return ps, nil
}

// OpenPrimary opens an existing primary store, verifying it carries a
// recognized schema version.
func OpenPrimary(path string) (*PrimaryStore, error) {
	if err := checkSafePath(path); err != nil {
		return nil, err
	}
	lock, err := vfs.Default().Lock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("lock primary store %q: %w", path, err)
	}
	fail := func(format string, args ...any) (*PrimaryStore, error) {
		lock.Close()
		return nil, fmt.Errorf(format, args...)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fail("open primary store %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA schema_version"); err != nil {
		db.Close()
		return fail("primary store %q is not a valid database: %w", path, err)
	}
	var version string
	if err := db.QueryRow("SELECT version FROM metadata").Scan(&version); err != nil {
		db.Close()
		return fail("primary store %q has no metadata: %w", path, err)
	}
	if version != schemaVersion {
		db.Close()
		return fail("primary store %q has schema version %q, want %q", path, version, schemaVersion)
	}
	return &PrimaryStore{db: db, path: path, lock: lock}, nil
}

func (p *PrimaryStore) loadBuckets(buckets []int64, blocksizeKiB int64) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("load buckets: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM buckets"); err != nil {
		tx.Rollback()
		return fmt.Errorf("load buckets: %w", err)
	}
	all := append([]int64{0}, buckets...)
	all = append(all, blocksizeKiB)
	seen := map[int64]bool{}
	for _, b := range all {
		if seen[b] {
			continue
		}
		seen[b] = true
		if _, err := tx.Exec("INSERT OR REPLACE INTO buckets VALUES (?)", b); err != nil {
			tx.Rollback()
			return fmt.Errorf("load buckets: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle and the store lock.
func (p *PrimaryStore) Close() error {
	err := p.db.Close()
	if p.lock != nil {
		if lerr := p.lock.Close(); err == nil {
			err = lerr
		}
		p.lock = nil
	}
	return err
}

// Path returns the primary file's path.
func (p *PrimaryStore) Path() string { return p.path }

// Blocksize returns the blocksize in KiB, fixed at creation time.
func (p *PrimaryStore) Blocksize() (int64, error) {
	var kib int64
	err := p.db.QueryRow("SELECT blksz FROM metadata").Scan(&kib)
	if err != nil {
		return 0, fmt.Errorf("read primary blocksize: %w", err)
	}
	return kib, nil
}

// ArrayID returns the array preset name recorded at creation.
func (p *PrimaryStore) ArrayID() (string, error) {
	var id string
	err := p.db.QueryRow("SELECT arrayid FROM metadata").Scan(&id)
	if err != nil {
		return "", fmt.Errorf("read primary arrayid: %w", err)
	}
	return id, nil
}

// Method returns the compression method recorded at creation.
func (p *PrimaryStore) Method() (string, error) {
	var m string
	err := p.db.QueryRow("SELECT compression FROM metadata").Scan(&m)
	if err != nil {
		return "", fmt.Errorf("read primary compression method: %w", err)
	}
	return m, nil
}

// Interval returns the compression sampling interval recorded for this
// store: 1 in every interval non-zero blocks is compression-measured.
func (p *PrimaryStore) Interval() (int64, error) {
	var n int64
	err := p.db.QueryRow("SELECT interval FROM metadata").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read primary interval: %w", err)
	}
	return n, nil
}

// SetInterval records the sampling interval used by the most recent scan.
func (p *PrimaryStore) SetInterval(n int64) error {
	if n < 1 {
		n = 1
	}
	if _, err := p.db.Exec("UPDATE metadata SET interval = ?", n); err != nil {
		return fmt.Errorf("set primary interval: %w", err)
	}
	return nil
}

// Buckets returns the ascending bucket sizes in KiB for this store.
func (p *PrimaryStore) Buckets() ([]int64, error) {
	rows, err := p.db.Query("SELECT bucksz FROM buckets ORDER BY bucksz")
	if err != nil {
		return nil, fmt.Errorf("read buckets: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var b int64
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("read buckets: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Rows returns the number of distinct hashes in the kv table.
func (p *PrimaryStore) Rows() (int64, error) {
	var n int64
	err := p.db.QueryRow("SELECT count(*) FROM kv").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count kv rows: %w", err)
	}
	return n, nil
}

// DB returns the underlying *sql.DB for the report engine and merge code
// in this package; it is not part of the public store API surface used
// by the scan pipeline.
func (p *PrimaryStore) DB() *sql.DB { return p.db }

// HashRow is one row of a top-hash query: a distinct block hash, its
// reference count and its recorded compressed size.
type HashRow struct {
	Hash    uint64
	HexHash string
	Blocks  int64
	Bytes   sql.NullInt64
}

// TopHash returns the n hashes with the highest reference count,
// matching QddaDB::tophash's "show top <num> hashes by refcount" query.
func (p *PrimaryStore) TopHash(n int) ([]HashRow, error) {
	rows, err := p.db.Query(
		"SELECT hash, printf('%0#16x', hash), blocks, bytes FROM kv WHERE hash != 0 ORDER BY blocks DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("top hash: %w", err)
	}
	defer rows.Close()

	var out []HashRow
	for rows.Next() {
		var r HashRow
		var h int64
		if err := rows.Scan(&h, &r.HexHash, &r.Blocks, &r.Bytes); err != nil {
			return nil, fmt.Errorf("top hash: %w", err)
		}
		r.Hash = uint64(h)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Vacuum reclaims unused space in the primary store file, matching
// Database::vacuum() (the --purge CLI flag).
func (p *PrimaryStore) Vacuum() error {
	if _, err := p.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Delete closes and removes the primary store file, refusing to remove
// anything that is not actually a SQLite database.
func (p *PrimaryStore) Delete() error {
	path := p.path
	if err := p.Close(); err != nil {
		return fmt.Errorf("close primary store before delete: %w", err)
	}
	return DeletePrimary(path)
}

// DeletePrimary removes the primary store file at path without opening
// it first, refusing anything that is not a recognized SQLite database,
// matching the CLI's --delete guard (Database::deletedb's schema check).
func DeletePrimary(path string) error {
	if err := deleteSqliteFile(path); err != nil {
		return err
	}
	os.Remove(path + ".lock")
	return nil
}

// parseBucketList parses a comma-separated bucket list.
func parseBucketList(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket size %q: %w", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}
