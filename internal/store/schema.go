// Package store implements the two-tier relational store: an append-only
// staging database that the scan pipeline's updater writes into, and a
// primary database holding the deduplicated key-value index, file
// history and materialized summary tables the report engine reads.
//
// Both databases are plain SQLite files opened through database/sql with
// the pure-Go modernc.org/sqlite driver, so a built binary never needs a
// system SQLite library.
package store

const stagingSchema = `
PRAGMA journal_mode = off;
PRAGMA synchronous = off;
CREATE TABLE IF NOT EXISTS metadata(
  lock INTEGER NOT NULL DEFAULT 1,
  blksz INTEGER,
  compression TEXT,
  CONSTRAINT pk_metadata PRIMARY KEY(lock),
  CONSTRAINT ck_metadata_lock CHECK (lock = 1)
);
CREATE TABLE IF NOT EXISTS files(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT,
  hostname TEXT,
  timestamp INTEGER,
  blocks INTEGER,
  bytes INTEGER
);
CREATE TABLE IF NOT EXISTS staging(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  hash INTEGER,
  bytes INTEGER
);
CREATE VIEW IF NOT EXISTS offsets AS
WITH m(b) AS (SELECT blksz FROM metadata)
SELECT hash, printf('%0#16x', hash) hexhash, (id - 1) offset, (id - 1) * m.b * 1024 bytes
FROM staging, m;
`

const primarySchema = `
CREATE TABLE IF NOT EXISTS metadata(
  lock INTEGER NOT NULL DEFAULT 1,
  version TEXT,
  blksz INTEGER,
  compression TEXT CHECK (compression IN ('none', 'lz4', 'deflate')) DEFAULT 'none',
  interval INTEGER NOT NULL DEFAULT 1,
  arrayid TEXT DEFAULT 'custom',
  created INTEGER,
  CONSTRAINT pk_metadata PRIMARY KEY(lock),
  CONSTRAINT ck_metadata_lock CHECK (lock = 1)
);
CREATE TABLE IF NOT EXISTS files(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT,
  hostname TEXT,
  timestamp INTEGER,
  blocks INTEGER,
  bytes INTEGER
);
CREATE TABLE IF NOT EXISTS kv(
  hash INTEGER PRIMARY KEY,
  blocks INTEGER,
  bytes INTEGER
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS buckets(bucksz INTEGER PRIMARY KEY NOT NULL);
CREATE TABLE IF NOT EXISTS m_sums_deduped(ref INTEGER, blocks INTEGER);
CREATE TABLE IF NOT EXISTS m_sums_compressed(size_kib INTEGER, blocks INTEGER, totblocks INTEGER, bytes INTEGER, raw INTEGER);
`

// schemaVersion is stamped into metadata.version on creation and checked
// on open, so a future incompatible layout change fails loudly instead of
// silently misreading rows.
const schemaVersion = "qdda-go-1"
