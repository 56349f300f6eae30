package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Merge folds a staging store's blocks into the primary kv table and
// appends its file history, matching QddaDB::merge: every (hash, 1,
// bytes) row from staging is unioned against the existing kv rows, summed
// by hash, and written back with insert-or-replace.
func (p *PrimaryStore) Merge(staging *StagingStore) error {
	blksz, err := p.Blocksize()
	if err != nil {
		return err
	}
	sblksz, err := staging.Blocksize()
	if err != nil {
		return err
	}
	if blksz != sblksz {
		return fmt.Errorf("%w: primary is %d KiB, staging is %d KiB", ErrBlocksizeMismatch, blksz, sblksz)
	}

	return p.withAttached(staging.path, "tmpdb", func(tx *sql.Tx) error {
		// Within a hash group the bytes column is constant (same hash,
		// same content, same compressed size); max() keeps the non-NULL
		// observation when a sampled and an unsampled row coexist.
		_, err := tx.Exec(`
			WITH t(hash, blocks, bytes) AS (
			  SELECT hash, blocks, bytes FROM kv
			  UNION ALL
			  SELECT hash, 1, bytes FROM tmpdb.staging
			)
			INSERT OR REPLACE INTO kv
			SELECT hash, sum(blocks), max(bytes) FROM t GROUP BY hash
		`)
		if err != nil {
			return fmt.Errorf("merge: union kv: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO files (name, hostname, timestamp, blocks, bytes)
			SELECT name, hostname, timestamp, blocks, bytes FROM tmpdb.files
		`)
		if err != nil {
			return fmt.Errorf("merge: copy file history: %w", err)
		}

		return refreshSummaries(tx)
	})
}

// Import folds another primary store's kv table into this one, matching
// QddaDB::import: blocks for a shared hash are summed, an unseen hash is
// inserted as-is. This makes import commutative and associative, so
// combining partial results from several hosts never depends on order.
// The peer must have been created with the same blocksize.
func (p *PrimaryStore) Import(otherPath string) error {
	blksz, err := p.Blocksize()
	if err != nil {
		return err
	}

	return p.withAttached(otherPath, "impdb", func(tx *sql.Tx) error {
		var peerBlksz int64
		if err := tx.QueryRow("SELECT blksz FROM impdb.metadata").Scan(&peerBlksz); err != nil {
			return fmt.Errorf("import: read peer metadata %q: %w", otherPath, err)
		}
		if peerBlksz != blksz {
			return fmt.Errorf("%w: primary is %d KiB, import is %d KiB", ErrBlocksizeMismatch, blksz, peerBlksz)
		}

		_, err := tx.Exec(`
			INSERT OR REPLACE INTO main.kv
			SELECT impdb.kv.hash
			, coalesce(main.kv.blocks, 0) + impdb.kv.blocks
			, coalesce(impdb.kv.bytes, main.kv.bytes)
			FROM impdb.kv
			LEFT OUTER JOIN main.kv ON main.kv.hash = impdb.kv.hash
		`)
		if err != nil {
			return fmt.Errorf("import: union kv: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO files (name, hostname, timestamp, blocks, bytes)
			SELECT name, hostname, timestamp, blocks, bytes FROM impdb.files
		`)
		if err != nil {
			return fmt.Errorf("import: copy file history: %w", err)
		}

		return refreshSummaries(tx)
	})
}

// withAttached runs fn inside a transaction with another database file
// attached read-only under alias. SQLite refuses ATTACH inside an open
// transaction, so the attach happens on a pinned connection first and the
// transaction starts on that same connection.
func (p *PrimaryStore) withAttached(path, alias string, fn func(tx *sql.Tx) error) error {
	ctx := context.Background()
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("attach %q: %w", path, err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE ? AS %s", alias), "file:"+path+"?mode=ro"); err != nil {
		return fmt.Errorf("attach %q: %w", path, err)
	}
	defer conn.ExecContext(ctx, fmt.Sprintf("DETACH DATABASE %s", alias))

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("attach %q: begin: %w", path, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// refreshSummaries recomputes m_sums_deduped and m_sums_compressed from
// the current kv table, matching QddaDB::update. The reference
// implementation reads these back out of SQL views (v_sums_deduped,
// v_sums_compressed); this store keeps the same aggregation as inline SQL
// here rather than as persistent views, because the report engine can
// then unit-test the aggregation queries directly against a populated
// table without depending on schema-level view objects.
func refreshSummaries(tx *sql.Tx) error {
	if _, err := tx.Exec("DELETE FROM m_sums_compressed"); err != nil {
		return fmt.Errorf("refresh summaries: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM m_sums_deduped"); err != nil {
		return fmt.Errorf("refresh summaries: %w", err)
	}

	_, err := tx.Exec(`
		INSERT INTO m_sums_deduped
		SELECT blocks AS ref, count(blocks) AS blocks
		FROM kv WHERE hash != 0 GROUP BY 1 ORDER BY ref
	`)
	if err != nil {
		return fmt.Errorf("refresh summaries: deduped: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO m_sums_compressed
		SELECT ((bytes-1)/1024)+1 AS size_kib, count(*) AS blocks
		, sum(blocks) AS totblocks
		, sum(bytes) AS bytes
		, sum(bytes*blocks) AS raw
		FROM kv WHERE hash != 0 AND bytes IS NOT NULL GROUP BY (bytes-1)/1024
	`)
	if err != nil {
		return fmt.Errorf("refresh summaries: compressed: %w", err)
	}
	return nil
}
