package report

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bsjerps/qdda-go/internal/store"
)

// FileInfo is one row of the file history histogram, matching v_files.
type FileInfo struct {
	ID      int64
	BlkSize int64
	Blocks  int64
	MiB     float64
	Date    string
	URL     string
}

// DedupeRow is one row of the dedupe histogram, matching v_deduped: dup==0
// is the free-block row, dup>0 groups blocks referenced that many times.
type DedupeRow struct {
	Dup    int64
	Blocks int64
	Perc   float64
	MiB    float64
}

// CompressedRow is one row of the compression histogram, matching
// v_compressed.
type CompressedRow struct {
	SizeKiB int64
	Buckets int64
	RawMiB  float64
	Perc    float64
	Blocks  int64
	MiB     float64
}

// Detail holds the extended, --detail-only report content.
type Detail struct {
	Files      []FileInfo
	Dedupe     []DedupeRow
	Compressed []CompressedRow
	ArrayID    string
}

// GenerateDetail builds the extended report content, matching
// reportDetail()'s three queries (v_files, v_deduped, v_compressed), run
// here as plain SQL against the underlying tables instead of stored
// views.
func GenerateDetail(p *store.PrimaryStore) (*Detail, error) {
	db := p.DB()
	d := &Detail{}

	arrayID, err := p.ArrayID()
	if err != nil {
		return nil, fmt.Errorf("report detail: %w", err)
	}
	d.ArrayID = arrayID

	blksz, err := p.Blocksize()
	if err != nil {
		return nil, fmt.Errorf("report detail: %w", err)
	}

	if d.Files, err = queryFiles(db); err != nil {
		return nil, err
	}
	if d.Dedupe, err = queryDedupe(db, blksz); err != nil {
		return nil, err
	}
	if d.Compressed, err = queryCompressed(db, blksz); err != nil {
		return nil, err
	}
	return d, nil
}

func queryFiles(db *sql.DB) ([]FileInfo, error) {
	rows, err := db.Query("SELECT id, blocks, bytes, timestamp, hostname, name FROM files")
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var out []FileInfo
	for rows.Next() {
		var id, blocks, bytes, ts int64
		var hostname, name string
		if err := rows.Scan(&id, &blocks, &bytes, &ts, &hostname, &name); err != nil {
			return nil, fmt.Errorf("query files: %w", err)
		}
		var blksz int64
		if blocks != 0 {
			blksz = bytes / blocks
		}
		out = append(out, FileInfo{
			ID:      id,
			BlkSize: blksz,
			Blocks:  blocks,
			MiB:     float64(bytes) / 1048576.0,
			Date:    time.Unix(ts, 0).UTC().Format("20060102_1504"),
			URL:     hostname + ":" + name,
		})
	}
	return out, rows.Err()
}

func queryDedupe(db *sql.DB, blksz int64) ([]DedupeRow, error) {
	blkbytes := float64(blksz) * 1024
	var totalBlocks sql.NullInt64
	if err := db.QueryRow("SELECT sum(blocks) FROM kv").Scan(&totalBlocks); err != nil {
		return nil, fmt.Errorf("query dedupe: %w", err)
	}
	sum := totalBlocks.Int64

	var out []DedupeRow

	var zeroBlocks sql.NullInt64
	if err := db.QueryRow("SELECT blocks FROM kv WHERE hash=0").Scan(&zeroBlocks); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query dedupe zero row: %w", err)
	}
	if zeroBlocks.Int64 > 0 {
		out = append(out, DedupeRow{
			Dup:    0,
			Blocks: zeroBlocks.Int64,
			Perc:   100.0 * safeDivFloat(float64(zeroBlocks.Int64), float64(sum)),
			MiB:    blkbytes * float64(zeroBlocks.Int64) / 1048576.0,
		})
	}

	rows, err := db.Query("SELECT ref, blocks FROM m_sums_deduped")
	if err != nil {
		return nil, fmt.Errorf("query dedupe: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref, blocks int64
		if err := rows.Scan(&ref, &blocks); err != nil {
			return nil, fmt.Errorf("query dedupe: %w", err)
		}
		total := blocks * ref
		out = append(out, DedupeRow{
			Dup:    ref,
			Blocks: total,
			Perc:   100.0 * safeDivFloat(float64(total), float64(sum)),
			MiB:    blkbytes * float64(total) / 1048576.0,
		})
	}
	return out, rows.Err()
}

func queryCompressed(db *sql.DB, blksz int64) ([]CompressedRow, error) {
	rows, err := bucketCompressed(db)
	if err != nil {
		return nil, fmt.Errorf("query compressed: %w", err)
	}

	var total int64
	for _, r := range rows {
		total += r.blocks
	}

	out := make([]CompressedRow, 0, len(rows))
	for _, r := range rows {
		perc := 100.0 * safeDivFloat(float64(r.blocks), float64(total))
		out = append(out, CompressedRow{
			SizeKiB: r.size,
			Buckets: r.buckets,
			RawMiB:  float64(r.buckets) * float64(r.blksz) / 1024.0,
			Perc:    perc,
			Blocks:  r.blocks,
			MiB:     float64(r.blocks) * float64(blksz) / 1024.0,
		})
	}
	return out, nil
}

// DetailString renders the extended report, matching reportDetail()'s
// three histogram sections.
func (d *Detail) DetailString() string {
	var b strings.Builder

	b.WriteString("File list:\n")
	for _, f := range d.Files {
		fmt.Fprintf(&b, "%8d%6d%10d%11.2f %18s %s\n", f.ID, f.BlkSize, f.Blocks, f.MiB, f.Date, f.URL)
	}

	var tm, tp float64
	var tblocks int64
	b.WriteString("\nDedupe histogram:\n")
	for _, r := range d.Dedupe {
		fmt.Fprintf(&b, "%8d%12d%12.2f%12.2f\n", r.Dup, r.Blocks, r.Perc, r.MiB)
		tblocks += r.Blocks
		tp += r.Perc
		tm += r.MiB
	}
	fmt.Fprintf(&b, "%8s%12d%12.2f%12.2f\n", "Total:", tblocks, tp, tm)

	b.WriteString("\nCompression Histogram (" + d.ArrayID + "):\n")
	var cBuckets, cBlocks int64
	var cRaw, cPerc, cMiB float64
	for _, r := range d.Compressed {
		fmt.Fprintf(&b, "%8d%12d%12.2f%12.2f%12.2f%-20s\n", r.SizeKiB, r.Buckets, r.RawMiB, r.Perc, float64(r.Blocks), fmt.Sprintf("%.2f MiB", r.MiB))
		cBuckets += r.Buckets
		cBlocks += r.Blocks
		cRaw += r.RawMiB
		cPerc += r.Perc
		cMiB += r.MiB
	}
	fmt.Fprintf(&b, "%8s%12d%12.2f%12.2f%12d%-20s\n", "Total:", cBuckets, cRaw, cPerc, cBlocks, fmt.Sprintf("%.2f MiB", cMiB))
	return b.String()
}
