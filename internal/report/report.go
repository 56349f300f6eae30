package report

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/bsjerps/qdda-go/internal/store"
)

// Summary holds every intermediate value output.cpp's report() computes,
// one field per named variable in the reference function.
type Summary struct {
	DatabaseFile    string
	DatabaseSizeMiB float64
	ArrayID         string
	Method          string
	BlockSizeKiB    int64
	SamplePercent   float64

	BlocksTotal  int64
	BlocksFree   int64
	BlocksUsed   int64
	BlocksDedup  int64
	BlocksUnique int64
	BlocksNuniq  int64
	BlocksMerged int64

	RatioRaw   float64
	RatioNet   float64
	RatioCompr float64

	BlocksRaw   int64
	BlocksNet   int64
	BlocksAlloc int64

	PercUsed   float64
	PercFree   float64
	RatioDedup float64
	RatioThin  float64
	RatioTotal float64
}

// Generate builds a Summary from a primary store's current tables,
// matching output.cpp's report(): every named SQL query in that function
// becomes one query here against the same tables.
func Generate(p *store.PrimaryStore) (*Summary, error) {
	db := p.DB()
	s := &Summary{DatabaseFile: p.Path()}

	blksz, err := p.Blocksize()
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	s.BlockSizeKiB = blksz

	if s.ArrayID, err = p.ArrayID(); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	if s.Method, err = p.Method(); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	if fi, statErr := os.Stat(p.Path()); statErr == nil {
		s.DatabaseSizeMiB = float64(fi.Size()) / 1048576.0
	}

	s.BlocksTotal = queryInt64(db, "SELECT coalesce(sum(blocks),0) FROM kv")
	s.BlocksFree = queryInt64(db, "SELECT coalesce(blocks,0) FROM kv WHERE hash=0")
	s.BlocksUsed = queryInt64(db, "SELECT coalesce(sum(ref*blocks),0) FROM m_sums_deduped")
	s.BlocksDedup = queryInt64(db, "SELECT coalesce(sum(blocks),0) FROM m_sums_deduped")
	s.BlocksUnique = queryInt64(db, "SELECT coalesce(blocks,0) FROM m_sums_deduped WHERE ref=1")
	s.BlocksNuniq = queryInt64(db, "SELECT coalesce(sum(ref*blocks),0) FROM m_sums_deduped WHERE ref>1")
	s.BlocksMerged = s.BlocksUsed - s.BlocksDedup

	s.SamplePercent = queryFloat64(db,
		"SELECT 100.0*(SELECT coalesce(sum(blocks),0) FROM m_sums_compressed)/"+
			"(SELECT sum(blocks) FROM m_sums_deduped)")

	s.RatioRaw = queryFloat64(db,
		"WITH data(blksz) AS (SELECT blksz*1024 FROM metadata) "+
			"SELECT 1.0*(SELECT sum(totblocks*blksz) FROM m_sums_compressed,data)/"+
			"(SELECT sum(raw) FROM m_sums_compressed)")
	s.RatioNet = queryFloat64(db,
		"WITH data(blksz) AS (SELECT blksz*1024 FROM metadata) "+
			"SELECT 1.0*(SELECT sum(blocks*blksz) FROM m_sums_compressed,data)/"+
			"(SELECT sum(bytes) FROM m_sums_compressed)")

	bc, err := bucketCompressed(db)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	var totBuckets, totBlocks int64
	for _, row := range bc {
		totBuckets += row.buckets
		totBlocks += row.blocks
	}
	// dedup / allocated: how many deduped blocks fit per bucket slot.
	s.RatioCompr = safeDivFloat(float64(totBlocks), float64(totBuckets))

	s.BlocksRaw = int64(safeDivFloat(float64(s.BlocksUsed), s.RatioRaw))
	s.BlocksNet = int64(safeDivFloat(float64(s.BlocksDedup), s.RatioNet))
	s.BlocksAlloc = int64(safeDivFloat(float64(s.BlocksDedup), s.RatioCompr))

	s.PercUsed = safeDivFloat(float64(s.BlocksUsed), float64(s.BlocksTotal))
	s.PercFree = safeDivFloat(float64(s.BlocksFree), float64(s.BlocksTotal))
	s.RatioDedup = safeDivFloat(float64(s.BlocksUsed), float64(s.BlocksDedup))
	s.RatioThin = safeDivFloat(float64(s.BlocksTotal), float64(s.BlocksUsed))
	s.RatioTotal = s.RatioDedup * s.RatioCompr * s.RatioThin

	return s, nil
}

type bucketRow struct {
	size    int64
	blksz   int64
	blocks  int64
	buckets int64
}

// bucketCompressed computes v_bucket_compressed's join without a stored
// view: for each compressed-size bucket in m_sums_compressed, find the
// smallest configured bucket size that fits it, matching the reference
// query's `(select min(bucksz) from buckets where bucksz >= size)`.
func bucketCompressed(db *sql.DB) ([]bucketRow, error) {
	rows, err := db.Query(`
		WITH data(blksz, total) AS (
		  SELECT (SELECT max(bucksz) FROM buckets), (SELECT sum(blocks) FROM m_sums_compressed)
		)
		SELECT
		  (SELECT min(bucksz) FROM buckets WHERE bucksz >= m_sums_compressed.size_kib) AS size,
		  blksz,
		  total,
		  sum(blocks) AS blocks
		FROM m_sums_compressed, data
		GROUP BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("bucket compressed: %w", err)
	}
	defer rows.Close()

	var out []bucketRow
	for rows.Next() {
		var r bucketRow
		var total int64
		if err := rows.Scan(&r.size, &r.blksz, &total, &r.blocks); err != nil {
			return nil, fmt.Errorf("bucket compressed: %w", err)
		}
		if r.blksz > 0 {
			r.buckets = (r.size*r.blocks + r.blksz - 1) / r.blksz
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryInt64(db *sql.DB, query string) int64 {
	var v sql.NullInt64
	_ = db.QueryRow(query).Scan(&v)
	return v.Int64
}

func queryFloat64(db *sql.DB, query string) float64 {
	var v sql.NullFloat64
	_ = db.QueryRow(query).Scan(&v)
	return v.Float64
}

// String renders the basic report in the same section layout as
// output.cpp's report(): database info, overview, details, summary.
func (s *Summary) String() string {
	var b strings.Builder
	mib := func(blocks int64) float64 { return float64(blocks) * float64(s.BlockSizeKiB) / 1024.0 }

	fmt.Fprintf(&b, "\nDatabase info (%s):\n", s.DatabaseFile)
	fmt.Fprintf(&b, col1fmt, "database size", s.DatabaseSizeMiB, "MiB")
	fmt.Fprintf(&b, "%-19s = %11s\n", "array id", s.ArrayID)
	fmt.Fprintf(&b, col1fmt, "blocksize", float64(s.BlockSizeKiB), "KiB")
	fmt.Fprintf(&b, "%-19s = %11s\n", "compression", s.Method)
	fmt.Fprintf(&b, col1fmt, "sample percentage", s.SamplePercent, "%")

	b.WriteString("\nOverview:\n")
	fmt.Fprintf(&b, blocksfmt, "total", mib(s.BlocksTotal), s.BlocksTotal)
	fmt.Fprintf(&b, blocksfmt, "free (zero)", mib(s.BlocksFree), s.BlocksFree)
	fmt.Fprintf(&b, blocksfmt, "used", mib(s.BlocksUsed), s.BlocksUsed)
	fmt.Fprintf(&b, blocksfmt, "dedupe savings", mib(s.BlocksMerged), s.BlocksMerged)
	fmt.Fprintf(&b, blocksfmt, "deduped", mib(s.BlocksDedup), s.BlocksDedup)
	fmt.Fprintf(&b, "%-19s = %11.2f MiB (%10.2f %%)\n", "compressed", mib(s.BlocksNet), 100-safeDivFloat(100, s.RatioCompr))
	fmt.Fprintf(&b, blocksfmt, "allocated", mib(s.BlocksAlloc), s.BlocksAlloc)

	b.WriteString("\nDetails:\n")
	fmt.Fprintf(&b, blocksfmt, "used", mib(s.BlocksUsed), s.BlocksUsed)
	fmt.Fprintf(&b, blocksfmt, "unique data", mib(s.BlocksUnique), s.BlocksUnique)
	fmt.Fprintf(&b, blocksfmt, "non-unique data", mib(s.BlocksNuniq), s.BlocksNuniq)
	fmt.Fprintf(&b, "%-19s = %11.2f MiB (%10.2f %%)\n", "compressed raw", mib(s.BlocksRaw), 100-safeDivFloat(100, s.RatioRaw))
	fmt.Fprintf(&b, "%-19s = %11.2f MiB (%10.2f %%)\n", "compressed net", mib(s.BlocksNet), 100-safeDivFloat(100, s.RatioNet))

	b.WriteString("\nSummary:\n")
	fmt.Fprintf(&b, col1fmt, "percentage used", 100*s.PercUsed, "%")
	fmt.Fprintf(&b, col1fmt, "percentage free", 100*s.PercFree, "%")
	fmt.Fprintf(&b, "%-19s = %11.2f\n", "deduplication ratio", s.RatioDedup)
	fmt.Fprintf(&b, "%-19s = %11.2f\n", "compression ratio", s.RatioCompr)
	fmt.Fprintf(&b, "%-19s = %11.2f\n", "thin ratio", s.RatioThin)
	fmt.Fprintf(&b, "%-19s = %11.2f\n", "combined", s.RatioTotal)
	fmt.Fprintf(&b, "%-19s = %11.2f MiB\n", "raw capacity", mib(s.BlocksTotal))
	fmt.Fprintf(&b, "%-19s = %11.2f MiB\n", "net capacity", mib(s.BlocksAlloc))
	return b.String()
}

const col1fmt = "%-19s = %11.2f %s\n"
const blocksfmt = "%-19s = %11.2f MiB (%10d blocks)\n"
