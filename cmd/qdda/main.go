// Command qdda scans files, block devices or pipes and reports the
// storage reduction a deduplicating, compressing, bucket-packing array
// would achieve on that data.
//
// Usage text and flag names follow the reference qdda CLI; flag parsing
// itself is out of scope for the core (see spec.md §1), implemented here
// with github.com/spf13/pflag rather than a hand-rolled getopt table.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	qdda "github.com/bsjerps/qdda-go"
	"github.com/bsjerps/qdda-go/internal/cputest"
	"github.com/bsjerps/qdda-go/internal/logging"
	"github.com/bsjerps/qdda-go/internal/store"
)

// Exit codes, matching spec.md §6.
const (
	exitOK          = 0
	exitInterrupted = 1
	exitFatal       = 10
)

func main() {
	os.Exit(run(os.Args[1:]))
}

type flags struct {
	db         string
	appendFlag bool
	del        bool
	bandwidth  int64
	array      string
	compress   string
	detail     bool
	importPath string
	nomerge    bool
	purge      bool
	workers    int
	readers    int
	buffers    int
	interval   int
	quiet      bool
	debug      bool
	queries    bool
	cputest    bool
	findhash   string
	tophash    int
	list       bool
	tmpdir     string
	version    bool
	dryrun     bool
}

func run(args []string) int {
	fs := pflag.NewFlagSet("qdda", pflag.ContinueOnError)
	var f flags
	fs.StringVarP(&f.db, "db", "d", "", "database file path (default $HOME/qdda.db)")
	fs.BoolVarP(&f.appendFlag, "append", "a", false, "append data instead of deleting database")
	fs.BoolVar(&f.del, "delete", false, "delete database")
	fs.Int64VarP(&f.bandwidth, "bandwidth", "b", 200, "throttle bandwidth in MiB/s (0=disable)")
	fs.StringVar(&f.array, "array", "", "set array type or custom definition <x1|x2|vmax1|name=..,bs=..,buckets=..>")
	fs.StringVar(&f.compress, "compress", "none", "compression method for a freshly created database: none|lz4|deflate")
	fs.BoolVarP(&f.detail, "detail", "x", false, "detailed report (file info and dedupe/compression histograms)")
	fs.StringVar(&f.importPath, "import", "", "import another database (must have compatible metadata)")
	fs.BoolVar(&f.nomerge, "nomerge", false, "skip staging data merge and reporting, keep staging database")
	fs.BoolVar(&f.purge, "purge", false, "reclaim unused space in database (sqlite vacuum)")
	fs.IntVar(&f.workers, "workers", 0, "number of worker threads")
	fs.IntVar(&f.readers, "readers", 0, "(max) number of reader threads")
	fs.IntVar(&f.buffers, "buffers", 0, "number of ring buffers")
	fs.IntVar(&f.interval, "interval", 0, "compress only 1/interval of non-zero blocks")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "don't show progress indicator or intermediate results")
	fs.BoolVar(&f.debug, "debug", false, "enable debug output")
	fs.BoolVar(&f.queries, "queries", false, "show SQL queries and results")
	fs.BoolVar(&f.cputest, "cputest", false, "single thread CPU performance test")
	fs.StringVar(&f.findhash, "findhash", "", "find blocks with hash=<hash> in staging db")
	fs.IntVar(&f.tophash, "tophash", 0, "show top <num> hashes by refcount")
	fs.BoolVarP(&f.list, "list", "l", false, "list supported array types and custom definition options")
	fs.StringVar(&f.tmpdir, "tmpdir", "", "set $SQLITE_TMPDIR for temporary files")
	fs.BoolVarP(&f.version, "version", "V", false, "show version and copyright info")
	fs.BoolVarP(&f.dryrun, "dryrun", "n", false, "skip staging db updates during scan")

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, "qdda:", err)
		return exitFatal
	}

	if f.version {
		fmt.Println("qdda-go (Go reimplementation)")
		return exitOK
	}
	if f.list {
		printArrayList()
		return exitOK
	}
	if f.tmpdir != "" {
		os.Setenv("SQLITE_TMPDIR", f.tmpdir)
		os.Setenv("TMPDIR", f.tmpdir)
	}

	log := buildLogger(f)

	if f.del {
		if err := qdda.Delete(f.db); err != nil {
			return fatal(f, err)
		}
		return exitOK
	}

	if f.cputest {
		return runCPUTest(f)
	}

	if f.findhash != "" {
		return runFindHash(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	compressMethod, err := qdda.MethodFromString(f.compress)
	if err != nil {
		return fatal(f, err)
	}

	positional := fs.Args()

	// Only a scan invocation recreates an existing store; purge, import,
	// tophash and a plain report run against the accumulated index.
	willScan := (len(positional) > 0 || !isTerminalStdin()) &&
		!f.purge && f.importPath == "" && f.tophash == 0

	primary, err := qdda.Open(qdda.Options{
		Path:     f.db,
		Recreate: willScan,
		Append:   f.appendFlag,
		Array:    f.array,
		Compress: compressMethod,
		Log:      log,
	})
	if err != nil {
		return fatal(f, err)
	}
	defer primary.Close()

	switch {
	case f.purge:
		if err := qdda.Purge(primary); err != nil {
			return fatal(f, err)
		}
		return exitOK

	case f.importPath != "":
		if err := qdda.Import(primary, f.importPath); err != nil {
			return fatal(f, err)
		}
		return exitOK

	case f.tophash > 0:
		return runTopHash(f, primary, f.tophash)
	}

	if f.bandwidth <= 0 {
		f.bandwidth = -1 // explicit 0 disables throttling entirely
	}

	if willScan {
		summary, err := qdda.Scan(ctx, primary, positional, qdda.ScanOptions{
			BandwidthMiBps: f.bandwidth,
			Workers:        f.workers,
			Readers:        f.readers,
			Buffers:        f.buffers,
			Interval:       f.interval,
			DryRun:         f.dryrun,
			Quiet:          f.quiet,
			NoMerge:        f.nomerge,
			Log:            log,
			Progress:       progressPrinter(f.quiet),
		})
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(os.Stderr, "qdda: interrupted")
				return exitInterrupted
			}
			return fatal(f, err)
		}
		if summary == nil {
			return exitOK // --nomerge: staging retained, no report
		}
		printReport(f, primary, summary)
		return exitOK
	}

	summary, err := qdda.Report(primary)
	if err != nil {
		return fatal(f, err)
	}
	printReport(f, primary, summary)
	return exitOK
}

func printReport(f flags, primary *qdda.PrimaryStore, summary *qdda.Summary) {
	if f.detail {
		detail, err := qdda.DetailReport(primary)
		if err != nil {
			fmt.Fprintln(os.Stderr, "qdda:", err)
			return
		}
		fmt.Print(detail.DetailString())
		return
	}
	fmt.Print(summary.String())
}

func buildLogger(f flags) qdda.Logger {
	if f.quiet {
		return logging.Discard
	}
	level := logging.LevelWarn
	if f.debug || f.queries {
		level = logging.LevelDebug
	}
	return logging.NewDefaultLogger(level)
}

func fatal(f flags, err error) int {
	if f.debug {
		fmt.Fprintf(os.Stderr, "qdda: %+v\n", err)
	} else {
		fmt.Fprintln(os.Stderr, "qdda:", err)
	}
	return exitFatal
}

func isTerminalStdin() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func progressPrinter(quiet bool) func(blocks, bytes int64) {
	if quiet {
		return nil
	}
	return func(blocks, bytes int64) {
		fmt.Fprintf(os.Stderr, "\r%15d blocks, %10.2f MiB", blocks, float64(bytes)/1048576.0)
	}
}

func printArrayList() {
	fmt.Println("Supported array types:")
	for _, name := range qdda.ArrayNames() {
		fmt.Println("  --array", name)
	}
	fmt.Println("  --array name=<name>,bs=<blocksize>,buckets=<bucketlist>")
	fmt.Println("  example: --array name=foo,bs=32,buckets=8+16+24+32")
}

func runCPUTest(f flags) int {
	path := qdda.StagingPath(qdda.DefaultPath()) + ".cputest"
	blockSizeKiB := int64(8)
	if f.array != "" {
		if preset, err := qdda.ParseArray(f.array); err == nil {
			blockSizeKiB = preset.BlocksizeKiB
		}
	}
	rpt, err := cputest.Run(path, blockSizeKiB)
	if err != nil {
		return fatal(f, err)
	}
	fmt.Print(rpt.String())
	return exitOK
}

func runFindHash(f flags) int {
	hash, err := strconv.ParseUint(strings.TrimPrefix(f.findhash, "0x"), 16, 64)
	if err != nil {
		return fatal(f, fmt.Errorf("qdda: invalid hash %q: %w", f.findhash, err))
	}
	stagingPath := qdda.StagingPath(qdda.ResolvePath(f.db))
	staging, err := store.OpenStaging(stagingPath)
	if err != nil {
		return fatal(f, err)
	}
	defer staging.Close()

	rows, err := staging.FindHash(hash)
	if err != nil {
		return fatal(f, err)
	}
	for _, r := range rows {
		fmt.Printf("%20d %20s %10d\n", r.BlockIndex, r.HexHash, r.ByteOffset)
	}
	return exitOK
}

func runTopHash(f flags, primary *qdda.PrimaryStore, n int) int {
	rows, err := primary.TopHash(n)
	if err != nil {
		return fatal(f, err)
	}
	for _, r := range rows {
		fmt.Printf("%20s %10d\n", r.HexHash, r.Blocks)
	}
	return exitOK
}
