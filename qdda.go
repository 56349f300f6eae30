package qdda

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bsjerps/qdda-go/internal/block"
	"github.com/bsjerps/qdda-go/internal/logging"
	"github.com/bsjerps/qdda-go/internal/pipeline"
	"github.com/bsjerps/qdda-go/internal/report"
	"github.com/bsjerps/qdda-go/internal/store"
)

// DefaultPath returns $HOME/qdda.db, matching ParseFileName's default
// when --db is not given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, "qdda.db")
}

// StagingPath derives the staging store's path from a primary store
// path, matching genStagingName's "<name minus .db>-staging.db" rule.
func StagingPath(primaryPath string) string {
	base := strings.TrimSuffix(primaryPath, ".db")
	return base + "-staging.db"
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

func defaultReaders(sourceCount int) int {
	if sourceCount < 1 {
		sourceCount = 1
	}
	if sourceCount > maxReaderThreads {
		return maxReaderThreads
	}
	return sourceCount
}

// ResolvePath applies the same default-path and ".db" suffix rules the
// CLI's --db flag follows, matching ParseFileName.
func ResolvePath(path string) string {
	if path == "" {
		return DefaultPath()
	}
	if !strings.HasSuffix(path, ".db") {
		path += ".db"
	}
	return path
}

// Open opens or creates the primary store named by opts.Path, applying
// opts.Recreate/opts.Append/opts.Array/opts.Compress the way qdda.cpp's
// main() does: an existing store is opened as-is, unless Recreate is set
// (a scan invocation without --append) in which case it is deleted and
// created fresh. Import, purge, diagnostics and a plain report never set
// Recreate, so they operate on the accumulated index. The array layout
// is only applied to a freshly created store.
func Open(opts Options) (*store.PrimaryStore, error) {
	path := ResolvePath(opts.Path)
	log := logging.OrDefault(opts.Log)

	if _, err := os.Stat(path); err == nil {
		if !opts.Recreate || opts.Append {
			return store.OpenPrimary(path)
		}
		log.Infof(logging.NSStore + "creating new database " + path)
		if deleteErr := store.DeletePrimary(path); deleteErr != nil {
			return nil, fmt.Errorf("qdda: delete existing store: %w", deleteErr)
		}
	} else if opts.Append {
		return nil, fmt.Errorf("qdda: cannot append to %q: %w", path, err)
	}

	preset, err := ParseArray(opts.Array)
	if err != nil {
		return nil, err
	}
	return store.CreatePrimary(path, preset, opts.Compress.String())
}

// Delete removes a primary store by path, matching --delete: it only
// removes a file whose header carries the SQLite magic string.
func Delete(path string) error {
	path = ResolvePath(path)
	if err := store.DeletePrimary(path); err != nil {
		return fmt.Errorf("qdda: %w", err)
	}
	return nil
}

// Scan runs one full scan session against an already-open primary store:
// build the source list, run the reader/worker/updater pipeline into a
// fresh staging store, then merge it in and emit a report — unless
// opts.NoMerge is set, in which case the staging store is retained and no
// report is produced, matching `parameters.skip`.
//
// Matches analyze()'s setup plus qdda.cpp main()'s post-scan merge/report
// sequence (build file list -> create fresh staging -> pipeline -> merge
// -> report).
func Scan(ctx context.Context, p *store.PrimaryStore, args []string, sopts ScanOptions) (*report.Summary, error) {
	sources, err := parseSources(args)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	blksz, err := p.Blocksize()
	if err != nil {
		return nil, err
	}
	methodName, err := p.Method()
	if err != nil {
		return nil, err
	}
	method, err := MethodFromString(methodName)
	if err != nil {
		return nil, err
	}

	sopts = sopts.withDefaults(len(sources))
	log := logging.OrDefault(sopts.Log)
	if sopts.Quiet {
		log = logging.Discard
	}

	if err := p.SetInterval(int64(sopts.Interval)); err != nil {
		return nil, err
	}

	result, err := pipeline.Scan(ctx, pipeline.Options{
		Sources:        sources,
		BlockSizeKiB:   blksz,
		Method:         method,
		Interval:       sopts.Interval,
		Readers:        sopts.Readers,
		Workers:        sopts.Workers,
		Buffers:        sopts.Buffers,
		BandwidthMiBps: sopts.BandwidthMiBps,
		DryRun:         sopts.DryRun,
		Quiet:          sopts.Quiet,
		StagingPath:    StagingPath(p.Path()),
		Progress:       sopts.Progress,
		Log:            log,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrAborted, err)
		}
		return nil, err
	}

	if sopts.NoMerge {
		result.Staging.Close() // retained on disk for --findhash / a later merge
		return nil, nil
	}
	defer result.Staging.Close()

	if err := p.Merge(result.Staging); err != nil {
		return nil, err
	}
	if err := result.Staging.Delete(); err != nil {
		return nil, err
	}

	return report.Generate(p)
}

// Import folds another primary store's data into p, matching --import.
func Import(p *store.PrimaryStore, peerPath string) error {
	return p.Import(peerPath)
}

// Purge reclaims unused space in the primary store, matching --purge.
func Purge(p *store.PrimaryStore) error {
	return p.Vacuum()
}

// Report generates the standard reduction report for an already-merged
// primary store.
func Report(p *store.PrimaryStore) (*report.Summary, error) {
	return report.Generate(p)
}

// DetailReport generates the extended histogram report, matching --detail.
func DetailReport(p *store.PrimaryStore) (*report.Detail, error) {
	return report.GenerateDetail(p)
}

// MethodFromString parses a compression method name as stored in
// metadata.compression.
func MethodFromString(name string) (Method, error) {
	if name == "" {
		return MethodNone, nil
	}
	return block.ParseMethod(name)
}

// parseSources parses every CLI stream argument plus, when stdin is not a
// terminal, a prepended /dev/stdin source, matching main()'s filelist
// construction.
func parseSources(args []string) ([]*pipeline.Source, error) {
	out := make([]*pipeline.Source, 0, len(args)+1)
	if stdinHasData() {
		src, err := pipeline.ParseSource("/dev/stdin")
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	for _, a := range args {
		src, err := pipeline.ParseSource(a)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func stdinHasData() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) == 0
}
