package qdda

import (
	"context"
	"path/filepath"
	"testing"
)

func TestResolvePathDefaultsWhenEmpty(t *testing.T) {
	got := ResolvePath("")
	if got != DefaultPath() {
		t.Errorf("ResolvePath(\"\") = %q, want %q", got, DefaultPath())
	}
}

func TestResolvePathAddsDbSuffix(t *testing.T) {
	got := ResolvePath("/tmp/foo")
	if got != "/tmp/foo.db" {
		t.Errorf("ResolvePath(\"/tmp/foo\") = %q, want /tmp/foo.db", got)
	}
}

func TestResolvePathLeavesDbSuffix(t *testing.T) {
	got := ResolvePath("/tmp/foo.db")
	if got != "/tmp/foo.db" {
		t.Errorf("ResolvePath(\"/tmp/foo.db\") = %q, want /tmp/foo.db", got)
	}
}

func TestStagingPathDerivation(t *testing.T) {
	got := StagingPath("/tmp/foo.db")
	want := "/tmp/foo-staging.db"
	if got != want {
		t.Errorf("StagingPath = %q, want %q", got, want)
	}
}

func TestDefaultReadersClampsToSourceCount(t *testing.T) {
	if got := defaultReaders(3); got != 3 {
		t.Errorf("defaultReaders(3) = %d, want 3", got)
	}
	if got := defaultReaders(0); got != 1 {
		t.Errorf("defaultReaders(0) = %d, want 1", got)
	}
	if got := defaultReaders(maxReaderThreads + 10); got != maxReaderThreads {
		t.Errorf("defaultReaders(overflow) = %d, want %d", got, maxReaderThreads)
	}
}

func TestDefaultWorkersIsAtLeastOne(t *testing.T) {
	if got := defaultWorkers(); got < 1 {
		t.Errorf("defaultWorkers() = %d, want >= 1", got)
	}
}

func TestScanOptionsWithDefaults(t *testing.T) {
	o := ScanOptions{}.withDefaults(4)
	if o.Workers < 1 {
		t.Errorf("Workers = %d, want >= 1", o.Workers)
	}
	if o.Readers != 4 {
		t.Errorf("Readers = %d, want 4", o.Readers)
	}
	if o.Interval != 1 {
		t.Errorf("Interval = %d, want 1", o.Interval)
	}
	if o.BandwidthMiBps != defaultBandwidthMiBps {
		t.Errorf("BandwidthMiBps = %d, want %d", o.BandwidthMiBps, defaultBandwidthMiBps)
	}
}

func TestScanOptionsWithDefaultsPreservesExplicitValues(t *testing.T) {
	o := ScanOptions{Workers: 2, Readers: 1, Interval: 5, BandwidthMiBps: 50}.withDefaults(4)
	if o.Workers != 2 || o.Readers != 1 || o.Interval != 5 || o.BandwidthMiBps != 50 {
		t.Errorf("withDefaults overrode explicit values: %+v", o)
	}
}

func TestMethodFromString(t *testing.T) {
	m, err := MethodFromString("")
	if err != nil {
		t.Fatalf("MethodFromString(\"\"): %v", err)
	}
	if m != MethodNone {
		t.Errorf("MethodFromString(\"\") = %v, want MethodNone", m)
	}

	m, err = MethodFromString("lz4")
	if err != nil {
		t.Fatalf("MethodFromString(\"lz4\"): %v", err)
	}
	if m != MethodLZ4 {
		t.Errorf("MethodFromString(\"lz4\") = %v, want MethodLZ4", m)
	}

	if _, err := MethodFromString("bogus"); err == nil {
		t.Fatal("MethodFromString(\"bogus\") should fail")
	}
}

func TestOpenCreatesAndReopens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "primary.db")

	p, err := Open(Options{Path: path, Array: "x1", Compress: MethodNone})
	if err != nil {
		t.Fatalf("Open (create): %v", err)
	}
	blksz, err := p.Blocksize()
	if err != nil {
		t.Fatalf("Blocksize: %v", err)
	}
	if blksz != 8 {
		t.Errorf("Blocksize = %d, want 8 (x1 preset)", blksz)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := Open(Options{Path: path, Append: true})
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	defer p2.Close()
	arr, err := p2.ArrayID()
	if err != nil {
		t.Fatalf("ArrayID: %v", err)
	}
	if arr != "x1" {
		t.Errorf("ArrayID = %q, want x1", arr)
	}
}

func TestOpenPreservesExistingStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "primary.db")

	p, err := Open(Options{Path: path, Array: "x1"})
	if err != nil {
		t.Fatalf("Open (create): %v", err)
	}
	p.Close()

	// Without Recreate (import, purge, diagnostics, plain report) the
	// existing store is opened as-is; the array flag is ignored.
	p2, err := Open(Options{Path: path, Array: "vmax1"})
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	defer p2.Close()
	arr, err := p2.ArrayID()
	if err != nil {
		t.Fatalf("ArrayID: %v", err)
	}
	if arr != "x1" {
		t.Errorf("ArrayID = %q, want x1 (store must not be recreated without Recreate)", arr)
	}
}

func TestOpenRecreateReplacesStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "primary.db")

	p, err := Open(Options{Path: path, Array: "x1"})
	if err != nil {
		t.Fatalf("Open (create): %v", err)
	}
	p.Close()

	// A scan invocation without --append deletes and recreates, applying
	// the new array layout.
	p2, err := Open(Options{Path: path, Recreate: true, Array: "vmax1"})
	if err != nil {
		t.Fatalf("Open (recreate): %v", err)
	}
	defer p2.Close()
	arr, err := p2.ArrayID()
	if err != nil {
		t.Fatalf("ArrayID: %v", err)
	}
	if arr != "vmax1" {
		t.Errorf("ArrayID = %q, want vmax1 (store should have been recreated)", arr)
	}
}

func TestOpenRecreateWithAppendKeepsStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "primary.db")

	p, err := Open(Options{Path: path, Array: "x1"})
	if err != nil {
		t.Fatalf("Open (create): %v", err)
	}
	p.Close()

	p2, err := Open(Options{Path: path, Recreate: true, Append: true, Array: "vmax1"})
	if err != nil {
		t.Fatalf("Open (append): %v", err)
	}
	defer p2.Close()
	arr, err := p2.ArrayID()
	if err != nil {
		t.Fatalf("ArrayID: %v", err)
	}
	if arr != "x1" {
		t.Errorf("ArrayID = %q, want x1 (--append overrides recreation)", arr)
	}
}

func TestDeleteRemovesStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "primary.db")

	p, err := Open(Options{Path: path, Array: "x1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p.Close()

	if err := Delete(path); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := Open(Options{Path: path, Append: true}); err == nil {
		t.Fatal("Open(Append) on a deleted store should fail")
	}
}

func TestScanWithNoSourcesFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "primary.db")

	p, err := Open(Options{Path: path, Array: "x1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	_, err = Scan(context.Background(), p, nil, ScanOptions{Quiet: true})
	if err == nil {
		t.Fatal("Scan with no sources and no stdin redirect should fail")
	}
}
