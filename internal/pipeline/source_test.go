package pipeline

import (
	"bytes"
	"io"
	"testing"
)

func TestParseSourcePlainFile(t *testing.T) {
	src, err := ParseSource("/var/tmp/disk1.img")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if src.Synthetic != "" {
		t.Errorf("Synthetic = %q, want empty", src.Synthetic)
	}
	if src.Path != "/var/tmp/disk1.img" {
		t.Errorf("Path = %q", src.Path)
	}
	if src.LimitMiB != 0 {
		t.Errorf("LimitMiB = %d, want 0", src.LimitMiB)
	}
}

func TestParseSourceSyntheticNames(t *testing.T) {
	for _, name := range []string{"zero", "random", "compress"} {
		src, err := ParseSource(name)
		if err != nil {
			t.Fatalf("ParseSource(%q): %v", name, err)
		}
		if src.Synthetic != name {
			t.Errorf("ParseSource(%q).Synthetic = %q, want %q", name, src.Synthetic, name)
		}
		if src.LimitMiB != defaultSyntheticLimitMiB {
			t.Errorf("ParseSource(%q).LimitMiB = %d, want %d", name, src.LimitMiB, defaultSyntheticLimitMiB)
		}
	}
}

func TestParseSourceLimitAndRepeat(t *testing.T) {
	src, err := ParseSource("zero:100,5")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if src.LimitMiB != 100 {
		t.Errorf("LimitMiB = %d, want 100 (explicit limit overrides synthetic default)", src.LimitMiB)
	}
	if src.Repeat != 5 {
		t.Errorf("Repeat = %d, want 5", src.Repeat)
	}
	if src.repeatCount() != 5 {
		t.Errorf("repeatCount() = %d, want 5", src.repeatCount())
	}
}

func TestParseSourceDefaultRepeatIsOne(t *testing.T) {
	src, err := ParseSource("/dev/sda")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if got := src.repeatCount(); got != 1 {
		t.Errorf("repeatCount() = %d, want 1", got)
	}
}

func TestParseSourceInvalidLimit(t *testing.T) {
	if _, err := ParseSource("disk.img:notanumber"); err == nil {
		t.Error("ParseSource with a non-numeric limit should fail")
	}
}

func TestZeroSourceReadsZeroes(t *testing.T) {
	src, err := ParseSource("zero")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Read returned %d bytes, want %d", n, len(buf))
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %d, want 0", i, b)
		}
	}
}

func TestRandomSourceIsDeterministicButNonZero(t *testing.T) {
	src, err := ParseSource("random")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	buf := make([]byte, 256)
	if _, err := src.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Error("random source produced an all-zero buffer")
	}
}

func TestShapeCompressRatioZeroesSomeBytes(t *testing.T) {
	buf := make([]byte, 4*1024)
	for i := range buf {
		buf[i] = 0xAB
	}
	shapeCompressRatio(buf, 1024, 42)

	zeroCount := 0
	for _, b := range buf {
		if b == 0 {
			zeroCount++
		}
	}
	if zeroCount == 0 {
		t.Error("shapeCompressRatio left no zeroed bytes")
	}
	if zeroCount == len(buf) {
		t.Error("shapeCompressRatio zeroed the entire buffer")
	}
}

func TestSourceLimitReturnsEOF(t *testing.T) {
	src, err := ParseSource("random:1") // 1 MiB
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	buf := make([]byte, 64*1024)
	var total int
	for i := 0; i < 100; i++ {
		n, err := src.Read(buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if total != 1024*1024 {
		t.Errorf("read %d bytes before EOF, want exactly 1 MiB", total)
	}
	if _, err := src.Read(buf); err != io.EOF {
		t.Errorf("Read past limit = %v, want io.EOF", err)
	}
}

func TestRandomSourceDoesNotRepeatAcrossReads(t *testing.T) {
	src, err := ParseSource("random")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	a := make([]byte, 4096)
	b := make([]byte, 4096)
	if _, err := src.Read(a); err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if _, err := src.Read(b); err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("consecutive reads returned identical data; generator state did not advance")
	}
}

func TestTwoRandomSourcesProduceTheSameStream(t *testing.T) {
	s1, _ := ParseSource("random:1")
	s2, _ := ParseSource("random:1")
	a := make([]byte, 4096)
	b := make([]byte, 4096)
	if _, err := s1.Read(a); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := s2.Read(b); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("fresh sources diverged; repeated scans would not accumulate linearly")
	}
}
