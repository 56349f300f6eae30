package qdda

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bsjerps/qdda-go/internal/store"
)

// presetsByName holds the predefined array layouts the --array flag
// accepts by bare name, matching QddaDB::setmetadata's comment block
// (X1/X2/VMAX1 bucket layouts for XtremIO and VMAX All Flash arrays).
var presetsByName = map[string]store.ArrayPreset{
	"x1":    store.ArrayX1,
	"x2":    store.ArrayX2,
	"vmax1": store.ArrayVmax1,
}

// ArrayNames lists the predefined preset names in display order, for
// --list.
func ArrayNames() []string { return []string{"x1", "x2", "vmax1"} }

// ParseArray parses the --array flag: either a predefined preset name
// (x1, x2, vmax1) or a custom definition `name=<s>,bs=<k>,buckets=<k1+k2+...>`,
// matching the CLI syntax documented in spec.md §6 and qdda.cpp's usage
// text ("--array name=foo,bs=32,buckets=8+16+24+32").
func ParseArray(s string) (store.ArrayPreset, error) {
	if s == "" {
		s = "x2" // matches kdefault_array in qdda.cpp
	}
	if preset, ok := presetsByName[s]; ok {
		return preset, nil
	}
	if !strings.Contains(s, "=") {
		return store.ArrayPreset{}, fmt.Errorf("qdda: unknown array %q (want x1, x2, vmax1 or name=...,bs=...,buckets=...)", s)
	}
	return parseCustomArray(s)
}

// parseCustomArray parses the `name=<s>,bs=<k>,buckets=<k1+k2+...>` form.
func parseCustomArray(s string) (store.ArrayPreset, error) {
	var preset store.ArrayPreset
	for _, field := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return store.ArrayPreset{}, fmt.Errorf("qdda: invalid array field %q in %q", field, s)
		}
		switch key {
		case "name":
			preset.Name = val
		case "bs":
			kib, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return store.ArrayPreset{}, fmt.Errorf("qdda: invalid blocksize %q: %w", val, err)
			}
			preset.BlocksizeKiB = kib
		case "buckets":
			buckets, err := parsePlusList(val)
			if err != nil {
				return store.ArrayPreset{}, fmt.Errorf("qdda: invalid bucket list %q: %w", val, err)
			}
			preset.Buckets = buckets
		default:
			return store.ArrayPreset{}, fmt.Errorf("qdda: unknown array field %q in %q", key, s)
		}
	}
	if preset.Name == "" {
		preset.Name = "custom"
	}
	if preset.BlocksizeKiB <= 0 {
		return store.ArrayPreset{}, fmt.Errorf("qdda: custom array %q needs bs=<kib>", s)
	}
	if preset.BlocksizeKiB > 128 {
		return store.ArrayPreset{}, fmt.Errorf("qdda: blocksize too large: %d KiB", preset.BlocksizeKiB)
	}
	if len(preset.Buckets) == 0 {
		return store.ArrayPreset{}, fmt.Errorf("qdda: custom array %q needs buckets=<k1+k2+...>", s)
	}
	return preset, nil
}

// parsePlusList parses a "+"-separated list of bucket sizes, matching the
// usage example "8+16+24+32".
func parsePlusList(s string) ([]int64, error) {
	parts := strings.Split(s, "+")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
