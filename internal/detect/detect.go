// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package detect implements the format dispatcher (spec.md §4.1): given a
// path and a prefix of file bytes, it selects exactly one of the eight
// supported decoders, or reports "unknown". Detection is total — it never
// panics on malformed or truncated input.
package detect

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/speedtrace/logcore/pkg/bytesio"
)

// Format is one of the eight supported decoder tags, or Unknown.
type Format string

const (
	Emerald     Format = "emerald"
	Speeduino   Format = "speeduino"
	AIM         Format = "aim"
	Link        Format = "link"
	Locomotive  Format = "locomotive"
	Haltech     Format = "haltech"
	RomRaider   Format = "romraider"
	ECUMaster   Format = "ecumaster"
	Unknown     Format = "unknown"
)

// PrefixBudget is the number of leading bytes detection requires to be
// available; implementations must not need more (spec.md §6).
const PrefixBudget = 4096

// Detect classifies a file given its path and size (for the Emerald
// multiple-of-24 check) plus a prefix of its bytes (at least PrefixBudget
// bytes if available; shorter prefixes are tolerated). The decision table
// is evaluated in order; the first match wins.
func Detect(path string, size int64, prefix []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))

	if isEmerald(ext, size, prefix) {
		return Emerald
	}
	if ext == ".lg2" {
		return Emerald
	}
	if bytes.HasPrefix(prefix, []byte("MLVLG")) {
		return Speeduino
	}
	if bytes.HasPrefix(prefix, []byte("<hCNF")) {
		return AIM
	}
	if len(prefix) >= 7 && string(prefix[4:7]) == "lf3" {
		return Link
	}
	if isLocomotive(prefix) {
		return Locomotive
	}
	if isHaltech(prefix) {
		return Haltech
	}
	if firstLineHasPrefix(prefix, "Time (msec)") {
		return RomRaider
	}
	if firstLineHasPrefix(prefix, "TIME;") {
		return ECUMaster
	}
	return Unknown
}

func isEmerald(ext string, size int64, prefix []byte) bool {
	if ext != ".lg1" {
		return false
	}
	if size <= 0 || size%24 != 0 {
		return false
	}
	if len(prefix) < 8 {
		return false
	}
	first := bytesio.F64LE(prefix, 0)
	if first < 35000 || first > 55000 {
		return false
	}
	if len(prefix) >= 48 {
		second := bytesio.F64LE(prefix, 24)
		if absF64(second-first) > 1.0 {
			return false
		}
	}
	return true
}

func absF64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func isHaltech(prefix []byte) bool {
	for _, line := range splitLines(prefix) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Contains(trimmed, "%DataLog%") {
			return true
		}
		// Only the first non-empty line is examined.
		return false
	}
	return false
}

func isLocomotive(prefix []byte) bool {
	lines := splitLines(prefix)
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "TimeStamp:") {
		return false
	}
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return strings.HasPrefix(trimmed, "Customer:")
	}
	return false
}

func firstLineHasPrefix(prefix []byte, want string) bool {
	lines := splitLines(prefix)
	if len(lines) == 0 {
		return false
	}
	return strings.HasPrefix(lines[0], want)
}

func splitLines(prefix []byte) []string {
	s := string(prefix)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(s, "\n")
}

// ParseCommaInt parses a trimmed decimal integer, reporting false for an
// empty or malformed field instead of panicking.
func ParseCommaInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
