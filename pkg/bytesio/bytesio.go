// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bytesio provides the low-level, total (never-panicking) byte
// primitives every binary decoder builds on: endian-parametric integer and
// float reads, UTF-16LE and NUL-terminated string reads, and linear
// byte-pattern search. Every reader returns a defined zero value rather
// than failing when the slice is short; bounds discipline is the caller's
// responsibility, established at the framing layer of each decoder.
package bytesio

import (
	"encoding/binary"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// U8 through U64 read unsigned integers at off. Short slices return 0.
func U8(b []byte, off int) uint8 {
	if off < 0 || off+1 > len(b) {
		return 0
	}
	return b[off]
}

func U16LE(b []byte, off int) uint16 {
	if off < 0 || off+2 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint16(b[off:])
}

func U16BE(b []byte, off int) uint16 {
	if off < 0 || off+2 > len(b) {
		return 0
	}
	return binary.BigEndian.Uint16(b[off:])
}

func U32LE(b []byte, off int) uint32 {
	if off < 0 || off+4 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint32(b[off:])
}

func U32BE(b []byte, off int) uint32 {
	if off < 0 || off+4 > len(b) {
		return 0
	}
	return binary.BigEndian.Uint32(b[off:])
}

func U64LE(b []byte, off int) uint64 {
	if off < 0 || off+8 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint64(b[off:])
}

func U64BE(b []byte, off int) uint64 {
	if off < 0 || off+8 > len(b) {
		return 0
	}
	return binary.BigEndian.Uint64(b[off:])
}

// I8 through I64 are the signed counterparts, reusing the unsigned readers.
func I8(b []byte, off int) int8   { return int8(U8(b, off)) }
func I16LE(b []byte, off int) int16 { return int16(U16LE(b, off)) }
func I16BE(b []byte, off int) int16 { return int16(U16BE(b, off)) }
func I32LE(b []byte, off int) int32 { return int32(U32LE(b, off)) }
func I32BE(b []byte, off int) int32 { return int32(U32BE(b, off)) }
func I64LE(b []byte, off int) int64 { return int64(U64LE(b, off)) }
func I64BE(b []byte, off int) int64 { return int64(U64BE(b, off)) }

// F32LE/F32BE and F64LE/F64BE read IEEE-754 floats at arbitrary offsets.
func F32LE(b []byte, off int) float32 { return math.Float32frombits(U32LE(b, off)) }
func F32BE(b []byte, off int) float32 { return math.Float32frombits(U32BE(b, off)) }
func F64LE(b []byte, off int) float64 { return math.Float64frombits(U64LE(b, off)) }
func F64BE(b []byte, off int) float64 { return math.Float64frombits(U64BE(b, off)) }

var utf16leDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// ReadUTF16LE decodes a UTF-16LE string of at most maxChars characters
// (maxChars*2 bytes) starting at off, stopping at the first NUL or first
// non-printable high byte, whichever comes first. Short/out-of-range
// offsets return the empty string.
func ReadUTF16LE(b []byte, off, maxChars int) string {
	if off < 0 || off >= len(b) || maxChars <= 0 {
		return ""
	}
	end := off + maxChars*2
	if end > len(b) {
		end = len(b) - (len(b)-off)%2
	}
	raw := b[off:end]

	// Stop at the first NUL code unit.
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			raw = raw[:i]
			break
		}
	}

	decoded, err := utf16leDecoder.Bytes(raw)
	if err != nil {
		return ""
	}
	s := string(decoded)

	// Truncate at the first non-printable "high byte" rune, matching the
	// original decoder's defensive behaviour toward garbage trailing data.
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == 0 {
			break
		}
		if r > 0xFF && !isPrintableHigh(r) {
			break
		}
		out = append(out, r)
		if len(out) >= maxChars {
			break
		}
	}
	return string(out)
}

func isPrintableHigh(r rune) bool {
	return r >= 0x20 && r < 0x10000
}

// ReadCString reads a NUL-terminated ASCII/UTF-8 string starting at off,
// capped at maxLen bytes. Short/out-of-range offsets return the empty
// string.
func ReadCString(b []byte, off, maxLen int) string {
	if off < 0 || off >= len(b) || maxLen <= 0 {
		return ""
	}
	end := off + maxLen
	if end > len(b) {
		end = len(b)
	}
	slice := b[off:end]
	for i, c := range slice {
		if c == 0 {
			return string(slice[:i])
		}
	}
	return string(slice)
}

// Find performs a linear byte-pattern search for needle in haystack,
// starting at start. Returns -1 if not found or if start is out of range,
// never panics.
func Find(haystack, needle []byte, start int) int {
	if start < 0 {
		start = 0
	}
	if len(needle) == 0 || start >= len(haystack) {
		return -1
	}
	limit := len(haystack) - len(needle)
	for i := start; i <= limit; i++ {
		if matchAt(haystack, needle, i) {
			return i
		}
	}
	return -1
}

func matchAt(haystack, needle []byte, at int) bool {
	for j := range needle {
		if haystack[at+j] != needle[j] {
			return false
		}
	}
	return true
}
