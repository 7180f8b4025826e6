// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aim decodes AIM XRK/DRK motorsport data logger files
// (spec.md §4.8). The vendor's native library offers a preferred,
// metadata-rich accessor on platforms that carry it; this package
// implements only the portable path, which scans the file's own framing
// bytes directly and is the one guaranteed to build everywhere Go does.
package aim

import (
	"fmt"

	"github.com/speedtrace/logcore/pkg/bytesio"
	"github.com/speedtrace/logcore/pkg/logmodel"
)

const (
	signature = "<hCNF"

	channelMarker    = "<hCHS\x00"
	shortNameOffset  = 30
	shortNameLen     = 8
	longNameOffset   = 38
	longNameLen      = 24
	channelRecordLen = 100

	dataMarker    = ")(G"
	floatsStart   = 9
	minRecordSize = 100
	maxRecordSize = 200
	sampleRateHz  = 100.0

	paddingThreshold = 1e-4
	minReportedRecords = 10
)

// Decode parses raw AIM XRK bytes into a canonical Log using the portable
// (pure Go) path.
func Decode(data []byte) (*logmodel.Log, error) {
	if len(data) < len(signature) || string(data[:len(signature)]) != signature {
		return nil, fmt.Errorf("aim: missing %q signature", signature)
	}

	names := parseChannels(data)
	meta := parseMetadata(data)

	times, records := parseChannelData(data, len(names))

	channels := make([]logmodel.Channel, len(names))
	dedup := logmodel.DeduplicateNames(append([]string(nil), names...))
	for i, n := range dedup {
		channels[i] = logmodel.Channel{Name: n, Kind: logmodel.ChannelScalarFloat}
	}

	log := &logmodel.Log{Meta: meta, Channels: channels, Times: times, Data: records}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("aim: %w", err)
	}
	return log, nil
}

func parseChannels(data []byte) []string {
	var names []string
	offset := 12
	for offset+channelRecordLen < len(data) {
		pos := bytesio.Find(data, []byte(channelMarker), offset)
		if pos < 0 {
			break
		}
		shortOff := pos + shortNameOffset
		longOff := pos + longNameOffset
		if longOff+longNameLen > len(data) {
			break
		}
		shortName := bytesio.ReadCString(data, shortOff, shortNameLen)
		longName := bytesio.ReadCString(data, longOff, longNameLen)
		name := shortName
		if longName != "" {
			name = longName
		}
		if name != "" {
			names = append(names, name)
		}
		offset = pos + len(channelMarker)
	}
	return names
}

func parseMetadata(data []byte) logmodel.AIMMeta {
	meta := logmodel.AIMMeta{}
	tailStart := 0
	if len(data) > 1000 {
		tailStart = len(data) - 1000
	}
	meta.Vehicle = extractTag(data, "<VEH\x00", tailStart, 50)
	meta.Championship = extractTag(data, "<CMP\x00", tailStart, 100)

	venueStart := 0
	if len(data) > 500 {
		venueStart = len(data) - 500
	}
	meta.Venue = extractTag(data, "<VTY\x00", venueStart, 50)
	meta.UsedNative = false
	return meta
}

// extractTag finds `tag` at or after `from`, then reads a NUL/`<`-terminated
// string starting 4 bytes past the tag (skipping a length field), capped at
// maxLen bytes.
func extractTag(data []byte, tag string, from int, maxLen int) string {
	pos := bytesio.Find(data, []byte(tag), from)
	if pos < 0 {
		return ""
	}
	start := pos + len(tag) - 1 + 4
	if start >= len(data) {
		return ""
	}
	end := bytesio.Find(data, []byte("<"), start)
	n := maxLen
	if end >= 0 && end-start < n {
		n = end - start
	}
	return bytesio.ReadCString(data, start, n)
}

func parseChannelData(data []byte, channelCount int) ([]float64, [][]logmodel.Value) {
	if channelCount == 0 {
		return nil, nil
	}

	var times []float64
	var records [][]logmodel.Value
	recordCount := 0

	offset := 0
	for offset+20 < len(data) {
		pos := bytesio.Find(data, []byte(dataMarker), offset)
		if pos < 0 {
			break
		}
		nextPos := bytesio.Find(data, []byte(")("), pos+3)
		if nextPos < 0 {
			nextPos = len(data)
		}
		recordSize := nextPos - pos

		if recordSize >= minRecordSize && recordSize <= maxRecordSize {
			dataStart := pos + floatsStart
			numFloats := (recordSize - floatsStart) / 4

			values := make([]float32, 0, numFloats)
			for i := 0; i < numFloats; i++ {
				floatOffset := dataStart + i*4
				if floatOffset+4 > nextPos || floatOffset+4 > len(data) {
					break
				}
				v := bytesio.F32LE(data, floatOffset)
				if !isFinite32(v) {
					v = 0.0
				}
				values = append(values, v)
			}

			hasData := false
			for _, v := range values {
				if absF32(v) > paddingThreshold {
					hasData = true
					break
				}
			}
			if hasData {
				timeSec := float64(recordCount) / sampleRateHz
				times = append(times, timeSec)

				row := make([]logmodel.Value, channelCount)
				for c := 0; c < channelCount; c++ {
					if c < len(values) {
						row[c] = logmodel.CoerceF64(float64(values[c]))
					} else {
						row[c] = logmodel.FloatValue(0.0)
					}
				}
				records = append(records, row)
				recordCount++
			}
		}

		offset = pos + 3
	}

	return times, records
}

func isFinite32(v float32) bool {
	f := float64(v)
	return f == f && f-f == 0
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
