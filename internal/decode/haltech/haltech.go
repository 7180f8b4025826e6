// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package haltech decodes the Haltech CSV dialect (spec.md §4.3): a
// multi-line preamble introduced by a "%DataLog%" marker, followed by
// colon-delimited metadata lines, a comma-delimited channel header, and
// sparse comma-delimited data rows where a missing cell carries forward
// the most recent value for that column.
package haltech

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/speedtrace/logcore/pkg/logmodel"
)

// dateTimeLayouts are the date-time timestamp dialects this decoder
// recognises, tried in order after the bare-seconds dialect fails to
// parse. Haltech logs either a full date-time or a bare clock time with
// optional millisecond precision; since the decoder only needs a
// monotonic, zero-anchored seconds sequence (the first row's timestamp is
// subtracted from every row), a missing date component is harmless as
// long as the capture does not cross midnight.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"15:04:05.000",
	"15:04:05",
}

const marker = "%DataLog%"

// Decode parses raw Haltech log bytes into a canonical Log.
func Decode(data []byte) (*logmodel.Log, error) {
	lines := splitLines(data)

	start := -1
	for i, line := range lines {
		if strings.Contains(line, marker) {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("haltech: %q marker not found", marker)
	}

	meta := logmodel.HaltechMeta{}
	headerIdx := -1
	for i := start + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if isMetaLine(line) {
			applyMetaLine(&meta, line)
			continue
		}
		headerIdx = i
		break
	}
	if headerIdx == -1 {
		return nil, fmt.Errorf("haltech: no channel header line found")
	}

	names, units := parseHeader(lines[headerIdx])
	if len(names) == 0 {
		return nil, fmt.Errorf("haltech: empty channel header")
	}
	names = logmodel.DeduplicateNames(names)

	channels := make([]logmodel.Channel, len(names))
	for i, n := range names {
		channels[i] = logmodel.Channel{Name: n, Unit: units[i], Kind: logmodel.ChannelScalarFloat}
	}

	last := make([]float64, len(names))
	haveLast := make([]bool, len(names))

	times := make([]float64, 0, len(lines)-headerIdx)
	data2 := make([][]logmodel.Value, 0, len(lines)-headerIdx)

	firstTS := 0.0
	haveFirst := false

	for i := headerIdx + 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		ts := parseTimestamp(strings.TrimSpace(fields[0]))
		if !haveFirst {
			firstTS = ts
			haveFirst = true
		}

		rec := make([]logmodel.Value, len(names))
		for c := 0; c < len(names); c++ {
			fieldIdx := c + 1
			var raw string
			if fieldIdx < len(fields) {
				raw = strings.TrimSpace(fields[fieldIdx])
			}
			if raw == "" {
				if haveLast[c] {
					rec[c] = logmodel.FloatValue(last[c])
				} else {
					rec[c] = logmodel.FloatValue(0.0)
				}
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				v = 0.0
			}
			last[c] = v
			haveLast[c] = true
			rec[c] = logmodel.CoerceF64(v)
		}

		times = append(times, ts-firstTS)
		data2 = append(data2, rec)
	}

	log := &logmodel.Log{Meta: meta, Channels: channels, Times: times, Data: data2}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("haltech: %w", err)
	}
	return log, nil
}

func isMetaLine(line string) bool {
	return strings.Contains(line, ":") && !strings.Contains(line, ",")
}

func applyMetaLine(meta *logmodel.HaltechMeta, line string) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return
	}
	key := strings.ToLower(strings.TrimSpace(parts[0]))
	val := strings.TrimSpace(parts[1])
	switch {
	case strings.Contains(key, "version"):
		meta.Version = val
	case strings.Contains(key, "date"):
		meta.Date = val
	}
}

func parseHeader(line string) (names, units []string) {
	tokens := strings.Split(line, ",")
	if len(tokens) < 2 {
		return nil, nil
	}
	tokens = tokens[1:] // first column is the timestamp
	names = make([]string, len(tokens))
	units = make([]string, len(tokens))
	for i, t := range tokens {
		t = strings.TrimSpace(t)
		if open := strings.Index(t, "("); open != -1 && strings.HasSuffix(t, ")") {
			names[i] = strings.TrimSpace(t[:open])
			units[i] = t[open+1 : len(t)-1]
		} else {
			names[i] = t
		}
	}
	return names, units
}

// parseTimestamp accepts either a bare seconds-from-start float, or one of
// the date-time dialects in dateTimeLayouts, returning seconds since the
// Unix epoch for dialects that carry a date and seconds since midnight for
// clock-only ones (fine-grained enough for the caller's zero-anchoring
// subtraction). Falls back to 0.0 only if neither dialect matches.
func parseTimestamp(s string) float64 {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() == 0 { // clock-only layout: no date was parsed
				return float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9
			}
			return float64(t.UnixNano()) / 1e9
		}
	}
	return 0.0
}

func splitLines(data []byte) []string {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(s, "\n")
}
