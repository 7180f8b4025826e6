// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package locomotive decodes the Locomotive CSV dialect (spec.md §4.5): a
// five-line labelled metadata header, a column-name row, and data rows
// each prefixed by an English weekday abbreviation and a full
// "Mon Jan 2 15:04:05 2006" timestamp. Row parsing is independent per
// line, so it is fanned out across a worker pool and reassembled by row
// index to keep the result order deterministic.
package locomotive

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/speedtrace/logcore/pkg/logmodel"
)

var weekdayPrefixes = []string{"Mon ", "Tue ", "Wed ", "Thu ", "Fri ", "Sat ", "Sun "}

func isDataRow(line string) bool {
	for _, p := range weekdayPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func parseTimestamp(s string) (float64, bool) {
	t, err := time.Parse("Mon Jan 2 15:04:05 2006", s)
	if err != nil {
		return 0, false
	}
	return float64(t.Unix()), true
}

type rowResult struct {
	ok        bool
	timestamp float64
	values    []float64
}

// Decode parses raw Locomotive log bytes into a canonical Log.
func Decode(ctx context.Context, data []byte) (*logmodel.Log, error) {
	lines := splitLines(data)

	meta := logmodel.LocomotiveMeta{Fields: map[string]string{}}
	var names []string
	var dataLines []string

	inHeader := true
	headerLineCount := 0

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if isDataRow(line) {
			inHeader = false
			dataLines = append(dataLines, line)
			continue
		}
		if inHeader && headerLineCount < 5 {
			key, val, found := strings.Cut(line, ":")
			if found {
				key = strings.TrimSpace(key)
				val = strings.TrimSpace(val)
				meta.Fields[key] = val
				if key == "Customer" {
					meta.Customer = val
				}
				headerLineCount++
			}
		} else if inHeader && headerLineCount == 5 {
			tokens := strings.Split(line, ",")
			for _, n := range tokens[1:] {
				n = strings.TrimSpace(n)
				if n != "" {
					names = append(names, n)
				}
			}
			headerLineCount++
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("locomotive: no channel header found")
	}
	names = logmodel.DeduplicateNames(names)

	channels := make([]logmodel.Channel, len(names))
	for i, n := range names {
		channels[i] = logmodel.Channel{Name: n, Kind: logmodel.ChannelScalarFloat}
	}

	results := make([]rowResult, len(dataLines))
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i, line := range dataLines {
		i, line := i, line
		group.Go(func() error {
			results[i] = parseRow(line)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("locomotive: %w", err)
	}

	var times []float64
	var records [][]logmodel.Value
	haveFirst := false
	firstTS := 0.0
	for _, r := range results {
		if !r.ok {
			continue
		}
		if !haveFirst {
			firstTS = r.timestamp
			haveFirst = true
		}
		if len(r.values) < len(names) {
			continue // integrity filter: short rows are dropped
		}
		rec := make([]logmodel.Value, len(names))
		for c := range names {
			rec[c] = logmodel.CoerceF64(r.values[c])
		}
		times = append(times, r.timestamp-firstTS)
		records = append(records, rec)
	}

	log := &logmodel.Log{Meta: meta, Channels: channels, Times: times, Data: records}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("locomotive: %w", err)
	}
	return log, nil
}

func parseRow(line string) rowResult {
	parts := strings.Split(line, ",")
	if len(parts) == 0 {
		return rowResult{}
	}
	ts, ok := parseTimestamp(strings.TrimSpace(parts[0]))
	if !ok {
		return rowResult{}
	}
	values := make([]float64, 0, len(parts)-1)
	for _, v := range parts[1:] {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		values = append(values, f)
	}
	if len(values) == 0 {
		return rowResult{}
	}
	return rowResult{ok: true, timestamp: ts, values: values}
}

func splitLines(data []byte) []string {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(s, "\n")
}
