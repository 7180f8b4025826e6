// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package romraider decodes the RomRaider CSV dialect (spec.md §4.5): a
// single header line "Time (msec),ch1 (unit1),ch2 (unit2),...". The time
// column is milliseconds, divided by 1000 and anchored to zero. Unit
// tokens are parsed out of parentheses where present; Subaru-specific
// hints fill in a canonical unit when they are absent.
package romraider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/speedtrace/logcore/pkg/logmodel"
)

// subaruUnitHints maps bare (parenthesis-less) RomRaider channel names onto
// the canonical unit Subaru loggers are known to report them in.
var subaruUnitHints = map[string]string{
	"coolant temp":       "K",
	"intake air temp":    "K",
	"manifold pressure":  "kPa",
	"vehicle speed":      "km/h",
	"engine speed":       "",
	"throttle position":  "",
}

func Decode(data []byte) (*logmodel.Log, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, fmt.Errorf("romraider: empty input")
	}
	if !strings.HasPrefix(lines[0], "Time (msec)") {
		return nil, fmt.Errorf("romraider: missing \"Time (msec)\" header")
	}

	names, units := parseHeader(lines[0])
	if len(names) == 0 {
		return nil, fmt.Errorf("romraider: empty channel header")
	}
	names = logmodel.DeduplicateNames(names)

	channels := make([]logmodel.Channel, len(names))
	for i, n := range names {
		channels[i] = logmodel.Channel{Name: n, Unit: units[i], Kind: logmodel.ChannelScalarFloat}
	}

	times := make([]float64, 0, len(lines)-1)
	records := make([][]logmodel.Value, 0, len(lines)-1)

	firstTS := 0.0
	haveFirst := false

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		msec, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			msec = 0.0
		}
		ts := msec / 1000.0
		if !haveFirst {
			firstTS = ts
			haveFirst = true
		}

		rec := make([]logmodel.Value, len(names))
		for c := range names {
			fieldIdx := c + 1
			var raw string
			if fieldIdx < len(fields) {
				raw = strings.TrimSpace(fields[fieldIdx])
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				v = 0.0
			}
			rec[c] = logmodel.CoerceF64(v)
		}

		times = append(times, ts-firstTS)
		records = append(records, rec)
	}

	log := &logmodel.Log{Meta: logmodel.RomRaiderMeta{}, Channels: channels, Times: times, Data: records}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("romraider: %w", err)
	}
	return log, nil
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
			units[i] = strings.TrimSpace(t[open+1 : len(t)-1])
			continue
		}
		names[i] = t
		if hint, ok := subaruUnitHints[strings.ToLower(t)]; ok {
			units[i] = hint
		}
	}
	return names, units
}

func splitLines(data []byte) []string {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(s, "\n")
}
