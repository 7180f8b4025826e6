// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ecumaster decodes the ECUMaster semicolon-delimited CSV dialect
// (spec.md §4.4). Channel names may be path-style ("Sensors/IAT_C"); this
// decoder keeps them as-is and leaves path stripping to the normaliser
// (package normalize). Empty cells mean "no change" and are filled with a
// piecewise-constant hold of the previous value.
package ecumaster

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/speedtrace/logcore/pkg/logmodel"
)

// unitHint infers a canonical unit (and the value transform into it) from
// a substring of the vendor's channel name, since ECUMaster embeds unit
// hints inside the name rather than in a separate header field.
type unitHint struct {
	substr      string
	unit        string
	toCanonical func(float64) float64
}

var unitHints = []unitHint{
	{"_c", "K", func(v float64) float64 { return v + 273.15 }},
	{"_f", "K", func(v float64) float64 { return (v-32)*5.0/9.0 + 273.15 }},
	{"kpa", "kPa", identity},
	{"psi", "kPa", func(v float64) float64 { return v / 0.145038 }},
	{"kmh", "km/h", identity},
	{"mph", "km/h", func(v float64) float64 { return v / 0.621371 }},
}

func identity(v float64) float64 { return v }

func inferUnit(rawName string) (string, func(float64) float64) {
	lower := strings.ToLower(rawName)
	for _, h := range unitHints {
		if strings.Contains(lower, h.substr) {
			return h.unit, h.toCanonical
		}
	}
	return "", identity
}

// Decode parses raw ECUMaster log bytes into a canonical Log.
func Decode(data []byte) (*logmodel.Log, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, fmt.Errorf("ecumaster: empty input")
	}
	header := strings.Split(lines[0], ";")
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "TIME") {
		return nil, fmt.Errorf("ecumaster: missing TIME; header")
	}

	rawNames := header[1:]
	names := logmodel.DeduplicateNames(append([]string(nil), rawNames...))
	channels := make([]logmodel.Channel, len(names))
	transforms := make([]func(float64) float64, len(names))
	for i, raw := range rawNames {
		unit, transform := inferUnit(raw)
		channels[i] = logmodel.Channel{Name: names[i], Unit: unit, Kind: logmodel.ChannelScalarFloat}
		transforms[i] = transform
	}

	last := make([]float64, len(names))
	haveLast := make([]bool, len(names))

	times := make([]float64, 0, len(lines)-1)
	records := make([][]logmodel.Value, 0, len(lines)-1)

	firstTS := 0.0
	haveFirst := false

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ";")
		ts, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			ts = 0.0
		}
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
			} else {
				v = transforms[c](v)
			}
			last[c] = v
			haveLast[c] = true
			rec[c] = logmodel.CoerceF64(v)
		}

		times = append(times, ts-firstTS)
		records = append(records, rec)
	}

	log := &logmodel.Log{Meta: logmodel.ECUMasterMeta{}, Channels: channels, Times: times, Data: records}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("ecumaster: %w", err)
	}
	return log, nil
}

func splitLines(data []byte) []string {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(s, "\n")
}
