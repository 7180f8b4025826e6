// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package emerald decodes the Emerald K6/M3D ECU two-file log format
// (spec.md §4.9): an INI-like ".lg2" text index naming up to eight
// channel slots, and a ".lg1" binary file of fixed 24-byte records (an
// OLE-epoch f64 timestamp followed by eight little-endian u16 values).
// Engineering values and display units come from a hard-coded table keyed
// by channel ID.
package emerald

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/speedtrace/logcore/pkg/bytesio"
	"github.com/speedtrace/logcore/pkg/logmodel"
)

const recordSize = 24

type channelDef struct {
	name  string
	unit  string
	scale float64
}

// channelTable is reverse-engineered from observed Emerald K6/M3D logs;
// unknown IDs fall back to a generic "Channel <slot> (ID <id>)" label.
var channelTable = map[int]channelDef{
	1:  {"TPS", "%", 0.1},
	2:  {"Air Temp", "°C", 1.0},
	3:  {"MAP", "kPa", 0.1},
	4:  {"Lambda", "λ", 0.001},
	5:  {"Fuel Pressure", "bar", 0.01},
	6:  {"Oil Pressure", "bar", 0.01},
	7:  {"Oil Temp", "°C", 1.0},
	8:  {"Fuel Temp", "°C", 1.0},
	9:  {"Exhaust Temp", "°C", 1.0},
	10: {"Boost Target", "kPa", 0.1},
	11: {"Boost Duty", "%", 0.1},
	12: {"Load", "%", 0.1},
	13: {"Fuel Cut", "", 1.0},
	14: {"Spark Cut", "", 1.0},
	15: {"Gear", "", 1.0},
	16: {"Speed", "km/h", 0.1},
	17: {"Battery", "V", 0.01},
	18: {"AFR Target", "AFR", 0.1},
	19: {"Coolant Temp", "°C", 1.0},
	20: {"RPM", "RPM", 1.0},
	21: {"Ignition Advance", "°", 0.1},
	22: {"Inj Pulse Width", "ms", 0.01},
	23: {"Inj Duty Cycle", "%", 0.1},
	24: {"Fuel Pressure", "kPa", 0.1},
	25: {"Coolant Temp Corr", "%", 0.1},
	26: {"Air Temp Corr", "%", 0.1},
	27: {"Acceleration Enrich", "%", 0.1},
	28: {"Warmup Enrich", "%", 0.1},
	29: {"Ignition Timing", "°BTDC", 0.1},
	30: {"Idle Valve", "%", 0.1},
	31: {"Inj Duty", "%", 0.1},
	32: {"MAP", "kPa", 0.1},
	33: {"Barometric Pressure", "kPa", 0.1},
	34: {"Aux Input 34", "", 1.0},
	35: {"Aux Input 35", "", 1.0},
	45: {"AFR", "AFR", 0.1},
	46: {"AFR", "AFR", 0.1},
	47: {"Lambda", "λ", 0.01},
}

func definitionFor(id int) channelDef {
	if def, ok := channelTable[id]; ok {
		return def
	}
	return channelDef{name: "Unknown", unit: "", scale: 1.0}
}

type slotChannel struct {
	slot int
	id   int
}

// parseLG2 parses the channel-index text file, returning (slot, channel
// id) pairs for each [chanN] section found, sorted by slot.
func parseLG2(contents []byte) ([]slotChannel, error) {
	lines := strings.Split(strings.ReplaceAll(string(contents), "\r\n", "\n"), "\n")
	var channels []slotChannel

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "[chan") || !strings.HasSuffix(line, "]") {
			continue
		}
		slotStr := line[5 : len(line)-1]
		slot, err := strconv.Atoi(slotStr)
		if err != nil {
			continue
		}
		if i+1 >= len(lines) {
			continue
		}
		idLine := strings.TrimSpace(lines[i+1])
		id, err := strconv.Atoi(idLine)
		if err != nil {
			continue
		}
		channels = append(channels, slotChannel{slot: slot, id: id})
		i++
	}

	if len(channels) == 0 {
		return nil, fmt.Errorf("emerald: no channel definitions found in lg2 file")
	}
	sortBySlot(channels)
	return channels, nil
}

func sortBySlot(channels []slotChannel) {
	for i := 1; i < len(channels); i++ {
		for j := i; j > 0 && channels[j].slot < channels[j-1].slot; j-- {
			channels[j], channels[j-1] = channels[j-1], channels[j]
		}
	}
}

// Decode parses an Emerald .lg1/.lg2 pair into a canonical Log.
func Decode(lg1, lg2 []byte) (*logmodel.Log, error) {
	slots, err := parseLG2(lg2)
	if err != nil {
		return nil, err
	}
	if len(lg1) == 0 || len(lg1)%recordSize != 0 {
		return nil, fmt.Errorf("emerald: lg1 size %d is not a positive multiple of %d", len(lg1), recordSize)
	}
	numRecords := len(lg1) / recordSize
	if numRecords == 0 {
		return nil, fmt.Errorf("emerald: lg1 file contains no data records")
	}

	channels := make([]logmodel.Channel, len(slots))
	defs := make([]channelDef, len(slots))
	for i, sc := range slots {
		def := definitionFor(sc.id)
		name := def.name
		if name == "Unknown" {
			name = fmt.Sprintf("Channel %d (ID %d)", sc.slot, sc.id)
		}
		channels[i] = logmodel.Channel{Name: name, Unit: def.unit, Kind: logmodel.ChannelScalarFloat}
		defs[i] = def
	}
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name
	}
	dedup := logmodel.DeduplicateNames(names)
	for i := range channels {
		channels[i].Name = dedup[i]
	}

	times := make([]float64, 0, numRecords)
	records := make([][]logmodel.Value, 0, numRecords)

	firstOLE := 0.0
	haveFirst := false

	for i := 0; i < numRecords; i++ {
		off := i * recordSize
		ole := bytesio.F64LE(lg1, off)
		if !haveFirst {
			firstOLE = ole
			haveFirst = true
		}
		timeSeconds := (ole - firstOLE) * 86400.0

		row := make([]logmodel.Value, len(slots))
		for c := range slots {
			raw := float64(bytesio.U16LE(lg1, off+8+c*2))
			row[c] = logmodel.CoerceF64(raw*defs[c].scale + 0.0)
		}
		times = append(times, timeSeconds)
		records = append(records, row)
	}

	duration := 0.0
	if len(times) > 0 {
		duration = times[len(times)-1]
	}
	sampleRate := 0.0
	if duration > 0 {
		sampleRate = float64(numRecords) / duration
	}

	meta := logmodel.EmeraldMeta{
		FirstOLEDate:    firstOLE,
		RecordCount:     numRecords,
		DurationSeconds: duration,
		SampleRateHz:    sampleRate,
	}

	log := &logmodel.Log{Meta: meta, Channels: channels, Times: times, Data: records}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("emerald: %w", err)
	}
	return log, nil
}
