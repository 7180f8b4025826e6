// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package speeduino decodes the Speeduino/rusEFI MegaLogViewer binary
// dialect (spec.md §4.6): a "MLVLG" header, a big-endian field descriptor
// table (55 bytes per field in format v1, 89 in v2), and a stream of
// data/marker blocks. The 16-bit millisecond timestamp wraps every
// 65.536s; the decoder tracks a wrap count to keep emitted seconds
// monotone.
package speeduino

import (
	"fmt"

	"github.com/speedtrace/logcore/pkg/bytesio"
	"github.com/speedtrace/logcore/pkg/logmodel"
)

type fieldType uint8

const (
	typeU08 fieldType = 0
	typeS08 fieldType = 1
	typeU16 fieldType = 2
	typeS16 fieldType = 3
	typeU32 fieldType = 4
	typeS32 fieldType = 5
	typeS64 fieldType = 6
	typeF32 fieldType = 7
	typeU08Bitfield fieldType = 10
	typeU16Bitfield fieldType = 11
	typeU32Bitfield fieldType = 12
)

func (t fieldType) byteSize() int {
	switch t {
	case typeU08, typeS08, typeU08Bitfield:
		return 1
	case typeU16, typeS16, typeU16Bitfield:
		return 2
	case typeU32, typeS32, typeF32, typeU32Bitfield:
		return 4
	case typeS64:
		return 8
	default:
		return 0
	}
}

func (t fieldType) isBitfield() bool {
	return t == typeU08Bitfield || t == typeU16Bitfield || t == typeU32Bitfield
}

func (t fieldType) known() bool {
	return t.byteSize() > 0
}

type fieldDescriptor struct {
	kind      fieldType
	name      string
	unit      string
	scale     float64
	transform float64
}

const wrapThreshold = 30000

// Decode parses raw Speeduino/rusEFI MLG binary bytes into a canonical Log.
func Decode(data []byte) (*logmodel.Log, error) {
	if len(data) < 6 || string(data[0:5]) != "MLVLG" {
		return nil, fmt.Errorf("speeduino: missing MLVLG header")
	}
	off := 6
	formatVersion := bytesio.I16BE(data, off)
	off += 2
	isV2 := formatVersion == 2
	descriptorSize := 55
	if isV2 {
		descriptorSize = 89
	}

	creationTimestamp := bytesio.I32BE(data, off)
	off += 4

	var infoDataStart int
	if isV2 {
		infoDataStart = int(bytesio.U32BE(data, off))
		off += 4
	} else {
		infoDataStart = int(bytesio.U16BE(data, off))
		off += 2
	}

	dataBeginIndex := int(bytesio.U32BE(data, off))
	off += 4
	off += 2 // record_length, unused beyond framing
	numLoggerFields := int(bytesio.U16BE(data, off))
	off += 2

	if numLoggerFields < 0 || numLoggerFields > 1000 {
		return nil, fmt.Errorf("speeduino: unreasonable field count %d", numLoggerFields)
	}
	if dataBeginIndex < 0 || dataBeginIndex > len(data) {
		return nil, fmt.Errorf("speeduino: data_begin_index %d exceeds file size %d", dataBeginIndex, len(data))
	}

	descriptors := make([]fieldDescriptor, 0, numLoggerFields)
	for i := 0; i < numLoggerFields; i++ {
		if off+descriptorSize > len(data) {
			return nil, fmt.Errorf("speeduino: truncated field descriptor %d", i)
		}
		start := off
		kind := fieldType(data[off])
		off++
		name := bytesio.ReadCString(data, off, 34)
		off += 34
		unit := bytesio.ReadCString(data, off, 10)
		off += 10
		off++ // display style, unused

		scale, transform := 1.0, 0.0
		if !kind.isBitfield() {
			scale = float64(bytesio.F32BE(data, off))
			off += 4
			transform = float64(bytesio.F32BE(data, off))
			off += 4
			off++ // digits, unused
			if isV2 {
				off += 34 // category, unused
			}
		}
		descriptors = append(descriptors, fieldDescriptor{kind: kind, name: name, unit: unit, scale: scale, transform: transform})
		off = start + descriptorSize
	}

	meta := logmodel.SpeeduinoMeta{FormatVersion: formatVersion, CreationTime: creationTimestamp, NumLoggerFields: numLoggerFields}
	if infoDataStart < dataBeginIndex && dataBeginIndex <= len(data) && infoDataStart >= 0 {
		info := string(data[infoDataStart:dataBeginIndex])
		if idx := bytesio.Find([]byte(info), []byte("speeduino"), 0); idx >= 0 {
			meta.Vendor = "speeduino"
		} else if idx := bytesio.Find([]byte(info), []byte("rusEFI"), 0); idx >= 0 {
			meta.Vendor = "rusEFI"
		}
		if idx := indexOfSubstr(info, "Capture Date:"); idx >= 0 {
			meta.CaptureDate = extractQuoted(info[idx:])
		}
	}

	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.name
	}
	names = logmodel.DeduplicateNames(names)
	channels := make([]logmodel.Channel, len(descriptors))
	for i, d := range descriptors {
		channels[i] = logmodel.Channel{Name: names[i], Unit: d.unit, Kind: logmodel.ChannelScalarFloat}
	}
	requiredBytes := 1 // CRC
	for _, d := range descriptors {
		requiredBytes += d.kind.byteSize()
	}

	times := make([]float64, 0)
	records := make([][]logmodel.Value, 0)

	off = dataBeginIndex
	var prevRaw uint16
	var wrapCount uint64
	haveRaw := false

	for off+4 <= len(data) {
		blockType := data[off]
		recOff := off
		off++
		off++ // counter, unused
		rawTimestamp := bytesio.U16BE(data, off)
		off += 2

		if haveRaw && rawTimestamp < prevRaw && (prevRaw-rawTimestamp) > wrapThreshold {
			wrapCount++
		}
		prevRaw = rawTimestamp
		haveRaw = true
		timestamp := float64(rawTimestamp)/1000.0 + float64(wrapCount)*65.536

		switch blockType {
		case 0:
			if off+requiredBytes > len(data) {
				off = recOff
				goto done
			}
			rec := make([]logmodel.Value, len(descriptors))
			ok := true
			for i, d := range descriptors {
				if !d.kind.known() {
					ok = false
					break
				}
				if d.kind.isBitfield() {
					off += d.kind.byteSize()
					rec[i] = logmodel.FloatValue(0.0)
					continue
				}
				raw := readScalar(data, off, d.kind)
				off += d.kind.byteSize()
				rec[i] = logmodel.CoerceF64((raw + d.transform) * d.scale)
			}
			if !ok {
				off = recOff
				goto done
			}
			off++ // CRC
			times = append(times, timestamp)
			records = append(records, rec)
		case 1:
			if off+50 > len(data) {
				off = recOff
				goto done
			}
			off += 50
		default:
			off = recOff
			goto done
		}
	}

done:
	log := &logmodel.Log{Meta: meta, Channels: channels, Times: times, Data: records}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("speeduino: %w", err)
	}
	return log, nil
}

func readScalar(data []byte, off int, kind fieldType) float64 {
	switch kind {
	case typeU08:
		return float64(bytesio.U8(data, off))
	case typeS08:
		return float64(bytesio.I8(data, off))
	case typeU16:
		return float64(bytesio.U16BE(data, off))
	case typeS16:
		return float64(bytesio.I16BE(data, off))
	case typeU32:
		return float64(bytesio.U32BE(data, off))
	case typeS32:
		return float64(bytesio.I32BE(data, off))
	case typeF32:
		return float64(bytesio.F32BE(data, off))
	case typeS64:
		return float64(bytesio.I64BE(data, off))
	default:
		return 0.0
	}
}

func indexOfSubstr(s, sub string) int {
	return bytesio.Find([]byte(s), []byte(sub), 0)
}

// extractQuoted returns the text up to (not including) the next double
// quote in s, mirroring the info-blob convention `Capture Date:"...".`.
func extractQuoted(s string) string {
	end := bytesio.Find([]byte(s), []byte("\""), 0)
	if end < 0 {
		return ""
	}
	return s[:end]
}
