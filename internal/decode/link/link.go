// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package link decodes the Link ECU LLG binary dialect (spec.md §4.7): a
// header carrying UTF-16LE metadata at fixed offsets, a channel directory
// scanned by byte pattern starting around 0x2000, and per-channel
// (value, time) float32 pair streams that are merged onto a shared,
// last-value-carried timeline.
package link

import (
	"fmt"
	"sort"

	"github.com/speedtrace/logcore/pkg/bytesio"
	"github.com/speedtrace/logcore/pkg/logmodel"
)

const (
	offECUModel        = 0x336
	offDate            = 0x1786
	offTime            = 0x184e
	offSoftwareVersion = 0x1916
	offSource          = 0x1aa6

	channelScanStart  = 0x2000
	channelHeaderSize = 408 // 4 zero + 4 id + 200 name + 200 unit
	channelDataSkip   = 8

	maxSamples = 50000
)

type channelSample struct {
	time  float32
	value float32
}

// Decode parses raw Link ECU LLG binary bytes into a canonical Log.
func Decode(data []byte) (*logmodel.Log, error) {
	if len(data) < 8 || string(data[4:7]) != "lf3" {
		return nil, fmt.Errorf("link: missing \"lf3\" magic at offset 4")
	}

	headerSize := int(bytesio.U32LE(data, 0))
	if headerSize > len(data) {
		return nil, fmt.Errorf("link: header size %d exceeds file size %d", headerSize, len(data))
	}

	meta := logmodel.LinkMeta{}
	if len(data) > offECUModel+64 {
		meta.ECUModel = bytesio.ReadUTF16LE(data, offECUModel, 32)
	}
	if len(data) > 0x1A00 {
		meta.Date = bytesio.ReadUTF16LE(data, offDate, 16)
		meta.Time = bytesio.ReadUTF16LE(data, offTime, 16)
		meta.SoftwareVersion = bytesio.ReadUTF16LE(data, offSoftwareVersion, 20)
		meta.Source = bytesio.ReadUTF16LE(data, offSource, 20)
	}

	names, starts := scanChannelDirectory(data)
	if len(names) == 0 {
		log := &logmodel.Log{Meta: meta, Channels: nil, Times: nil, Data: nil}
		return log, nil
	}
	names = logmodel.DeduplicateNames(names)

	units := make([]string, len(starts))
	for i, s := range starts {
		units[i] = bytesio.ReadUTF16LE(data, s+208, 100)
	}

	channels := make([]logmodel.Channel, len(names))
	for i, n := range names {
		channels[i] = logmodel.Channel{Name: n, Unit: units[i], Kind: logmodel.ChannelScalarFloat}
	}

	ends := make([]int, len(starts))
	for i := range starts {
		if i+1 < len(starts) {
			ends[i] = starts[i+1]
		} else {
			ends[i] = len(data)
		}
	}

	perChannel := make([][]channelSample, len(starts))
	timeSet := map[float32]struct{}{}
	for i := range starts {
		dataStart := starts[i] + channelHeaderSize + channelDataSkip
		dataEnd := ends[i]
		if dataStart >= dataEnd || dataEnd > len(data) {
			continue
		}
		var points []channelSample
		for pos := dataStart; pos+8 <= dataEnd; pos += 8 {
			value := bytesio.F32LE(data, pos)
			t := bytesio.F32LE(data, pos+4)
			if t < 0 || t >= 100000 || !isFiniteSmall(value) {
				continue
			}
			points = append(points, channelSample{time: t, value: value})
			timeSet[t] = struct{}{}
		}
		sort.Slice(points, func(a, b int) bool { return points[a].time < points[b].time })
		perChannel[i] = points
	}

	if len(timeSet) == 0 {
		log := &logmodel.Log{Meta: meta, Channels: channels, Times: nil, Data: nil}
		return log, nil
	}

	allTimes := make([]float32, 0, len(timeSet))
	for t := range timeSet {
		allTimes = append(allTimes, t)
	}
	sort.Slice(allTimes, func(a, b int) bool { return allTimes[a] < allTimes[b] })

	firstTime := allTimes[0]
	times := make([]float64, 0, len(allTimes))
	records := make([][]logmodel.Value, 0, len(allTimes))

	for idx, t := range allTimes {
		if idx >= maxSamples {
			break
		}
		rec := make([]logmodel.Value, len(names))
		for c, points := range perChannel {
			rec[c] = logmodel.FloatValue(float64(lastValueAtOrBefore(points, t)))
		}
		times = append(times, float64(t-firstTime))
		records = append(records, rec)
	}

	log := &logmodel.Log{Meta: meta, Channels: channels, Times: times, Data: records}
	if err := log.Validate(); err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	return log, nil
}

// lastValueAtOrBefore finds the value of the sample with the greatest time
// <= t, implementing last-value-carry across asynchronously sampled
// channels. points is sorted ascending by time. A channel whose first
// sample is still in the future at t has not started yet and carries 0.0,
// not its first sample's value (spec.md §8 property 9).
func lastValueAtOrBefore(points []channelSample, t float32) float32 {
	if len(points) == 0 {
		return 0.0
	}
	idx := sort.Search(len(points), func(i int) bool { return points[i].time > t })
	if idx == 0 {
		return 0.0
	}
	return points[idx-1].value
}

func isFiniteSmall(v float32) bool {
	f := float64(v)
	if f != f || f > 1e10 || f < -1e10 {
		return false
	}
	return f-f == 0 // rejects +/-Inf
}

// scanChannelDirectory locates the repeating pattern
// "00 00 00 00 <nonzero u32 channel_id>" followed by a UTF-16LE name and
// unit, returning the decoded names and their byte offsets in file order.
func scanChannelDirectory(data []byte) (names []string, offsets []int) {
	offset := channelScanStart
	limit := len(data) - 500
	for offset < limit {
		if data[offset] == 0 && data[offset+1] == 0 && data[offset+2] == 0 && data[offset+3] == 0 {
			channelID := bytesio.U32LE(data, offset+4)
			if channelID > 0 && channelID < 10000 {
				name := bytesio.ReadUTF16LE(data, offset+8, 100)
				if len(name) >= 2 {
					names = append(names, name)
					offsets = append(offsets, offset)
					offset += channelHeaderSize
					continue
				}
			}
		}
		offset++
	}
	return names, offsets
}
