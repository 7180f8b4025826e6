// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logmodel

import "fmt"

// Log is a single decoded file, materialised as an ordered sequence of
// channels, one times entry per record, and one data record per times
// entry. Order is the decoder's emission order and is the column order
// used by Data.
type Log struct {
	Meta     FormatMeta
	Channels []Channel
	Times    []float64
	Data     [][]Value
}

// Validate checks the structural invariants every decoded Log must satisfy:
// one record per timestamp, one cell per channel in every record, and
// non-decreasing times. It does not check that values are finite.
// It never panics; it returns a descriptive
// error so callers can treat a violation as the programmer error it is.
func (l *Log) Validate() error {
	if len(l.Times) != len(l.Data) {
		return fmt.Errorf("logmodel: len(times)=%d != len(data)=%d", len(l.Times), len(l.Data))
	}
	for i, rec := range l.Data {
		if len(rec) != len(l.Channels) {
			return fmt.Errorf("logmodel: record %d has %d cells, want %d", i, len(rec), len(l.Channels))
		}
	}
	for i := 1; i < len(l.Times); i++ {
		if l.Times[i] < l.Times[i-1] {
			return fmt.Errorf("logmodel: times not monotone at index %d (%.6f < %.6f)", i, l.Times[i], l.Times[i-1])
		}
	}
	return nil
}

// ChannelIndex returns the column index of name, or -1 if absent.
func (l *Log) ChannelIndex(name string) int {
	for i, c := range l.Channels {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// AppendColumn adds a new channel and its per-record values in place. Used
// by the computed-channel engine to materialise a formula as a column.
// len(values) must equal len(l.Data); a short values slice is padded with
// 0.0, consistent with the rest of the model's "always numeric" invariant.
func (l *Log) AppendColumn(ch Channel, values []float64) {
	l.Channels = append(l.Channels, ch)
	for i := range l.Data {
		v := 0.0
		if i < len(values) {
			v = values[i]
		}
		l.Data[i] = append(l.Data[i], CoerceF64(v))
	}
}

// ComputedChannelTemplate is a user-authored formula channel. Validated
// against a specific Log, then materialised as additional columns.
type ComputedChannelTemplate struct {
	ID          string
	Name        string
	Unit        string
	Description string
	Formula     string
}
