// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logmodel holds the canonical in-memory representation every
// decoder produces: a Log of Channels and time-stamped Value records.
package logmodel

import "math"

// Kind tags which of the three source-fidelity variants a Value carries.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
)

// Value is a tagged sum of Float/Int/Bool. AsF64 is total: every variant
// has a defined float64 representation, which is what every consumer of
// the arithmetic surface (unit conversion, the computed-channel engine,
// statistics) actually operates on.
type Value struct {
	kind Kind
	f    float64
	i    int64
	b    bool
}

func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }

func (v Value) Kind() Kind { return v.kind }

// AsF64 is the reference arithmetic surface used everywhere except display
// formatting of integer/bool source cells.
func (v Value) AsF64() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindBool:
		if v.b {
			return 1.0
		}
		return 0.0
	default:
		return v.f
	}
}

// CoerceF64 turns a non-numeric or NaN/Inf source cell into the canonical
// 0.0 fallback required by the Log invariant (every cell is numeric).
func CoerceF64(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return FloatValue(0.0)
	}
	return FloatValue(f)
}
