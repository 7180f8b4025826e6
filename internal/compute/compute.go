// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package compute implements the computed-channel engine (spec.md §4.12):
// formulas are infix arithmetic over channel references, with an added
// shift operator (`ch[k]` for an index shift, `ch[t: delta]` for a
// time shift). Formulas compile through github.com/expr-lang/expr once
// channel references are rewritten to ordinary variable names. Time-shifted
// values are resolved per record by a small binary search over the times
// array; plain and index-shifted references read the record arrays directly.
package compute

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/speedtrace/logcore/pkg/logmodel"
)

// ShiftKind identifies how a channel reference is offset relative to the
// record currently being evaluated.
type ShiftKind int

const (
	ShiftNone ShiftKind = iota
	ShiftIndex
	ShiftTime
)

// channelRef is one distinct (name, shift) combination found while
// rewriting a formula; it becomes one variable binding during evaluation.
type channelRef struct {
	name       string
	kind       ShiftKind
	indexShift int
	timeShift  float64
	varName    string
}

// ValidationError reports a formula defect. For lexical errors (an
// unterminated quote or shift, a malformed shift) Position is the rune
// offset of the opening quote or '['; unknown-channel and parse-error
// report Position 0.
type ValidationError struct {
	Kind     string
	Position int
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("compute: %s at position %d: %s", e.Kind, e.Position, e.Message)
}

// ExtractChannelReferences performs the lexical pass that resolves which
// channel names a formula touches, independent of any shift clauses.
func ExtractChannelReferences(formula string) (map[string]bool, error) {
	_, refs, err := rewrite(formula)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(refs))
	for _, r := range refs {
		names[r.name] = true
	}
	return names, nil
}

// Validate checks that every channel the formula references exists in
// availableChannels and that the formula parses as a valid expression.
func Validate(formula string, availableChannels []string) error {
	rewritten, refs, err := rewrite(formula)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(availableChannels))
	for _, c := range availableChannels {
		known[c] = true
	}
	for _, r := range refs {
		if !known[r.name] {
			return &ValidationError{Kind: "unknown-channel", Position: 0, Message: fmt.Sprintf("channel %q does not exist", r.name)}
		}
	}
	if _, err := expr.Compile(rewritten, expr.AsFloat64()); err != nil {
		return &ValidationError{Kind: "parse-error", Position: 0, Message: err.Error()}
	}
	return nil
}

// CompiledFormula is a formula compiled against a concrete Log's channel
// layout, ready for a fast per-record evaluation sweep.
type CompiledFormula struct {
	program  *vm.Program
	bindings []resolvedBinding
}

type resolvedBinding struct {
	varName      string
	channelIndex int
	kind         ShiftKind
	indexShift   int
	timeShift    float64
}

// Build materialises fast-path accessors into log's per-record arrays and
// times array for every channel the formula references.
func Build(log *logmodel.Log, formula string) (*CompiledFormula, error) {
	rewritten, refs, err := rewrite(formula)
	if err != nil {
		return nil, err
	}
	program, err := expr.Compile(rewritten, expr.AsFloat64())
	if err != nil {
		return nil, &ValidationError{Kind: "parse-error", Position: 0, Message: err.Error()}
	}

	bindings := make([]resolvedBinding, len(refs))
	for i, r := range refs {
		idx := log.ChannelIndex(r.name)
		if idx < 0 {
			return nil, &ValidationError{Kind: "unknown-channel", Position: 0, Message: fmt.Sprintf("channel %q does not exist", r.name)}
		}
		bindings[i] = resolvedBinding{varName: r.varName, channelIndex: idx, kind: r.kind, indexShift: r.indexShift, timeShift: r.timeShift}
	}

	return &CompiledFormula{program: program, bindings: bindings}, nil
}

// EvaluateAll sweeps every record once, with no allocation inside the
// per-record loop beyond what expr.Run itself performs. A per-record
// evaluation error (division by zero, domain error) yields NaN rather
// than aborting the sweep.
func (cf *CompiledFormula) EvaluateAll(log *logmodel.Log) []float64 {
	out := make([]float64, len(log.Times))
	env := make(map[string]float64, len(cf.bindings))
	for i := range log.Times {
		cf.populateEnv(log, i, env)
		v, err := expr.Run(cf.program, env)
		out[i] = resultOrNaN(v, err)
	}
	return out
}

// GeneratePreview evaluates the formula on a bounded prefix of n records,
// for UI echo without committing the resulting column.
func (cf *CompiledFormula) GeneratePreview(log *logmodel.Log, n int) []float64 {
	if n > len(log.Times) {
		n = len(log.Times)
	}
	out := make([]float64, n)
	env := make(map[string]float64, len(cf.bindings))
	for i := 0; i < n; i++ {
		cf.populateEnv(log, i, env)
		v, err := expr.Run(cf.program, env)
		out[i] = resultOrNaN(v, err)
	}
	return out
}

// resultOrNaN converts an expr.Run outcome into the per-record evaluation
// result spec.md §4.12/§7 call for: a parse/runtime error yields NaN, and
// so does a non-finite result (expr's float division never errors on a
// zero divisor, it returns +/-Inf per IEEE 754, which would otherwise leak
// an infinity into the committed column or a formula preview).
func resultOrNaN(v any, err error) float64 {
	if err != nil {
		return math.NaN()
	}
	f, ok := v.(float64)
	if !ok || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func (cf *CompiledFormula) populateEnv(log *logmodel.Log, i int, env map[string]float64) {
	for _, b := range cf.bindings {
		env[b.varName] = resolveBinding(log, b, i)
	}
}

func resolveBinding(log *logmodel.Log, b resolvedBinding, i int) float64 {
	switch b.kind {
	case ShiftIndex:
		j := i + b.indexShift
		if j < 0 || j >= len(log.Data) {
			return 0.0
		}
		return log.Data[j][b.channelIndex].AsF64()
	case ShiftTime:
		target := log.Times[i] + b.timeShift
		j := lastIndexTimeLE(log.Times, target)
		if j < 0 {
			return 0.0
		}
		return log.Data[j][b.channelIndex].AsF64()
	default:
		return log.Data[i][b.channelIndex].AsF64()
	}
}

// lastIndexTimeLE returns the greatest index j with times[j] <= target, or
// -1 if no such index exists. times is assumed non-decreasing.
func lastIndexTimeLE(times []float64, target float64) int {
	j := sort.Search(len(times), func(i int) bool { return times[i] > target })
	if j == 0 {
		return -1
	}
	return j - 1
}

// NearestIndexAtOrBefore exposes the same last-value-carry lookup used
// internally by the `ch[t: delta]` shift operator, for callers (e.g. the
// IPC cursor query) that need a record index at or before a given time.
func NearestIndexAtOrBefore(times []float64, target float64) int {
	return lastIndexTimeLE(times, target)
}

// rewrite lexes formula for channel references (bare identifiers, or
// double-quoted names when the channel contains spaces) with an optional
// shift clause `[k]` or `[t: delta]`, replacing each distinct reference
// with a synthetic variable name expr can compile directly. Arithmetic,
// grouping and numeric literals pass through unchanged.
func rewrite(formula string) (string, []channelRef, error) {
	var out strings.Builder
	var refs []channelRef
	seen := make(map[string]int) // dedup key -> index into refs

	runes := []rune(formula)
	i := 0
	for i < len(runes) {
		c := runes[i]
		switch {
		case c == '"':
			name, next, err := scanQuoted(runes, i)
			if err != nil {
				return "", nil, err
			}
			kind, idxShift, tShift, next2, err := scanShift(runes, next)
			if err != nil {
				return "", nil, err
			}
			ref := bindChannel(&refs, seen, name, kind, idxShift, tShift)
			out.WriteString(ref.varName)
			i = next2
		case isIdentStart(c):
			name, next := scanIdent(runes, i)
			kind, idxShift, tShift, next2, err := scanShift(runes, next)
			if err != nil {
				return "", nil, err
			}
			ref := bindChannel(&refs, seen, name, kind, idxShift, tShift)
			out.WriteString(ref.varName)
			i = next2
		default:
			out.WriteRune(c)
			i++
		}
	}

	return out.String(), refs, nil
}

func bindChannel(refs *[]channelRef, seen map[string]int, name string, kind ShiftKind, idxShift int, tShift float64) channelRef {
	key := fmt.Sprintf("%s|%d|%d|%v", name, kind, idxShift, tShift)
	if idx, ok := seen[key]; ok {
		return (*refs)[idx]
	}
	ref := channelRef{name: name, kind: kind, indexShift: idxShift, timeShift: tShift, varName: fmt.Sprintf("v%d", len(*refs))}
	seen[key] = len(*refs)
	*refs = append(*refs, ref)
	return ref
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func scanIdent(runes []rune, i int) (string, int) {
	start := i
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return string(runes[start:i]), i
}

func scanQuoted(runes []rune, i int) (string, int, error) {
	start := i + 1
	j := start
	for j < len(runes) && runes[j] != '"' {
		j++
	}
	if j >= len(runes) {
		return "", 0, &ValidationError{Kind: "unterminated-string", Position: i, Message: "missing closing quote"}
	}
	return string(runes[start:j]), j + 1, nil
}

// scanShift consumes an optional `[k]` / `[t: delta]` clause starting at
// runes[i] (which may not be '[', in which case it is a no-op).
func scanShift(runes []rune, i int) (ShiftKind, int, float64, int, error) {
	j := i
	for j < len(runes) && runes[j] == ' ' {
		j++
	}
	if j >= len(runes) || runes[j] != '[' {
		return ShiftNone, 0, 0, i, nil
	}
	start := j
	j++
	closeIdx := -1
	for k := j; k < len(runes); k++ {
		if runes[k] == ']' {
			closeIdx = k
			break
		}
	}
	if closeIdx < 0 {
		return ShiftNone, 0, 0, 0, &ValidationError{Kind: "unterminated-shift", Position: start, Message: "missing closing ']'"}
	}
	body := strings.TrimSpace(string(runes[j:closeIdx]))
	next := closeIdx + 1

	if strings.HasPrefix(body, "t") && strings.Contains(body, ":") {
		parts := strings.SplitN(body[1:], ":", 2)
		deltaStr := strings.TrimSpace(parts[len(parts)-1])
		delta, err := strconv.ParseFloat(deltaStr, 64)
		if err != nil {
			return ShiftNone, 0, 0, 0, &ValidationError{Kind: "bad-time-shift", Position: start, Message: err.Error()}
		}
		return ShiftTime, 0, delta, next, nil
	}

	k, err := strconv.Atoi(body)
	if err != nil {
		return ShiftNone, 0, 0, 0, &ValidationError{Kind: "bad-index-shift", Position: start, Message: err.Error()}
	}
	return ShiftIndex, k, 0, next, nil
}
