// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ipcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/speedtrace/logcore/internal/compute"
	"github.com/speedtrace/logcore/internal/normalize"
	"github.com/speedtrace/logcore/pkg/logmodel"
	"github.com/speedtrace/logcore/pkg/units"
)

// fileHandle is one loaded Log plus the bookkeeping the command plane
// layers on top of it: selection state and computed-channel templates.
type fileHandle struct {
	log      *logmodel.Log
	selected map[string]bool
	computed map[string]logmodel.ComputedChannelTemplate
}

// Store owns every loaded Log. It is only ever touched from the single
// interactive goroutine Server.Run spawns, runInteractive (spec.md §4.13's "interactive
// thread"); no locking is used because nothing else may reach it.
type Store struct {
	norm      *normalize.Normalizer
	files     map[string]*fileHandle
	nextID    int
	timeRange [2]float64
	cursor    float64
	playing   bool
	scatter   bool
	chart     bool
}

// NewStore constructs an empty Store using norm to canonicalise channel
// names as files are loaded.
func NewStore(norm *normalize.Normalizer) *Store {
	return &Store{
		norm:  norm,
		files: make(map[string]*fileHandle),
	}
}

// dispatch executes one request against the store and returns the
// response to send back over the connection. It never panics: every
// command handler reports failure through the Error response shape.
// Command tags match the original IpcCommand enum variant names.
func (s *Store) dispatch(ctx context.Context, req Request) Response {
	switch req.Type {
	case "Ping":
		return ok("Pong", nil)
	case "GetState":
		return s.cmdState()
	case "LoadFile":
		return s.cmdLoad(ctx, req.Payload)
	case "CloseFile":
		return s.cmdClose(req.Payload)
	case "ListChannels":
		return s.cmdListChannels(req.Payload)
	case "GetChannelData":
		return s.cmdGetChannelData(req.Payload)
	case "GetChannelStats":
		return s.cmdGetChannelStats(req.Payload)
	case "SelectChannel":
		return s.cmdSelect(req.Payload, true)
	case "DeselectChannel":
		return s.cmdSelect(req.Payload, false)
	case "DeselectAllChannels":
		return s.cmdDeselectAllChannels()
	case "CreateComputedChannel":
		return s.cmdCreateComputedChannel(req.Payload)
	case "DeleteComputedChannel":
		return s.cmdDeleteComputedChannel(req.Payload)
	case "ListComputedChannels":
		return s.cmdListComputedChannels(req.Payload)
	case "EvaluateFormula":
		return s.cmdEvaluateFormula(req.Payload)
	case "SetTimeRange":
		return s.cmdSetTimeRange(req.Payload)
	case "SetCursor":
		return s.cmdSetCursor(req.Payload)
	case "Play":
		s.playing = true
		return ok("Ack", nil)
	case "Pause":
		s.playing = false
		return ok("Ack", nil)
	case "Stop":
		s.playing = false
		s.cursor = s.timeRange[0]
		return ok("Ack", nil)
	case "GetCursorValues":
		return s.cmdGetCursorValues(req.Payload)
	case "FindPeaks":
		return s.cmdFindPeaks(req.Payload)
	case "CorrelateChannels":
		return s.cmdCorrelate(req.Payload)
	case "ShowScatterPlot":
		return s.cmdToggleView(req.Payload, &s.scatter)
	case "ShowChart":
		return s.cmdToggleView(req.Payload, &s.chart)
	default:
		return errResponse("Unknown command: %s", req.Type)
	}
}

func (s *Store) handle(fileID string) (*fileHandle, error) {
	fh, ok := s.files[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file_id: %s", fileID)
	}
	return fh, nil
}

type stateSnapshot struct {
	FileIDs   []string   `json:"file_ids"`
	TimeRange [2]float64 `json:"time_range"`
	Cursor    float64    `json:"cursor"`
	Playing   bool       `json:"playing"`
}

func (s *Store) cmdState() Response {
	ids := make([]string, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ok("State", stateSnapshot{FileIDs: ids, TimeRange: s.timeRange, Cursor: s.cursor, Playing: s.playing})
}

type loadPayload struct {
	Path string `json:"path"`
}

type loadResult struct {
	FileID   string   `json:"file_id"`
	Channels []string `json:"channels"`
}

func (s *Store) cmdLoad(ctx context.Context, raw json.RawMessage) Response {
	var p loadPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}

	log, err := loadFile(ctx, p.Path, s.norm)
	if err != nil {
		return errResponse("%v", err)
	}

	id := strconv.Itoa(s.nextID)
	s.nextID++
	s.files[id] = &fileHandle{
		log:      log,
		selected: make(map[string]bool),
		computed: make(map[string]logmodel.ComputedChannelTemplate),
	}

	names := make([]string, len(log.Channels))
	for i, c := range log.Channels {
		names[i] = c.Name
	}
	if len(log.Times) > 0 {
		s.timeRange = [2]float64{log.Times[0], log.Times[len(log.Times)-1]}
		s.cursor = log.Times[0]
	}
	return ok("FileLoaded", loadResult{FileID: id, Channels: normalize.SortChannelsByPriority(names)})
}

type fileIDPayload struct {
	FileID string `json:"file_id"`
}

func (s *Store) cmdClose(raw json.RawMessage) Response {
	var p fileIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	delete(s.files, p.FileID)
	return ok("Ack", nil)
}

type channelInfo struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

func (s *Store) cmdListChannels(raw json.RawMessage) Response {
	var p fileIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	infos := make([]channelInfo, len(fh.log.Channels))
	for i, c := range fh.log.Channels {
		infos[i] = channelInfo{Name: c.Name, Unit: c.Unit}
	}
	return ok("Channels", infos)
}

type channelDataPayload struct {
	FileID      string      `json:"file_id"`
	ChannelName string      `json:"channel_name"`
	TimeRange   *[2]float64 `json:"time_range,omitempty"`
	DisplayUnit string      `json:"display_unit,omitempty"`
}

type channelData struct {
	Times  []float64 `json:"times"`
	Values []float64 `json:"values"`
	Unit   string    `json:"unit"`
}

func (s *Store) cmdGetChannelData(raw json.RawMessage) Response {
	var p channelDataPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	idx := fh.log.ChannelIndex(p.ChannelName)
	if idx < 0 {
		return errResponse("Unknown channel: %s", p.ChannelName)
	}

	unit := fh.log.Channels[idx].Unit
	targetUnit := unit
	times := make([]float64, 0, len(fh.log.Times))
	values := make([]float64, 0, len(fh.log.Times))
	for i, t := range fh.log.Times {
		if p.TimeRange != nil && (t < p.TimeRange[0] || t > p.TimeRange[1]) {
			continue
		}
		v := fh.log.Data[i][idx].AsF64()
		if p.DisplayUnit != "" {
			v, targetUnit = units.Convert(v, unit, p.DisplayUnit)
		}
		times = append(times, t)
		values = append(values, v)
	}
	return ok("ChannelData", channelData{Times: times, Values: values, Unit: targetUnit})
}

// channelStats mirrors the original ChannelStats: count plus the full
// spread of descriptive statistics, not just min/max/mean.
type channelStats struct {
	Count   int     `json:"count"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Median  float64 `json:"median"`
	MinTime float64 `json:"min_time"`
	MaxTime float64 `json:"max_time"`
}

type channelStatsPayload struct {
	FileID      string      `json:"file_id"`
	ChannelName string      `json:"channel_name"`
	TimeRange   *[2]float64 `json:"time_range,omitempty"`
}

func (s *Store) cmdGetChannelStats(raw json.RawMessage) Response {
	var p channelStatsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	idx := fh.log.ChannelIndex(p.ChannelName)
	if idx < 0 {
		return errResponse("Unknown channel: %s", p.ChannelName)
	}

	values := make([]float64, 0, len(fh.log.Data))
	minTime, maxTime := math.Inf(1), math.Inf(-1)
	for i, rec := range fh.log.Data {
		t := fh.log.Times[i]
		if p.TimeRange != nil && (t < p.TimeRange[0] || t > p.TimeRange[1]) {
			continue
		}
		values = append(values, rec[idx].AsF64())
		if t < minTime {
			minTime = t
		}
		if t > maxTime {
			maxTime = t
		}
	}
	if len(values) == 0 {
		return ok("Stats", channelStats{})
	}
	return ok("Stats", computeChannelStats(values, minTime, maxTime))
}

// computeChannelStats computes count/min/max/mean/std_dev/median plus the
// timestamp bounds of the (possibly time_range-filtered) sample set.
func computeChannelStats(values []float64, minTime, maxTime float64) channelStats {
	n := len(values)
	min, max, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return channelStats{
		Count: n, Min: min, Max: max, Mean: mean,
		StdDev: math.Sqrt(variance), Median: median,
		MinTime: minTime, MaxTime: maxTime,
	}
}

// fileIDPayload2 is the common (file_id, channel_name) shape used by the
// selection/peaks handlers.
type fileIDPayload2 struct {
	FileID      string `json:"file_id"`
	ChannelName string `json:"channel_name"`
}

func (s *Store) cmdSelect(raw json.RawMessage, selected bool) Response {
	var p fileIDPayload2
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	if fh.log.ChannelIndex(p.ChannelName) < 0 {
		return errResponse("Unknown channel: %s", p.ChannelName)
	}
	if selected {
		fh.selected[p.ChannelName] = true
	} else {
		delete(fh.selected, p.ChannelName)
	}
	return ok("Ack", nil)
}

// cmdDeselectAllChannels clears selection across every loaded file: the
// original DeselectAllChannels command carries no file_id, so it applies
// globally rather than to a single handle.
func (s *Store) cmdDeselectAllChannels() Response {
	for _, fh := range s.files {
		fh.selected = make(map[string]bool)
	}
	return ok("Ack", nil)
}

type createComputedChannelPayload struct {
	FileID      string `json:"file_id"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
	Formula     string `json:"formula"`
}

func (s *Store) cmdCreateComputedChannel(raw json.RawMessage) Response {
	var p createComputedChannelPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}

	cf, err := compute.Build(fh.log, p.Formula)
	if err != nil {
		return errResponse("%v", err)
	}
	values := cf.EvaluateAll(fh.log)

	id := uuid.NewString()
	tmpl := logmodel.ComputedChannelTemplate{ID: id, Name: p.Name, Unit: p.Unit, Description: p.Description, Formula: p.Formula}
	fh.log.AppendColumn(logmodel.Channel{Name: p.Name, Unit: p.Unit, Kind: logmodel.ChannelScalarFloat}, values)
	fh.computed[id] = tmpl

	return ok("Ack", map[string]string{"id": id})
}

type deleteComputedChannelPayload struct {
	FileID string `json:"file_id"`
	ID     string `json:"id"`
}

func (s *Store) cmdDeleteComputedChannel(raw json.RawMessage) Response {
	var p deleteComputedChannelPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	tmpl, found := fh.computed[p.ID]
	if !found {
		return errResponse("Unknown computed channel: %s", p.ID)
	}
	idx := fh.log.ChannelIndex(tmpl.Name)
	if idx >= 0 {
		removeChannelAt(fh.log, idx)
	}
	delete(fh.computed, p.ID)
	return ok("Ack", nil)
}

// removeChannelAt deletes column idx in place, shifting every later
// column left by one. Used only by DeleteComputedChannel: plain decoded
// columns are never removed.
func removeChannelAt(log *logmodel.Log, idx int) {
	log.Channels = append(log.Channels[:idx], log.Channels[idx+1:]...)
	for i, rec := range log.Data {
		log.Data[i] = append(rec[:idx], rec[idx+1:]...)
	}
}

func (s *Store) cmdListComputedChannels(raw json.RawMessage) Response {
	var p fileIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	out := make([]logmodel.ComputedChannelTemplate, 0, len(fh.computed))
	for _, tmpl := range fh.computed {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return ok("ComputedChannels", out)
}

type evaluateFormulaPayload struct {
	FileID  string `json:"file_id"`
	Formula string `json:"formula"`
	Preview int    `json:"preview"`
}

func (s *Store) cmdEvaluateFormula(raw json.RawMessage) Response {
	var p evaluateFormulaPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	cf, err := compute.Build(fh.log, p.Formula)
	if err != nil {
		return errResponse("%v", err)
	}
	n := p.Preview
	if n <= 0 {
		n = len(fh.log.Times)
	}
	return ok("FormulaResult", map[string][]float64{"values": cf.GeneratePreview(fh.log, n)})
}

type timeRangePayload struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s *Store) cmdSetTimeRange(raw json.RawMessage) Response {
	var p timeRangePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	s.timeRange = [2]float64{p.Start, p.End}
	return ok("Ack", nil)
}

type cursorPayload struct {
	Time float64 `json:"time"`
}

func (s *Store) cmdSetCursor(raw json.RawMessage) Response {
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	s.cursor = p.Time
	return ok("Ack", nil)
}

func (s *Store) cmdGetCursorValues(raw json.RawMessage) Response {
	var p fileIDPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	idx := compute.NearestIndexAtOrBefore(fh.log.Times, s.cursor)
	values := make(map[string]float64, len(fh.log.Channels))
	if idx >= 0 {
		for i, c := range fh.log.Channels {
			values[c.Name] = fh.log.Data[idx][i].AsF64()
		}
	}
	return ok("CursorValues", values)
}

type findPeaksPayload struct {
	FileID        string  `json:"file_id"`
	ChannelName   string  `json:"channel_name"`
	MinProminence float64 `json:"min_prominence"`
}

type peak struct {
	Index int     `json:"index"`
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

func (s *Store) cmdFindPeaks(raw json.RawMessage) Response {
	var p findPeaksPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	idx := fh.log.ChannelIndex(p.ChannelName)
	if idx < 0 {
		return errResponse("Unknown channel: %s", p.ChannelName)
	}

	var peaks []peak
	for i := 1; i < len(fh.log.Data)-1; i++ {
		prev := fh.log.Data[i-1][idx].AsF64()
		cur := fh.log.Data[i][idx].AsF64()
		next := fh.log.Data[i+1][idx].AsF64()
		if cur <= prev || cur <= next {
			continue
		}
		if cur-math.Min(prev, next) < p.MinProminence {
			continue
		}
		peaks = append(peaks, peak{Index: i, Time: fh.log.Times[i], Value: cur})
	}
	return ok("Peaks", peaks)
}

type correlatePayload struct {
	FileID   string `json:"file_id"`
	ChannelA string `json:"channel_a"`
	ChannelB string `json:"channel_b"`
}

func (s *Store) cmdCorrelate(raw json.RawMessage) Response {
	var p correlatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	fh, err := s.handle(p.FileID)
	if err != nil {
		return errResponse("%v", err)
	}
	ia := fh.log.ChannelIndex(p.ChannelA)
	ib := fh.log.ChannelIndex(p.ChannelB)
	if ia < 0 || ib < 0 {
		return errResponse("Unknown channel: %s or %s", p.ChannelA, p.ChannelB)
	}
	coeff := pearson(fh.log, ia, ib)
	return ok("Correlation", map[string]any{
		"coefficient":    coeff,
		"interpretation": interpretCorrelation(coeff),
	})
}

// interpretCorrelation buckets a Pearson coefficient's magnitude into the
// conventional none/weak/moderate/strong/very strong bands.
func interpretCorrelation(coeff float64) string {
	a := math.Abs(coeff)
	switch {
	case math.IsNaN(coeff) || a < 0.1:
		return "none"
	case a < 0.3:
		return "weak"
	case a < 0.5:
		return "moderate"
	case a < 0.7:
		return "strong"
	default:
		return "very strong"
	}
}

func pearson(log *logmodel.Log, ia, ib int) float64 {
	n := len(log.Data)
	if n == 0 {
		return math.NaN()
	}
	var sumA, sumB float64
	for _, rec := range log.Data {
		sumA += rec[ia].AsF64()
		sumB += rec[ib].AsF64()
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for _, rec := range log.Data {
		da := rec[ia].AsF64() - meanA
		db := rec[ib].AsF64() - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

type viewTogglePayload struct {
	Enabled bool `json:"enabled"`
}

func (s *Store) cmdToggleView(raw json.RawMessage, field *bool) Response {
	var p viewTogglePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return errResponse("Invalid payload: %v", err)
	}
	*field = p.Enabled
	return ok("Ack", nil)
}
