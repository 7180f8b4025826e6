package compute

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedtrace/logcore/pkg/logmodel"
)

func sampleLog() *logmodel.Log {
	return &logmodel.Log{
		Channels: []logmodel.Channel{
			{Name: "RPM", Unit: "RPM"},
			{Name: "MAP", Unit: "kPa"},
			{Name: "Throttle Position", Unit: "%"},
		},
		Times: []float64{0.0, 1.0, 2.0, 3.0},
		Data: [][]logmodel.Value{
			{logmodel.CoerceF64(1000), logmodel.CoerceF64(50), logmodel.CoerceF64(10)},
			{logmodel.CoerceF64(2000), logmodel.CoerceF64(60), logmodel.CoerceF64(20)},
			{logmodel.CoerceF64(3000), logmodel.CoerceF64(70), logmodel.CoerceF64(30)},
			{logmodel.CoerceF64(4000), logmodel.CoerceF64(80), logmodel.CoerceF64(40)},
		},
	}
}

func TestExtractChannelReferences(t *testing.T) {
	refs, err := ExtractChannelReferences(`RPM / 2 + MAP`)
	require.NoError(t, err)
	assert.True(t, refs["RPM"])
	assert.True(t, refs["MAP"])
	assert.Len(t, refs, 2)
}

func TestExtractChannelReferencesQuoted(t *testing.T) {
	refs, err := ExtractChannelReferences(`"Throttle Position" * 2`)
	require.NoError(t, err)
	assert.True(t, refs["Throttle Position"])
}

func TestValidateUnknownChannel(t *testing.T) {
	err := Validate(`RPM + Bogus`, []string{"RPM", "MAP"})
	assert.Error(t, err)
}

func TestValidateOK(t *testing.T) {
	err := Validate(`RPM / MAP`, []string{"RPM", "MAP"})
	assert.NoError(t, err)
}

func TestEvaluateAllBasicArithmetic(t *testing.T) {
	log := sampleLog()
	cf, err := Build(log, `RPM / 2`)
	require.NoError(t, err)
	out := cf.EvaluateAll(log)
	require.Len(t, out, 4)
	assert.InDelta(t, 500.0, out[0], 1e-9)
	assert.InDelta(t, 2000.0, out[3], 1e-9)
}

func TestEvaluateAllQuotedChannel(t *testing.T) {
	log := sampleLog()
	cf, err := Build(log, `"Throttle Position" * 2`)
	require.NoError(t, err)
	out := cf.EvaluateAll(log)
	assert.InDelta(t, 20.0, out[0], 1e-9)
}

func TestEvaluateAllIndexShift(t *testing.T) {
	log := sampleLog()
	cf, err := Build(log, `RPM - RPM[-1]`)
	require.NoError(t, err)
	out := cf.EvaluateAll(log)
	assert.InDelta(t, 1000.0, out[0], 1e-9) // out-of-range shift resolves to 0.0
	assert.InDelta(t, 1000.0, out[1], 1e-9)
	assert.InDelta(t, 1000.0, out[3], 1e-9)
}

func TestEvaluateAllTimeShift(t *testing.T) {
	log := sampleLog()
	cf, err := Build(log, `RPM[t: -1.0]`)
	require.NoError(t, err)
	out := cf.EvaluateAll(log)
	assert.InDelta(t, 0.0, out[0], 1e-9) // no sample at t=-1, falls back to 0.0
	assert.InDelta(t, 1000.0, out[1], 1e-9)
	assert.InDelta(t, 3000.0, out[3], 1e-9)
}

func TestEvaluateAllDivisionByZeroYieldsNaNNotPanic(t *testing.T) {
	log := &logmodel.Log{
		Channels: []logmodel.Channel{{Name: "A"}, {Name: "B"}},
		Times:    []float64{0.0, 1.0},
		Data: [][]logmodel.Value{
			{logmodel.CoerceF64(10), logmodel.CoerceF64(0)},
			{logmodel.CoerceF64(10), logmodel.CoerceF64(2)},
		},
	}
	cf, err := Build(log, `A / B`)
	require.NoError(t, err)
	out := cf.EvaluateAll(log)
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 5.0, out[1], 1e-9)
}

func TestGeneratePreviewBounded(t *testing.T) {
	log := sampleLog()
	cf, err := Build(log, `RPM`)
	require.NoError(t, err)
	out := cf.GeneratePreview(log, 2)
	assert.Len(t, out, 2)
	assert.InDelta(t, 1000.0, out[0], 1e-9)
}

func TestBuildUnknownChannelErrors(t *testing.T) {
	log := sampleLog()
	_, err := Build(log, `NoSuchChannel + 1`)
	assert.Error(t, err)
}

func TestAppendColumnCommitsComputedChannel(t *testing.T) {
	log := sampleLog()
	cf, err := Build(log, `RPM / 1000`)
	require.NoError(t, err)
	values := cf.EvaluateAll(log)
	log.AppendColumn(logmodel.Channel{Name: "RPM (krpm)", Unit: "krpm"}, values)
	require.Len(t, log.Channels, 4)
	assert.InDelta(t, 1.0, log.Data[0][3].AsF64(), 1e-9)
}
