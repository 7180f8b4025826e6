package ecumaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = "TIME;Sensors/IAT_C;Sensors/MAP_kpa\n" +
	"0.0;20;100\n" +
	"0.1;;105\n" +
	"0.2;25;\n"

func TestDecodeBasic(t *testing.T) {
	log, err := Decode([]byte(sampleLog))
	require.NoError(t, err)

	require.Len(t, log.Channels, 2)
	assert.Equal(t, "Sensors/IAT_C", log.Channels[0].Name)
	assert.Equal(t, "K", log.Channels[0].Unit)
	assert.Equal(t, "kPa", log.Channels[1].Unit)

	require.Len(t, log.Times, 3)
	assert.InDelta(t, 0.0, log.Times[0], 1e-9)
	assert.InDelta(t, 0.1, log.Times[1], 1e-9)

	// Celsius-hinted channel is converted to kelvin on decode.
	assert.InDelta(t, 293.15, log.Data[0][0].AsF64(), 1e-9)
	// Sparse cell carries forward the previous (already-converted) value.
	assert.InDelta(t, 293.15, log.Data[1][0].AsF64(), 1e-9)
	assert.InDelta(t, 105.0, log.Data[1][1].AsF64(), 1e-9)
	assert.InDelta(t, 105.0, log.Data[2][1].AsF64(), 1e-9)
}

func TestDecodeMissingHeader(t *testing.T) {
	_, err := Decode([]byte("RPM;MAP\n1000;100\n"))
	assert.Error(t, err)
}
