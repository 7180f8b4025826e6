package romraider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = "Time (msec),Engine Speed,Coolant Temp\n" +
	"1000,3000,90\n" +
	"1100,3200,91\n"

func TestDecodeBasic(t *testing.T) {
	log, err := Decode([]byte(sampleLog))
	require.NoError(t, err)

	require.Len(t, log.Channels, 2)
	assert.Equal(t, "Engine Speed", log.Channels[0].Name)
	assert.Equal(t, "", log.Channels[0].Unit)
	assert.Equal(t, "Coolant Temp", log.Channels[1].Name)
	assert.Equal(t, "K", log.Channels[1].Unit)

	require.Len(t, log.Times, 2)
	assert.InDelta(t, 0.0, log.Times[0], 1e-9)
	assert.InDelta(t, 0.1, log.Times[1], 1e-9)
}

func TestDecodeParenthesizedUnits(t *testing.T) {
	log, err := Decode([]byte("Time (msec),RPM (rpm)\n0,1000\n"))
	require.NoError(t, err)
	assert.Equal(t, "rpm", log.Channels[0].Unit)
}

func TestDecodeMissingHeader(t *testing.T) {
	_, err := Decode([]byte("RPM,MAP\n1000,100\n"))
	assert.Error(t, err)
}
