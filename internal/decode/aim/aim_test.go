package aim

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putF32LE(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

// buildSample constructs a minimal XRK file: a signature, one <hCHS\0>
// channel record naming "RPM", and two )(G telemetry records.
func buildSample() []byte {
	b := []byte(signature)
	b = append(b, make([]byte, 12-len(b))...) // pad to offset 12

	chanStart := len(b)
	b = append(b, []byte(channelMarker)...)
	record := make([]byte, channelRecordLen)
	copy(record[shortNameOffset-len(channelMarker):], "RPM\x00") // name offsets count from the marker
	b = append(b, record...)
	_ = chanStart

	// First )(G telemetry record: 151 bytes, one float at offset 9.
	rec1 := make([]byte, 151)
	copy(rec1, dataMarker)
	putF32LE(rec1, floatsStart, 3000.0)
	b = append(b, rec1...)

	rec2 := make([]byte, 151)
	copy(rec2, dataMarker)
	putF32LE(rec2, floatsStart, 3200.0)
	b = append(b, rec2...)

	return b
}

func TestDecodeBasic(t *testing.T) {
	data := buildSample()
	log, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, log.Channels, 1)
	assert.Equal(t, "RPM", log.Channels[0].Name)

	require.Len(t, log.Times, 2)
	assert.InDelta(t, 0.0, log.Times[0], 1e-9)
	assert.InDelta(t, 0.01, log.Times[1], 1e-9)
	assert.Equal(t, 3000.0, log.Data[0][0].AsF64())
	assert.Equal(t, 3200.0, log.Data[1][0].AsF64())
}

func TestDecodeMissingSignature(t *testing.T) {
	_, err := Decode([]byte("not an xrk file"))
	assert.Error(t, err)
}

func TestDecodeNoChannelsYieldsEmptyData(t *testing.T) {
	data := append([]byte(signature), make([]byte, 20)...)
	log, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, log.Channels)
	assert.Empty(t, log.Times)
}
