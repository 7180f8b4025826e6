package speeduino

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// numFieldsOffset is the byte offset of the num_logger_fields field in the
// v1 layout built by buildV1Sample: 6 (magic) + 2 (version) + 4 (creation
// timestamp) + 2 (info_data_start) + 4 (data_begin_index) + 2 (record_length).
const numFieldsOffset = 6 + 2 + 4 + 2 + 4 + 2

// buildV1Sample constructs a minimal v1 MLG file with a single U16 field
// "RPM" (scale 1.0, transform 0.0) and two data records.
func buildV1Sample() []byte {
	var b []byte
	b = append(b, []byte("MLVLG\x00")...)
	b = appendI16(b, 1) // format version
	b = appendI32(b, 0) // creation timestamp

	infoDataStartOff := len(b)
	_ = infoDataStartOff
	// info_data_start placeholder, patched below
	b = appendU16(b, 0)

	dataBeginIndexPatchOff := len(b)
	b = appendU32(b, 0) // data_begin_index placeholder
	b = appendU16(b, 0) // record_length (unused)
	b = appendU16(b, 1) // num_logger_fields

	// One field descriptor: type U16, name "RPM", unit "rpm".
	b = append(b, 2) // type = U16
	b = append(b, padName("RPM", 34)...)
	b = append(b, padName("rpm", 10)...)
	b = append(b, 0) // display style
	b = appendF32(b, 1.0)
	b = appendF32(b, 0.0)
	b = append(b, 0) // digits

	dataBegin := len(b)
	binary.BigEndian.PutUint32(b[dataBeginIndexPatchOff:], uint32(dataBegin))

	// Data record 1: type=0, counter=0, timestamp=1000ms, RPM=3000
	b = append(b, 0, 0)
	b = appendU16(b, 1000)
	b = appendU16(b, 3000)
	b = append(b, 0xAA) // CRC

	// Data record 2: timestamp=1100ms, RPM=3200
	b = append(b, 0, 0)
	b = appendU16(b, 1100)
	b = appendU16(b, 3200)
	b = append(b, 0xAA)

	return b
}

func padName(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

func appendU16(b []byte, v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return append(b, buf...)
}

func appendU32(b []byte, v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return append(b, buf...)
}

func appendI16(b []byte, v int16) []byte {
	return appendU16(b, uint16(v))
}

func appendI32(b []byte, v int32) []byte {
	return appendU32(b, uint32(v))
}

func appendF32(b []byte, v float32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return append(b, buf...)
}

func TestDecodeBasic(t *testing.T) {
	data := buildV1Sample()
	log, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, log.Channels, 1)
	assert.Equal(t, "RPM", log.Channels[0].Name)
	assert.Equal(t, "rpm", log.Channels[0].Unit)

	require.Len(t, log.Times, 2)
	assert.InDelta(t, 1.0, log.Times[0], 1e-9)
	assert.InDelta(t, 1.1, log.Times[1], 1e-9)
	assert.Equal(t, 3000.0, log.Data[0][0].AsF64())
	assert.Equal(t, 3200.0, log.Data[1][0].AsF64())
}

func TestDecodeMissingHeader(t *testing.T) {
	_, err := Decode([]byte("not an mlg file"))
	assert.Error(t, err)
}

func TestDecodeRejectsUnreasonableFieldCount(t *testing.T) {
	data := buildV1Sample()
	binary.BigEndian.PutUint16(data[numFieldsOffset:numFieldsOffset+2], 5000)
	_, err := Decode(data)
	assert.Error(t, err)
}
