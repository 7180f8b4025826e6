package bytesio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntegerReads(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	assert.EqualValues(t, 0x0201, U16LE(b, 0))
	assert.EqualValues(t, 0x0102, U16BE(b, 0))
	assert.EqualValues(t, 0x04030201, U32LE(b, 0))
	assert.EqualValues(t, 0x01020304, U32BE(b, 0))
	assert.EqualValues(t, 0x0807060504030201, U64LE(b, 0))
}

func TestShortSliceReturnsZero(t *testing.T) {
	b := []byte{0x01}
	assert.EqualValues(t, 0, U32LE(b, 0))
	assert.EqualValues(t, 0, U16LE(b, 5))
	assert.EqualValues(t, 0, U64BE(b, -1))
}

func TestReadCString(t *testing.T) {
	b := append([]byte("hello"), 0, 'X', 'X')
	assert.Equal(t, "hello", ReadCString(b, 0, 20))
	assert.Equal(t, "hel", ReadCString(b, 0, 3))
	assert.Equal(t, "", ReadCString(b, 100, 3))
}

func TestReadUTF16LE(t *testing.T) {
	// "Hi" in UTF-16LE followed by a NUL terminator.
	b := []byte{'H', 0, 'i', 0, 0, 0, 'Z', 0}
	assert.Equal(t, "Hi", ReadUTF16LE(b, 0, 10))
	assert.Equal(t, "", ReadUTF16LE(b, 100, 10))
}

func TestFind(t *testing.T) {
	hay := []byte("the quick brown fox")
	assert.Equal(t, 4, Find(hay, []byte("quick"), 0))
	assert.Equal(t, -1, Find(hay, []byte("slow"), 0))
	assert.Equal(t, -1, Find(hay, []byte("quick"), 5))
	assert.Equal(t, -1, Find(hay, []byte("x"), 100))
}
