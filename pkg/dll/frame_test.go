package dll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/busnet/pkg/checksum"
)

func TestEncodeDataFrame(t *testing.T) {
	buf := make([]byte, MaxFrameSize)
	n, err := EncodeDataFrame(buf, checksum.EvenParity, 0xA2, 0xA1, 1, true, []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	// ctrl_h: data | seq | final | even parity
	hi := byte(0x01 | 0x04 | 0x08 | 0x10)
	sum := checksum.Generate(checksum.EvenParity, []byte{0x00, hi, 0xA2, 0xA1, 0x03, 0x01, 0x02, 0x03})
	want := []byte{0x00, hi, 0xA2, 0xA1, 0x03, 0x01, 0x02, 0x03, byte(sum >> 8), byte(sum)}
	assert.Equal(t, want, buf[:n])

	f, err := DecodeFrame(buf[:n])
	require.NoError(t, err)
	assert.True(t, f.Data)
	assert.Equal(t, uint8(1), f.Seq)
	assert.True(t, f.Final)
	assert.Equal(t, checksum.EvenParity, f.Mode)
	assert.Equal(t, Addr(0xA2), f.Dest)
	assert.Equal(t, Addr(0xA1), f.Src)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, f.Payload)
	assert.True(t, f.Verify())
}

func TestEncodeControlFrame(t *testing.T) {
	buf := make([]byte, controlFrameSize)
	n, err := EncodeControlFrame(buf, checksum.EvenParity, ControlAck, 0xA1, 0xA2, 1)
	require.NoError(t, err)
	require.Equal(t, controlFrameSize, n)

	assert.Equal(t, byte(ControlAck), buf[0])
	assert.Equal(t, byte(0x04|0x10), buf[1])
	assert.Equal(t, byte(0xA1), buf[2])
	assert.Equal(t, byte(0xA2), buf[3])

	f, err := DecodeFrame(buf[:n])
	require.NoError(t, err)
	assert.False(t, f.Data)
	assert.Equal(t, ControlAck, f.Type)
	assert.Equal(t, uint8(1), f.Seq)
	assert.True(t, f.Verify())
}

func TestEncodeDataFrameTooBig(t *testing.T) {
	_, err := EncodeDataFrame(make([]byte, 64), checksum.None, 1, 2, 0, true, make([]byte, MaxFragmentSize+1))
	assert.Equal(t, ErrPacketTooBig, err)

	_, err = EncodeDataFrame(make([]byte, 8), checksum.None, 1, 2, 0, true, make([]byte, 4))
	assert.Equal(t, ErrShortBuffer, err)
}

func TestDecodeFrameErrors(t *testing.T) {
	buf := make([]byte, MaxFrameSize)
	n, err := EncodeDataFrame(buf, checksum.EvenParity, 2, 1, 0, true, []byte{9, 9})
	require.NoError(t, err)

	_, err = DecodeFrame(buf[:4])
	assert.Equal(t, ErrFrameTooShort, err)

	_, err = DecodeFrame(buf[:n-1])
	assert.Equal(t, ErrFrameLength, err)

	ctrl := make([]byte, controlFrameSize+1)
	_, err = EncodeControlFrame(ctrl, checksum.None, ControlAck, 1, 2, 0)
	require.NoError(t, err)
	_, err = DecodeFrame(ctrl)
	assert.Equal(t, ErrFrameLength, err)
}

func TestFrameVerifyDetectsCorruption(t *testing.T) {
	buf := make([]byte, MaxFrameSize)
	n, err := EncodeDataFrame(buf, checksum.EvenParity, 2, 1, 0, true, []byte{0x10, 0x20})
	require.NoError(t, err)

	buf[offData] ^= 0x01
	f, err := DecodeFrame(buf[:n])
	require.NoError(t, err)
	assert.False(t, f.Verify())
}
