package checksum

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		data []byte
		want uint16
	}{
		{"none", None, []byte{0xFF, 0x01}, 0},
		{"empty", EvenParity, nil, 0},
		{"single bit", EvenParity, []byte{0x01}, 1},
		{"two bits", EvenParity, []byte{0x03}, 0},
		{"across bytes", EvenParity, []byte{0x01, 0x80, 0x10}, 1},
		{"all ones", EvenParity, []byte{0xFF, 0xFF, 0xFF}, 0},
		{"unknown mode", Mode(3), []byte{0x01}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Generate(tt.mode, tt.data))
		})
	}
}

func TestVerify(t *testing.T) {
	data := []byte{0x00, 0x04, 0x07, 0x01, 0x05}

	assert.True(t, Verify(None, 0xBEEF, data))
	assert.True(t, Verify(EvenParity, Generate(EvenParity, data), data))
	assert.False(t, Verify(EvenParity, Generate(EvenParity, data)^1, data))
	assert.False(t, Verify(Mode(7), 0, data))
}

func TestParityIgnoresByteOrder(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		data := make([]byte, 1+r.Intn(40))
		r.Read(data) // nolint: errcheck

		shuffled := append([]byte(nil), data...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		assert.Equal(t, Generate(EvenParity, data), Generate(EvenParity, shuffled))
	}
}

func TestParitySingleBitFlip(t *testing.T) {
	data := []byte{0x12, 0x34, 0x56, 0x78}
	sum := Generate(EvenParity, data)

	for i := range data {
		for bit := uint(0); bit < 8; bit++ {
			flipped := append([]byte(nil), data...)
			flipped[i] ^= 1 << bit
			assert.NotEqual(t, sum, Generate(EvenParity, flipped), "byte %d bit %d", i, bit)
		}
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "even-parity", EvenParity.String())
	assert.Equal(t, "unknown(9)", Mode(9).String())
	assert.False(t, Mode(2).Valid())
}
