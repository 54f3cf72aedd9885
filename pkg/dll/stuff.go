package dll

import "errors"

const (
	// Flag delimits a frame on the wire.
	Flag = 0x7E
	// Escape precedes a literal Flag or Escape byte inside a frame.
	Escape = 0x7D
)

var (
	// ErrBadFlag is returned by Unstuff when the frame does not open with Flag.
	ErrBadFlag = errors.New("frame does not start with flag byte")

	// ErrLengthMismatch is returned by Unstuff when the closing flag is
	// missing or is not the last byte of the frame.
	ErrLengthMismatch = errors.New("stuffed frame length mismatch")

	// ErrShortBuffer is returned when the destination cannot hold the result.
	ErrShortBuffer = errors.New("destination buffer too small")
)

// StuffedLen returns the worst-case stuffed length of an n-byte frame.
func StuffedLen(n int) int {
	return 2*n + 2
}

// Stuff writes raw into dst enclosed in flag bytes, escaping every interior
// Flag or Escape byte, and returns the number of bytes written.
// dst must have room for StuffedLen(len(raw)) bytes.
func Stuff(dst, raw []byte) (int, error) {
	if len(dst) < StuffedLen(len(raw)) {
		return 0, ErrShortBuffer
	}

	n := 0
	dst[n] = Flag
	n++
	for _, b := range raw {
		if b == Flag || b == Escape {
			dst[n] = Escape
			n++
		}
		dst[n] = b
		n++
	}
	dst[n] = Flag
	n++

	return n, nil
}

// Unstuff reverses Stuff. It checks the opening flag, drops the escape byte
// in front of every escaped Flag or Escape, and stops at the first unescaped
// Flag. The number of bytes consumed must equal len(stuffed); anything else
// means the frame was truncated or corrupted. An Escape followed by any
// other byte is kept as is.
func Unstuff(dst, stuffed []byte) (int, error) {
	if len(stuffed) == 0 || stuffed[0] != Flag {
		return 0, ErrBadFlag
	}

	n := 0
	for i := 1; i < len(stuffed); i++ {
		b := stuffed[i]
		switch {
		case b == Flag:
			if i+1 != len(stuffed) {
				return 0, ErrLengthMismatch
			}
			return n, nil
		case b == Escape && i+1 < len(stuffed) && (stuffed[i+1] == Flag || stuffed[i+1] == Escape):
			i++
			b = stuffed[i]
		}
		if n == len(dst) {
			return 0, ErrShortBuffer
		}
		dst[n] = b
		n++
	}

	return 0, ErrLengthMismatch
}
