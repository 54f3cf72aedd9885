package dll

import (
	"errors"
	"fmt"

	"github.com/skycoin/busnet/pkg/checksum"
)

// ControlType is the type of a control frame, carried in its first control byte.
type ControlType uint8

// Control frame types.
const (
	ControlAck  = ControlType(1)
	ControlRTC  = ControlType(2)
	ControlCTC  = ControlType(3)
	ControlBusy = ControlType(4)
)

func (t ControlType) String() string {
	switch t {
	case ControlAck:
		return "ACK"
	case ControlRTC:
		return "RTC"
	case ControlCTC:
		return "CTC"
	case ControlBusy:
		return "BUSY"
	default:
		return fmt.Sprintf("control(%d)", uint8(t))
	}
}

// Bits of the high control byte.
const (
	ctrlData      = 1 << 0
	ctrlSeq       = 1 << 2
	ctrlFinal     = 1 << 3
	ctrlModeShift = 4
)

// Frame field offsets, relative to the byte after the opening flag.
const (
	offCtrlL  = 0
	offCtrlH  = 1
	offDest   = 2
	offSrc    = 3
	offLength = 4
	offData   = 5

	controlFrameSize = 6
	dataOverhead     = offData + 2

	// MaxFrameSize is the largest unstuffed frame, flags excluded.
	MaxFrameSize = dataOverhead + MaxFragmentSize
	// MaxStuffedFrameSize is the largest frame on the wire.
	MaxStuffedFrameSize = 2*MaxFrameSize + 2
)

var (
	// ErrFrameTooShort is returned for frames shorter than a control frame.
	ErrFrameTooShort = errors.New("frame too short")
	// ErrFrameLength is returned when a data frame's length field disagrees with its size.
	ErrFrameLength = errors.New("frame length field mismatch")
)

// Frame is a decoded link-layer frame.
type Frame struct {
	Data     bool        // data frame when true, control frame otherwise
	Type     ControlType // control frames only
	Seq      uint8
	Final    bool
	Mode     checksum.Mode
	Dest     Addr
	Src      Addr
	Payload  []byte
	Checksum uint16

	covered []byte
}

// Verify checks the frame's checksum against the bytes it covers.
func (f *Frame) Verify() bool {
	return checksum.Verify(f.Mode, f.Checksum, f.covered)
}

func (f *Frame) String() string {
	if !f.Data {
		return fmt.Sprintf("%s seq=%d %s->%s", f.Type, f.Seq, f.Src, f.Dest)
	}
	return fmt.Sprintf("DATA seq=%d final=%t len=%d %s->%s", f.Seq, f.Final, len(f.Payload), f.Src, f.Dest)
}

func controlHigh(data bool, seq uint8, final bool, mode checksum.Mode) byte {
	var b byte
	if data {
		b |= ctrlData
	}
	if seq&1 == 1 {
		b |= ctrlSeq
	}
	if final {
		b |= ctrlFinal
	}
	return b | byte(mode)<<ctrlModeShift
}

// EncodeDataFrame writes an unstuffed data frame into dst and returns its length.
func EncodeDataFrame(dst []byte, mode checksum.Mode, dest, src Addr, seq uint8, final bool, payload []byte) (int, error) {
	if len(payload) > MaxFragmentSize {
		return 0, ErrPacketTooBig
	}
	size := dataOverhead + len(payload)
	if len(dst) < size {
		return 0, ErrShortBuffer
	}

	dst[offCtrlL] = 0
	dst[offCtrlH] = controlHigh(true, seq, final, mode)
	dst[offDest] = byte(dest)
	dst[offSrc] = byte(src)
	dst[offLength] = byte(len(payload))
	copy(dst[offData:], payload)

	sum := checksum.Generate(mode, dst[:offData+len(payload)])
	dst[size-2] = byte(sum >> 8)
	dst[size-1] = byte(sum)

	return size, nil
}

// EncodeControlFrame writes an unstuffed control frame into dst and returns its length.
func EncodeControlFrame(dst []byte, mode checksum.Mode, t ControlType, dest, src Addr, seq uint8) (int, error) {
	if len(dst) < controlFrameSize {
		return 0, ErrShortBuffer
	}

	dst[offCtrlL] = byte(t)
	dst[offCtrlH] = controlHigh(false, seq, false, mode)
	dst[offDest] = byte(dest)
	dst[offSrc] = byte(src)

	sum := checksum.Generate(mode, dst[:4])
	dst[4] = byte(sum >> 8)
	dst[5] = byte(sum)

	return controlFrameSize, nil
}

// DecodeFrame parses an unstuffed frame. It checks the frame's structure
// only; use Frame.Verify for the checksum. The returned frame references b.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < controlFrameSize {
		return Frame{}, ErrFrameTooShort
	}

	hi := b[offCtrlH]
	f := Frame{
		Data:  hi&ctrlData != 0,
		Seq:   (hi & ctrlSeq) >> 2,
		Final: hi&ctrlFinal != 0,
		Mode:  checksum.Mode(hi >> ctrlModeShift),
		Dest:  Addr(b[offDest]),
		Src:   Addr(b[offSrc]),
	}

	if !f.Data {
		if len(b) != controlFrameSize {
			return Frame{}, ErrFrameLength
		}
		f.Type = ControlType(b[offCtrlL])
		f.Checksum = uint16(b[4])<<8 | uint16(b[5])
		f.covered = b[:4]
		return f, nil
	}

	if len(b) < dataOverhead {
		return Frame{}, ErrFrameTooShort
	}
	n := int(b[offLength])
	if n > MaxFragmentSize || len(b) != dataOverhead+n {
		return Frame{}, ErrFrameLength
	}
	f.Payload = b[offData : offData+n]
	f.Checksum = uint16(b[offData+n])<<8 | uint16(b[offData+n+1])
	f.covered = b[:offData+n]
	return f, nil
}
