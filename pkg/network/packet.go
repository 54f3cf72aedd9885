package network

import (
	"errors"
	"fmt"

	"github.com/skycoin/busnet/pkg/checksum"
	"github.com/skycoin/busnet/pkg/dll"
	"github.com/skycoin/busnet/pkg/routing"
)

// PacketType identifies the kind of a network packet.
type PacketType uint8

// Packet types.
const (
	DataPacket PacketType = iota
	LinkStatePacket
	PingRequestPacket
	PingResponsePacket
)

func (t PacketType) String() string {
	switch t {
	case DataPacket:
		return "data"
	case LinkStatePacket:
		return "link-state"
	case PingRequestPacket:
		return "ping-request"
	case PingResponsePacket:
		return "ping-response"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

const (
	headerSize   = 2
	checksumSize = 2

	// MaxPacketSize is the largest packet the link layer carries.
	MaxPacketSize = dll.MaxPacketSize

	// MaxPayloadSize is the largest payload a data packet carries.
	MaxPayloadSize = MaxPacketSize - offPayload - checksumSize

	// MaxNodeCount is the largest node list a link-state packet carries.
	MaxNodeCount = MaxPacketSize - offNodes - checksumSize

	pingRequestSize  = headerSize + checksumSize
	pingResponseSize = headerSize + 1 + checksumSize
	minPacketSize    = pingRequestSize
)

// Field offsets.
const (
	offCtrlL = 0
	offCtrlH = 1

	offSrc     = 2
	offDest    = 3
	offLength  = 4
	offPayload = 5

	offSeq   = 3
	offCount = 4
	offNodes = 5
)

var (
	// ErrInvalidPacket is returned by Parse for packets that fail validation.
	ErrInvalidPacket = errors.New("invalid packet")

	// ErrPayloadTooBig is returned for payloads over MaxPayloadSize.
	ErrPayloadTooBig = errors.New("payload too big")

	// ErrShortBuffer is returned when a destination buffer cannot hold the packet.
	ErrShortBuffer = errors.New("buffer too short for packet")
)

func header(dst []byte, t PacketType, mode checksum.Mode) {
	dst[offCtrlL] = 0
	dst[offCtrlH] = byte(t)<<4 | byte(mode&0x03)<<2
}

func typeOf(raw []byte) PacketType {
	return PacketType(raw[offCtrlH] >> 4)
}

func modeOf(raw []byte) checksum.Mode {
	return checksum.Mode(raw[offCtrlH] >> 2 & 0x03)
}

// seal appends the checksum of dst[:n] after it, low byte first, and returns
// the full packet length.
func seal(dst []byte, mode checksum.Mode, n int) int {
	sum := checksum.Generate(mode, dst[:n])
	dst[n] = byte(sum)
	dst[n+1] = byte(sum >> 8)
	return n + checksumSize
}

// EncodeData writes a data packet carrying payload into dst.
func EncodeData(dst []byte, mode checksum.Mode, src, dest routing.Addr, payload []byte) (int, error) {
	if len(payload) > MaxPayloadSize {
		return 0, ErrPayloadTooBig
	}
	if len(dst) < offPayload+len(payload)+checksumSize {
		return 0, ErrShortBuffer
	}
	copy(dst[offPayload:], payload)
	return encodeDataHeader(dst, mode, src, dest, len(payload)), nil
}

// encodeDataHeader completes a data packet whose payload is already in place.
func encodeDataHeader(dst []byte, mode checksum.Mode, src, dest routing.Addr, length int) int {
	header(dst, DataPacket, mode)
	dst[offSrc] = byte(src)
	dst[offDest] = byte(dest)
	dst[offLength] = byte(length)
	return seal(dst, mode, offPayload+length)
}

// EncodeLinkState writes a link-state packet into dst.
func EncodeLinkState(dst []byte, mode checksum.Mode, src routing.Addr, seq uint8, nodes []routing.Addr) (int, error) {
	if len(nodes) > MaxNodeCount {
		nodes = nodes[:MaxNodeCount]
	}
	if len(dst) < offNodes+len(nodes)+checksumSize {
		return 0, ErrShortBuffer
	}
	header(dst, LinkStatePacket, mode)
	dst[offSrc] = byte(src)
	dst[offSeq] = seq
	dst[offCount] = byte(len(nodes))
	for i, n := range nodes {
		dst[offNodes+i] = byte(n)
	}
	return seal(dst, mode, offNodes+len(nodes)), nil
}

// EncodePingRequest writes a ping request into dst.
func EncodePingRequest(dst []byte, mode checksum.Mode) (int, error) {
	if len(dst) < pingRequestSize {
		return 0, ErrShortBuffer
	}
	header(dst, PingRequestPacket, mode)
	return seal(dst, mode, headerSize), nil
}

// EncodePingResponse writes a ping response from src into dst.
func EncodePingResponse(dst []byte, mode checksum.Mode, src routing.Addr) (int, error) {
	if len(dst) < pingResponseSize {
		return 0, ErrShortBuffer
	}
	header(dst, PingResponsePacket, mode)
	dst[offSrc] = byte(src)
	return seal(dst, mode, headerSize+1), nil
}

// ValidatePacket reports whether raw is a well-formed packet: long enough,
// checksum correct under the mode its header names, and exactly as long as
// its length fields declare.
func ValidatePacket(raw []byte) bool {
	if len(raw) < minPacketSize {
		return false
	}

	n := len(raw) - checksumSize
	sum := uint16(raw[n]) | uint16(raw[n+1])<<8
	if !checksum.Verify(modeOf(raw), sum, raw[:n]) {
		return false
	}

	switch typeOf(raw) {
	case DataPacket:
		return len(raw) > offLength && len(raw) == offPayload+int(raw[offLength])+checksumSize
	case LinkStatePacket:
		return len(raw) > offCount && len(raw) == offNodes+int(raw[offCount])+checksumSize
	case PingRequestPacket:
		return len(raw) == pingRequestSize
	case PingResponsePacket:
		return len(raw) == pingResponseSize
	default:
		return false
	}
}

// Packet is a parsed network packet. Slices alias the buffer it was parsed from.
type Packet struct {
	Type    PacketType
	Mode    checksum.Mode
	Src     routing.Addr
	Dest    routing.Addr
	Seq     uint8
	Nodes   []routing.Addr
	Payload []byte
}

func (p *Packet) String() string {
	switch p.Type {
	case DataPacket:
		return fmt.Sprintf("%s %d->%d len=%d", p.Type, p.Src, p.Dest, len(p.Payload))
	case LinkStatePacket:
		return fmt.Sprintf("%s src=%d seq=%d nodes=%v", p.Type, p.Src, p.Seq, p.Nodes)
	case PingResponsePacket:
		return fmt.Sprintf("%s src=%d", p.Type, p.Src)
	default:
		return p.Type.String()
	}
}

// ParsePacket validates raw and decodes it.
func ParsePacket(raw []byte) (Packet, error) {
	if !ValidatePacket(raw) {
		return Packet{}, ErrInvalidPacket
	}

	p := Packet{Type: typeOf(raw), Mode: modeOf(raw)}
	switch p.Type {
	case DataPacket:
		p.Src = routing.Addr(raw[offSrc])
		p.Dest = routing.Addr(raw[offDest])
		p.Payload = raw[offPayload : offPayload+int(raw[offLength])]
	case LinkStatePacket:
		p.Src = routing.Addr(raw[offSrc])
		p.Seq = raw[offSeq]
		count := int(raw[offCount])
		p.Nodes = make([]routing.Addr, count)
		for i := 0; i < count; i++ {
			p.Nodes[i] = routing.Addr(raw[offNodes+i])
		}
	case PingResponsePacket:
		p.Src = routing.Addr(raw[offSrc])
	}
	return p, nil
}
