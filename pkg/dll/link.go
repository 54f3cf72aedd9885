package dll

import (
	"context"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/busnet/internal/metrics"
	"github.com/skycoin/busnet/pkg/checksum"
	"github.com/skycoin/busnet/pkg/phy"
)

// Defaults for Config.
const (
	DefaultAckTimeout   = 50 * time.Millisecond
	DefaultMaxRetries   = 5
	DefaultPollInterval = time.Millisecond

	maxQueuedDeliveries = 16
)

// Receiver is handed every packet the link reassembles. The data slice is
// only valid for the duration of the call.
type Receiver interface {
	ReceivePacket(ctx context.Context, src Addr, data []byte)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, src Addr, data []byte)

// ReceivePacket implements Receiver.
func (f ReceiverFunc) ReceivePacket(ctx context.Context, src Addr, data []byte) {
	f(ctx, src, data)
}

// Config configures a Link.
type Config struct {
	Address      Addr
	ChecksumMode checksum.Mode
	AckTimeout   time.Duration
	MaxRetries   int
	PollInterval time.Duration
	Logger       *logging.Logger
	Metrics      metrics.Stack
}

// Latches holds the control frames other than ACK seen since the last call to Link.Latches.
type Latches struct {
	RTC  bool
	CTC  bool
	Busy bool
}

type delivery struct {
	src  Addr
	data []byte
}

type reassembly struct {
	active bool
	src    Addr
	expect uint8
	n      int
	last   time.Time
	buf    [MaxPacketSize]byte
}

// peerSeq is the sequence bit of the last fragment accepted from a peer.
type peerSeq struct {
	valid bool
	seq   uint8
	at    time.Time
}

type ackLatch struct {
	pending bool
	src     Addr
	seq     uint8
}

// Link is one node's data-link endpoint. It is not safe for concurrent use:
// Send, SendPacket and Update must be called from a single goroutine (or
// under the caller's lock).
type Link struct {
	conf    Config
	tr      phy.Transport
	log     *logging.Logger
	metrics metrics.Stack
	recv    Receiver

	txPacket   [MaxPacketSize]byte
	txReserved bool
	txFrame    [MaxFrameSize]byte
	txStuffed  [MaxStuffedFrameSize]byte
	ctrlFrame  [controlFrameSize]byte
	ctrlStuff  [2*controlFrameSize + 2]byte
	rxStuffed  [phy.MaxFrameSize]byte
	rxFrame    [phy.MaxFrameSize]byte

	txSeq   [256]uint8
	rxSeq   [256]peerSeq
	rx      reassembly
	ack     ackLatch
	latches Latches
	queue   []delivery
}

// New creates a Link over tr.
func New(tr phy.Transport, conf Config) *Link {
	if conf.AckTimeout <= 0 {
		conf.AckTimeout = DefaultAckTimeout
	}
	if conf.MaxRetries < 0 {
		conf.MaxRetries = 0
	}
	if conf.PollInterval <= 0 {
		conf.PollInterval = DefaultPollInterval
	}
	if conf.Logger == nil {
		conf.Logger = log
	}
	if conf.Metrics == nil {
		conf.Metrics = metrics.NewDummyStack()
	}
	return &Link{
		conf:    conf,
		tr:      tr,
		log:     conf.Logger,
		metrics: conf.Metrics,
	}
}

// Address returns the link's hardware address.
func (l *Link) Address() Addr {
	return l.conf.Address
}

// SetReceiver sets where reassembled packets are delivered. A nil Receiver discards them.
func (l *Link) SetReceiver(r Receiver) {
	l.recv = r
}

// Latches returns the control latches and clears them.
func (l *Link) Latches() Latches {
	out := l.latches
	l.latches = Latches{}
	return out
}

// Buffer reserves the transmit buffer and returns its first n bytes for the
// caller to fill before calling Send. The reservation is released by Send or Discard.
func (l *Link) Buffer(n int) ([]byte, error) {
	if n < 0 || n > MaxPacketSize {
		return nil, ErrPacketTooBig
	}
	if l.txReserved {
		return nil, ErrBufferInUse
	}
	l.txReserved = true
	return l.txPacket[:n], nil
}

// Discard releases the transmit buffer without sending.
func (l *Link) Discard() {
	l.txReserved = false
}

// SendPacket copies pkt into the transmit buffer and sends it to dest.
func (l *Link) SendPacket(ctx context.Context, dest Addr, pkt []byte) error {
	buf, err := l.Buffer(len(pkt))
	if err != nil {
		return err
	}
	copy(buf, pkt)
	return l.Send(ctx, dest, len(pkt))
}

// Send transmits the first length bytes of the transmit buffer to dest,
// one fragment at a time, waiting for each fragment to be acknowledged.
// Broadcasts are sent once and never acknowledged.
//
// The sequence bit alternates per fragment and carries over between packets
// to the same destination.
func (l *Link) Send(ctx context.Context, dest Addr, length int) error {
	defer l.Discard()

	if length < 0 || length > MaxPacketSize || (dest == BroadcastAddr && length > MaxFragmentSize) {
		return ErrPacketTooBig
	}

	var seq uint8
	if dest != BroadcastAddr {
		seq = l.txSeq[dest]
	}
	for off := 0; ; {
		n := length - off
		if n > MaxFragmentSize {
			n = MaxFragmentSize
		}
		final := off+n == length

		size, err := EncodeDataFrame(l.txFrame[:], l.conf.ChecksumMode, dest, l.conf.Address, seq, final, l.txPacket[off:off+n])
		if err != nil {
			return err
		}
		stuffed, err := Stuff(l.txStuffed[:], l.txFrame[:size])
		if err != nil {
			return err
		}
		sent, err := l.sendFrame(ctx, dest, seq, l.txStuffed[:stuffed])
		if sent && dest != BroadcastAddr {
			// The peer may have taken the frame even if its ACK never came back.
			seq ^= 1
			l.txSeq[dest] = seq
		}
		if err != nil {
			l.log.Debugf("send to %s failed at offset %d/%d: %v", dest, off, length, err)
			return err
		}

		off += n
		if final {
			return nil
		}
	}
}

// sendFrame transmits frame until dest acknowledges seq. sent reports
// whether the frame reached the medium at least once.
func (l *Link) sendFrame(ctx context.Context, dest Addr, seq uint8, frame []byte) (sent bool, err error) {
	for attempt := 0; attempt <= l.conf.MaxRetries; attempt++ {
		if attempt > 0 {
			l.metrics.Retransmission()
			l.log.Debugf("retransmitting seq %d to %s (attempt %d)", seq, dest, attempt+1)
		}

		l.ack = ackLatch{}
		if !l.tr.TransmitFrame(frame) {
			return sent, ErrNodeUnreachable
		}
		sent = true
		l.metrics.FrameSent()

		if dest == BroadcastAddr {
			return sent, nil
		}

		acked, err := l.awaitAck(ctx, dest, seq)
		if err != nil {
			return sent, err
		}
		if acked {
			return sent, nil
		}
	}
	return sent, ErrAckTimeout
}

// awaitAck polls the transport until dest acknowledges seq, the ack timeout
// passes, or ctx is done. Frames that arrive meanwhile are processed as usual.
func (l *Link) awaitAck(ctx context.Context, dest Addr, seq uint8) (bool, error) {
	timeout := time.NewTimer(l.conf.AckTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(l.conf.PollInterval)
	defer ticker.Stop()

	for {
		for l.poll() {
			if l.ack.pending {
				matched := l.ack.src == dest && l.ack.seq == seq
				l.ack = ackLatch{}
				if matched {
					return true, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timeout.C:
			return false, nil
		case <-ticker.C:
		}
	}
}

// Update processes at most one pending frame and delivers any packets
// completed since the last call. Call it periodically.
func (l *Link) Update(ctx context.Context) {
	l.flush(ctx)
	if l.poll() {
		l.flush(ctx)
	}
}

func (l *Link) flush(ctx context.Context) {
	for len(l.queue) > 0 {
		d := l.queue[0]
		l.queue = l.queue[1:]
		if l.recv != nil {
			l.recv.ReceivePacket(ctx, d.src, d.data)
		}
	}
}

func (l *Link) poll() bool {
	n := l.tr.ReceiveFrame(l.rxStuffed[:])
	if n == 0 {
		return false
	}
	l.handleFrame(l.rxStuffed[:n])
	return true
}

func (l *Link) drop(reason string, format string, args ...interface{}) {
	l.metrics.FrameDropped(reason)
	l.log.Debugf(format, args...)
}

// decode unstuffs and parses a received frame and checks it is meant for
// this node and intact.
func (l *Link) decode(stuffed []byte) (Frame, string, error) {
	n, err := Unstuff(l.rxFrame[:], stuffed)
	if err != nil {
		return Frame{}, "stuffing", err
	}
	f, err := DecodeFrame(l.rxFrame[:n])
	if err != nil {
		return Frame{}, "malformed", err
	}
	if f.Dest != l.conf.Address && f.Dest != BroadcastAddr {
		return Frame{}, "address", ErrAddressMismatch
	}
	if !f.Verify() {
		return Frame{}, "checksum", ErrBadChecksum
	}
	return f, "", nil
}

func (l *Link) handleFrame(stuffed []byte) {
	f, reason, err := l.decode(stuffed)
	switch {
	case err == ErrAddressMismatch:
		l.metrics.FrameDropped(reason)
		return
	case err != nil:
		l.drop(reason, "dropping %d-byte frame: %v", len(stuffed), err)
		return
	}
	l.metrics.FrameReceived()

	switch {
	case !f.Data:
		l.handleControl(&f)
	case f.Dest == BroadcastAddr:
		l.handleBroadcast(&f)
	default:
		l.handleData(&f)
	}
}

func (l *Link) handleControl(f *Frame) {
	switch f.Type {
	case ControlAck:
		l.ack = ackLatch{pending: true, src: f.Src, seq: f.Seq}
	case ControlRTC:
		l.latches.RTC = true
	case ControlCTC:
		l.latches.CTC = true
	case ControlBusy:
		l.latches.Busy = true
		l.log.Debugf("%s is busy", f.Src)
	default:
		l.drop("malformed", "unknown control frame %s from %s", f.Type, f.Src)
	}
}

func (l *Link) handleBroadcast(f *Frame) {
	if !f.Final {
		l.drop("malformed", "dropping fragmented broadcast from %s", f.Src)
		return
	}
	l.enqueue(f.Src, f.Payload)
}

func (l *Link) handleData(f *Frame) {
	now := time.Now()
	rx := &l.rx

	if rx.active && now.Sub(rx.last) >= l.staleAfter() {
		l.log.Debugf("abandoning stale reassembly from %s after %d bytes", rx.src, rx.n)
		rx.active = false
	}

	switch {
	case rx.active && rx.src == f.Src:
		if f.Seq != rx.expect {
			l.sendControl(ControlAck, f.Src, f.Seq)
			l.drop("duplicate", "duplicate %s", f)
			return
		}

	case rx.active:
		l.sendControl(ControlBusy, f.Src, f.Seq)
		l.drop("busy", "dropping %s: reassembling from %s", f, rx.src)
		return

	default:
		if l.isDuplicate(f, now) {
			// The peer missed our ACK for a fragment we already accepted.
			l.sendControl(ControlAck, f.Src, f.Seq)
			l.drop("duplicate", "duplicate %s", f)
			return
		}
		*rx = reassembly{active: true, src: f.Src, expect: f.Seq}
	}

	if rx.n+len(f.Payload) > MaxPacketSize {
		l.drop("overflow", "dropping packet from %s: exceeds %d bytes", f.Src, MaxPacketSize)
		rx.active = false
		return
	}
	copy(rx.buf[rx.n:], f.Payload)
	rx.n += len(f.Payload)
	rx.expect ^= 1
	rx.last = now
	l.rxSeq[f.Src] = peerSeq{valid: true, seq: f.Seq, at: now}

	l.sendControl(ControlAck, f.Src, f.Seq)

	if f.Final {
		l.enqueue(f.Src, rx.buf[:rx.n])
		rx.active = false
	}
}

// isDuplicate reports whether f repeats the last fragment accepted from its
// sender. Past the retry window the sender has given up on that fragment,
// so any sequence bit starts a new packet.
func (l *Link) isDuplicate(f *Frame, now time.Time) bool {
	p := l.rxSeq[f.Src]
	return p.valid && p.seq == f.Seq && now.Sub(p.at) < l.staleAfter()
}

// staleAfter is how long a sender keeps retrying one fragment.
func (l *Link) staleAfter() time.Duration {
	return l.conf.AckTimeout * time.Duration(l.conf.MaxRetries+1)
}

func (l *Link) enqueue(src Addr, data []byte) {
	if len(l.queue) >= maxQueuedDeliveries {
		l.drop("queue", "delivery queue full, dropping packet from %s", src)
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	l.queue = append(l.queue, delivery{src: src, data: buf})
}

func (l *Link) sendControl(t ControlType, dest Addr, seq uint8) {
	size, err := EncodeControlFrame(l.ctrlFrame[:], l.conf.ChecksumMode, t, dest, l.conf.Address, seq)
	if err != nil {
		l.log.WithError(err).Warn("failed to encode control frame")
		return
	}
	n, err := Stuff(l.ctrlStuff[:], l.ctrlFrame[:size])
	if err != nil {
		l.log.WithError(err).Warn("failed to stuff control frame")
		return
	}
	if !l.tr.TransmitFrame(l.ctrlStuff[:n]) {
		l.log.Debugf("failed to transmit %s to %s", t, dest)
		return
	}
	l.metrics.FrameSent()
}
