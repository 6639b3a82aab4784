package net

import (
	"fmt"
	"math"
	"time"

	"github.com/lcx/nexus/buffer"
	"github.com/lcx/nexus/crypto"
	"github.com/lcx/nexus/metrics"
)

// ChannelID addresses one connection slot inside an endpoint's slab. IDs are
// reused after teardown, so the game layer must treat a Disconnected event
// as the end of the ID's meaning.
type ChannelID uint32

// ChannelState tracks a connection's progress through the handshake.
type ChannelState uint8

const (
	// StateAwaitingToken is a freshly accepted connection whose first
	// frame has not arrived yet. Only a token frame is acceptable.
	StateAwaitingToken ChannelState = iota
	// StateConnected is an authenticated connection exchanging payload.
	StateConnected
)

// channel owns one client connection: its socket, its buffered ingress and
// egress bytes, its sequence counters and its handshake state. All methods
// run on the endpoint goroutine; a channel never blocks.
type channel struct {
	conn     Conn
	state    ChannelState
	clientID uint64

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer
	// scratch stages one frame: decrypted bodies on ingress, plaintext
	// under construction on egress. Frame bodies handed out by receive
	// alias it and are invalidated by the next channel operation.
	scratch []byte

	key *crypto.Key
	cfg *EndpointCfg

	sendSeq  uint64
	lastRecv uint64
	hasRecv  bool

	openedAt    time.Time
	lastIngress time.Time
	lastEgress  time.Time
}

func newChannel(conn Conn, key *crypto.Key, cfg *EndpointCfg, pool *buffer.Pool, now time.Time) *channel {
	return &channel{
		conn:        conn,
		state:       StateAwaitingToken,
		readBuf:     buffer.New(pool, cfg.ReadBufferLimit),
		writeBuf:    buffer.New(pool, cfg.WriteBufferLimit),
		scratch:     make([]byte, cfg.MaxFrameSize),
		key:         key,
		cfg:         cfg,
		openedAt:    now,
		lastIngress: now,
		lastEgress:  now,
	}
}

// ingress pulls whatever the socket has buffered. Byte arrival, not frame
// completion, is what refreshes the idle clock.
func (c *channel) ingress(now time.Time) error {
	n, err := c.readBuf.Ingress(c.conn)
	if n > 0 {
		c.lastIngress = now
		metrics.IncrCounterWithGroup("net", "bytes_in_total", metrics.Value(n))
	}
	if err != nil {
		return fatal(KindIoFailure, err)
	}
	return nil
}

// acceptSequence enforces strictly increasing packet sequences. The single
// permitted wrap is from the maximum value back to zero.
func (c *channel) acceptSequence(seq uint64) bool {
	if !c.hasRecv {
		return true
	}
	if seq > c.lastRecv {
		return true
	}
	return c.lastRecv == math.MaxUint64 && seq == 0
}

// receive parses and decrypts the next buffered frame. It returns ErrWait
// when no complete frame is buffered and a FatalError when the stream can
// no longer be trusted. The returned body aliases the channel scratch.
func (c *channel) receive() (Frame, error) {
	var hdrBuf [HeaderSize]byte
	if c.readBuf.Peek(hdrBuf[:]) < HeaderSize {
		return Frame{}, ErrWait
	}
	h := decodeHeader(hdrBuf[:])

	if !h.Class.valid() {
		return Frame{}, fatalf(KindCorruption, "unknown frame class %d", h.Class)
	}
	if int(h.Size) > c.cfg.MaxFrameSize || int(h.Size) < crypto.TagSize {
		return Frame{}, fatalf(KindCorruption, "frame size %d outside [%d, %d]",
			h.Size, crypto.TagSize, c.cfg.MaxFrameSize)
	}
	if c.readBuf.Len() < HeaderSize+int(h.Size) {
		return Frame{}, ErrWait
	}
	if !c.acceptSequence(h.Sequence) {
		return Frame{}, fatalf(KindReplay, "sequence %d after %d", h.Sequence, c.lastRecv)
	}

	c.readBuf.Discard(HeaderSize)
	ct := c.readBuf.View(int(h.Size))
	if ct == nil {
		// The record straddles a chunk boundary; gather it first.
		ct = c.scratch[:h.Size]
		c.readBuf.Peek(ct)
	}
	body, err := c.key.Open(c.scratch[:0], ct, hdrBuf[:], h.Sequence)
	c.readBuf.Discard(int(h.Size))
	if err != nil {
		return Frame{}, fatal(KindCorruption, err)
	}

	c.lastRecv = h.Sequence
	c.hasRecv = true
	metrics.IncrCounterWithGroup("net", "frames_in_total", 1)
	return Frame{Class: h.Class, Body: body}, nil
}

// writeFrame seals body (which must have TagSize spare capacity, as scratch
// does) and enqueues header plus ciphertext. ErrWait means the write buffer
// cannot hold the frame right now.
func (c *channel) writeFrame(class Class, body []byte, now time.Time) error {
	need := HeaderSize + len(body) + crypto.TagSize
	if c.writeBuf.Free() < need {
		return ErrWait
	}

	var hdrBuf [HeaderSize]byte
	h := Header{Class: class, Sequence: c.sendSeq, Size: uint16(len(body) + crypto.TagSize)}
	h.encode(hdrBuf[:])
	sealed := c.key.Seal(body[:0], body, hdrBuf[:], c.sendSeq)

	c.writeBuf.Write(hdrBuf[:])
	c.writeBuf.Write(sealed)
	c.sendSeq++
	c.lastEgress = now
	metrics.IncrCounterWithGroup("net", "frames_out_total", 1)
	return nil
}

// writePayload drains as many queued messages from batch as fit in a single
// frame, bounded by both the frame cap and the write buffer's free space.
func (c *channel) writePayload(batch *PayloadBatch, now time.Time) error {
	if batch.Len() == 0 {
		return nil
	}
	room := min(
		c.cfg.MaxFrameSize-crypto.TagSize,
		c.writeBuf.Free()-HeaderSize-crypto.TagSize,
	)
	if room <= 0 {
		return ErrWait
	}
	w := NewWriter(c.scratch[:room])
	if _, err := batch.encode(w); err != nil {
		return err
	}
	return c.writeFrame(ClassPayload, w.Written(), now)
}

func (c *channel) writeKeepalive(now time.Time) error {
	var body [crypto.TagSize]byte
	return c.writeFrame(ClassKeepalive, body[:0], now)
}

func (c *channel) writeDisconnect(reason DisconnectReason, now time.Time) error {
	var body [1 + crypto.TagSize]byte
	body[0] = byte(reason)
	return c.writeFrame(ClassDisconnect, body[:1], now)
}

// flush pushes buffered egress bytes into the socket.
func (c *channel) flush() error {
	if c.writeBuf.Len() == 0 {
		return nil
	}
	n, err := c.writeBuf.Egress(c.conn)
	if n > 0 {
		metrics.IncrCounterWithGroup("net", "bytes_out_total", metrics.Value(n))
	}
	if err != nil {
		return fatal(KindIoFailure, err)
	}
	return nil
}

// handshake consumes a token frame and promotes the channel to Connected.
func (c *channel) handshake(f Frame, now time.Time) error {
	if f.Class != ClassToken {
		return fatalf(KindCorruption, "first frame is %s, want token", f.Class)
	}
	tok, err := decodeToken(f.Body)
	if err != nil {
		return err
	}
	if tok.Protocol != c.cfg.Protocol {
		return fatalf(KindRejected, "token protocol %#04x, want %#04x", tok.Protocol, c.cfg.Protocol)
	}
	if tok.Version != c.cfg.Version {
		return fatalf(KindRejected, "token version %#04x, want %#04x", tok.Version, c.cfg.Version)
	}
	if tok.Expire <= uint64(now.Unix()) {
		return fatalf(KindRejected, "token expired at %d", tok.Expire)
	}
	priv, err := tok.open(c.key)
	if err != nil {
		return err
	}
	c.state = StateConnected
	c.clientID = priv.ClientID
	return nil
}

// close releases the socket and hands every buffered chunk back to the pool.
func (c *channel) close() {
	c.conn.Close()
	c.readBuf.Close()
	c.writeBuf.Close()
}

func (c *channel) String() string {
	return fmt.Sprintf("channel(client=%d state=%d remote=%s)", c.clientID, c.state, c.conn.RemoteAddr())
}
