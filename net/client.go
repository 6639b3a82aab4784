package net

import (
	"math"

	"github.com/lcx/nexus/crypto"
)

// ClientCodec is the client half of the wire protocol: it seals outgoing
// frames and opens incoming ones with its own sequence counters. Game
// client SDKs embed it over their own socket handling; the transport tests
// use it to speak to an endpoint byte-for-byte the way a real client does.
type ClientCodec struct {
	key      *crypto.Key
	maxFrame int

	sendSeq  uint64
	lastRecv uint64
	hasRecv  bool
}

// NewClientCodec creates a codec sealing with the session key obtained at
// matchmaking time.
func NewClientCodec(key *crypto.Key, maxFrameSize int) *ClientCodec {
	return &ClientCodec{key: key, maxFrame: maxFrameSize}
}

// EncodeFrame seals body into a complete wire frame.
func (c *ClientCodec) EncodeFrame(class Class, body []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(body)+crypto.TagSize)
	h := Header{Class: class, Sequence: c.sendSeq, Size: uint16(len(body) + crypto.TagSize)}
	h.encode(out)
	out = c.key.Seal(out, body, out[:HeaderSize], c.sendSeq)
	c.sendSeq++
	return out
}

// EncodeToken builds the handshake frame around an authenticator-issued
// token body. It must be the first frame the client sends.
func (c *ClientCodec) EncodeToken(tokenBody []byte) []byte {
	return c.EncodeFrame(ClassToken, tokenBody)
}

// EncodePayload batches messages into a single payload frame.
func (c *ClientCodec) EncodePayload(msgs ...Message) ([]byte, error) {
	body := make([]byte, c.maxFrame-crypto.TagSize)
	w := NewWriter(body)
	for _, m := range msgs {
		if err := m.EncodePayload(w); err != nil {
			return nil, err
		}
	}
	return c.EncodeFrame(ClassPayload, w.Written()), nil
}

// EncodeKeepalive builds an empty keepalive frame.
func (c *ClientCodec) EncodeKeepalive() []byte {
	return c.EncodeFrame(ClassKeepalive, nil)
}

// EncodeDisconnect builds a disconnect frame carrying reason.
func (c *ClientCodec) EncodeDisconnect(reason DisconnectReason) []byte {
	return c.EncodeFrame(ClassDisconnect, []byte{byte(reason)})
}

// DecodeNext opens the first complete frame in stream, returning the frame,
// the number of consumed bytes, and ErrWait when the stream holds no
// complete frame yet. The frame body is freshly allocated.
func (c *ClientCodec) DecodeNext(stream []byte) (Frame, int, error) {
	if len(stream) < HeaderSize {
		return Frame{}, 0, ErrWait
	}
	h := decodeHeader(stream[:HeaderSize])
	if !h.Class.valid() {
		return Frame{}, 0, fatalf(KindCorruption, "unknown frame class %d", h.Class)
	}
	if int(h.Size) < crypto.TagSize || int(h.Size) > c.maxFrame {
		return Frame{}, 0, fatalf(KindCorruption, "frame size %d out of range", h.Size)
	}
	total := HeaderSize + int(h.Size)
	if len(stream) < total {
		return Frame{}, 0, ErrWait
	}
	if c.hasRecv && h.Sequence <= c.lastRecv &&
		!(c.lastRecv == math.MaxUint64 && h.Sequence == 0) {
		return Frame{}, 0, fatalf(KindReplay, "sequence %d after %d", h.Sequence, c.lastRecv)
	}
	body, err := c.key.Open(nil, stream[HeaderSize:total], stream[:HeaderSize], h.Sequence)
	if err != nil {
		return Frame{}, 0, fatal(KindCorruption, err)
	}
	c.lastRecv = h.Sequence
	c.hasRecv = true
	return Frame{Class: h.Class, Body: body}, total, nil
}
