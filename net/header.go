// Package net implements the encrypted, sequenced transport layer between
// game clients and a dedicated server process. A single-threaded Endpoint
// multiplexes non-blocking TCP connections, authenticates each one with a
// pre-issued token, and exchanges framed packets whose bodies are sealed
// with the process session key. The game layer above sees only three things:
// payload batches pulled per client, payload batches pushed per client, and
// a queue of connection change events.
package net

import "encoding/binary"

// HeaderSize is the length of the cleartext frame header on the wire.
const HeaderSize = 11

// Class tags what a frame carries. The set is closed: any other value on
// the wire is corruption.
type Class uint8

const (
	// ClassPayload frames carry a batch of game messages.
	ClassPayload Class = iota
	// ClassToken frames carry the connection token; exactly one is
	// expected, as the first frame of a connection.
	ClassToken
	// ClassKeepalive frames have an empty body and only refresh idle
	// tracking on both sides.
	ClassKeepalive
	// ClassDisconnect frames announce teardown with a one-byte reason.
	ClassDisconnect
)

func (c Class) valid() bool {
	return c <= ClassDisconnect
}

func (c Class) String() string {
	switch c {
	case ClassPayload:
		return "payload"
	case ClassToken:
		return "token"
	case ClassKeepalive:
		return "keepalive"
	case ClassDisconnect:
		return "disconnect"
	default:
		return "invalid"
	}
}

// Header is the cleartext prefix of every frame. It is also the AEAD
// associated data of the frame body, so any tampering with the class, the
// sequence or the size invalidates the body's tag.
//
//	class:u8 | sequence:u64 BE | size:u16 BE
//
// Size counts the encrypted body including its tag.
type Header struct {
	Class    Class
	Sequence uint64
	Size     uint16
}

// encode serializes the header into buf, which must hold HeaderSize bytes.
func (h Header) encode(buf []byte) {
	buf[0] = byte(h.Class)
	binary.BigEndian.PutUint64(buf[1:9], h.Sequence)
	binary.BigEndian.PutUint16(buf[9:11], h.Size)
}

// decodeHeader parses the fixed header fields without validating them;
// class and size checks belong to the channel, which knows its limits.
func decodeHeader(buf []byte) Header {
	return Header{
		Class:    Class(buf[0]),
		Sequence: binary.BigEndian.Uint64(buf[1:9]),
		Size:     binary.BigEndian.Uint16(buf[9:11]),
	}
}

// Frame is one decoded incoming frame: its class and the decrypted body.
// The body aliases channel scratch storage and is only valid until the next
// read on the same channel.
type Frame struct {
	Class Class
	Body  []byte
}
