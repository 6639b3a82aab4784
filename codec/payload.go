package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/proto"

	"github.com/lcx/nexus/net"
)

// ProtoPayload carries one protobuf message through a payload batch: a u16
// length prefix followed by the proto bytes. Game code wraps its messages
// in one of these on the way out and supplies a factory on the way in.
type ProtoPayload struct {
	Msg proto.Message

	// New produces the concrete message to decode into. Required on the
	// receiving side, unused when sending.
	New func() proto.Message
}

// NewProtoPayload wraps an outgoing message.
func NewProtoPayload(m proto.Message) *ProtoPayload {
	return &ProtoPayload{Msg: m}
}

// ProtoPayloadFactory builds the batch factory for a stream whose payload
// messages all decode into newMsg's type.
func ProtoPayloadFactory(newMsg func() proto.Message) func() net.Message {
	return func() net.Message {
		return &ProtoPayload{New: newMsg}
	}
}

// EncodePayload implements net.Message.
func (p *ProtoPayload) EncodePayload(w *net.Writer) error {
	data, err := Encode(p.Msg, nil)
	if err != nil {
		return fmt.Errorf("codec: marshal payload: %w", err)
	}
	if len(data) > math.MaxUint16 {
		return fmt.Errorf("codec: payload is %d bytes, exceeds frame limit", len(data))
	}
	if w.Free() < 2+len(data) {
		return net.ErrWait
	}
	if err := w.WriteUint16(uint16(len(data))); err != nil {
		return err
	}
	return w.WriteBytes(data)
}

// DecodePayload implements net.Message.
func (p *ProtoPayload) DecodePayload(r *net.Reader) error {
	size, err := r.ReadUint16()
	if err != nil {
		return err
	}
	data, err := r.ReadBytes(int(size))
	if err != nil {
		return err
	}
	if p.New == nil {
		return fmt.Errorf("codec: payload factory missing message constructor")
	}
	p.Msg = p.New()
	return Decode(p.Msg, data)
}
