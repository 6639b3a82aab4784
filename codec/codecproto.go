package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ProtoCodec is the standard protobuf wire codec.
type ProtoCodec struct{}

// Encode implements Codec.
func (c *ProtoCodec) Encode(m protoreflect.ProtoMessage, b []byte) ([]byte, error) {
	return proto.MarshalOptions{}.MarshalAppend(b, m)
}

// Decode implements Codec.
func (c *ProtoCodec) Decode(m protoreflect.ProtoMessage, b []byte) error {
	return proto.Unmarshal(b, m)
}
