// Package codec serializes protobuf-defined game messages and adapts them
// to the transport's payload batches. The transport itself never learns
// about protobuf; this package is the bridge the game layer plugs in.
package codec

import (
	"errors"

	"google.golang.org/protobuf/reflect/protoreflect"
)

var (
	errCodecNotInit = errors.New("codec not init")

	_codec Codec = &ProtoCodec{}
)

// Codec turns messages into bytes and back.
type Codec interface {
	Encode(m protoreflect.ProtoMessage, b []byte) ([]byte, error)
	Decode(m protoreflect.ProtoMessage, b []byte) error
}

// Encode marshals m, appending to b, with the process codec.
func Encode(m protoreflect.ProtoMessage, b []byte) ([]byte, error) {
	if _codec == nil {
		return nil, errCodecNotInit
	}
	return _codec.Encode(m, b)
}

// Decode unmarshals b into m with the process codec.
func Decode(m protoreflect.ProtoMessage, b []byte) error {
	if _codec == nil {
		return errCodecNotInit
	}
	return _codec.Decode(m, b)
}

// SetCodec replaces the process codec.
func SetCodec(c Codec) {
	_codec = c
}
