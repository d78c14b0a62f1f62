package codec

import (
	"google.golang.org/protobuf/proto"
)

type protoCodec[T proto.Message] struct{}

// Proto returns a codec for a generated protobuf message type
func Proto[T proto.Message]() Codec[T] {
	return protoCodec[T]{}
}

func (protoCodec[T]) Encode(v T) ([]byte, error) {
	data, err := proto.Marshal(v)
	if err != nil {
		return nil, &Error{Op: OpEncode, Format: "protobuf", Err: err}
	}
	return data, nil
}

func (protoCodec[T]) Decode(data []byte) (T, error) {
	var zero T
	msg := zero.ProtoReflect().New().Interface().(T)
	if err := proto.Unmarshal(data, msg); err != nil {
		return zero, &Error{Op: OpDecode, Format: "protobuf", Err: err}
	}
	return msg, nil
}
