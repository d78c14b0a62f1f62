package codec

import (
	"github.com/bytedance/sonic"
)

var jsonAPI = sonic.ConfigStd

type jsonCodec[T any] struct{}

// JSON returns a codec that encodes values as standard JSON
func JSON[T any]() Codec[T] {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Encode(v T) ([]byte, error) {
	data, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, &Error{Op: OpEncode, Format: "json", Err: err}
	}
	return data, nil
}

func (jsonCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := jsonAPI.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, &Error{Op: OpDecode, Format: "json", Err: err}
	}
	return v, nil
}
